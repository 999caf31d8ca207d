package eventbus

import (
	"github.com/loomhq/loom/pkg/domainevent"
	"go.uber.org/fx"
)

func providePublisher(bus *Bus) domainevent.Publisher {
	return bus
}

var Module = fx.Module("eventbus",
	fx.Provide(New),
	fx.Provide(providePublisher),
)
