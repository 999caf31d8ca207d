package organization

import (
	"github.com/loomhq/loom/internal/eventbus"
	"github.com/loomhq/loom/internal/organization/event"
	"github.com/loomhq/loom/internal/organization/repository"
	"github.com/loomhq/loom/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
		event.NewRecorder,
	),
	fx.Invoke(func(recorder *event.Recorder, bus *eventbus.Bus) {
		recorder.Register(bus)
	}),
)
