package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/loomhq/loom/internal/user/domain"
	"github.com/loomhq/loom/pkg/db"
	"github.com/loomhq/loom/pkg/domainevent"
	"github.com/loomhq/loom/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	store repository.Repository[domain.User]
}

func NewRepository(conn *gorm.DB, bus domainevent.Publisher) domain.Repository {
	return &repo{store: repository.ProvideStore[domain.User](conn, bus)}
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return r.store.FindByID(ctx, id.String())
}

func (r *repo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.store.FindOne(ctx, &domain.User{Email: email})
}

func (r *repo) FindByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return r.store.FindOne(ctx, &domain.User{ExternalID: externalID})
}

func (r *repo) Create(ctx context.Context, user *domain.User) error {
	if err := r.store.Create(ctx, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrUserExists
		}
		return err
	}
	return nil
}
