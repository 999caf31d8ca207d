package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/loomhq/loom/internal/clock"
	"github.com/loomhq/loom/internal/organization/domain"
	"github.com/loomhq/loom/pkg/domainevent"
	"gorm.io/gorm"
)

type nullQueue struct {
	events []domainevent.Event
}

func (q *nullQueue) Queue(events ...domainevent.Event) {
	q.events = append(q.events, events...)
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func setupRepo(t *testing.T) (domain.Repository, *gorm.DB, *snowflake.Node, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	prepareSchema(t, db)

	node := mustNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewRepository(db, nil, node, clk), db, node, clk
}

func prepareSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`CREATE TABLE organizations (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		owner_id BIGINT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		deleted_at DATETIME
	)`).Error; err != nil {
		t.Fatalf("create organizations: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX uq_organizations_slug
		ON organizations (slug) WHERE deleted_at IS NULL`).Error; err != nil {
		t.Fatalf("create slug index: %v", err)
	}
	if err := db.Exec(`CREATE TABLE organization_memberships (
		id BIGINT PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		role TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		deleted_at DATETIME
	)`).Error; err != nil {
		t.Fatalf("create memberships: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX uq_organization_memberships_org_user
		ON organization_memberships (organization_id, user_id) WHERE deleted_at IS NULL`).Error; err != nil {
		t.Fatalf("create membership index: %v", err)
	}
}

func TestCreatePersistsAggregateWithMemberships(t *testing.T) {
	repo, db, node, clk := setupRepo(t)
	ctx := context.Background()
	ownerID := node.Generate()

	org := domain.NewOrganization(node, clk, "Acme", "acme", ownerID)
	if err := repo.Create(ctx, org); err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := repo.FindBySlug(ctx, "acme")
	if err != nil {
		t.Fatalf("find by slug: %v", err)
	}
	if loaded == nil {
		t.Fatalf("aggregate not found after create")
	}
	if loaded.ID() != org.ID() || loaded.OwnerID() != ownerID {
		t.Fatalf("rehydrated aggregate mismatch")
	}
	if len(loaded.Memberships()) != 1 {
		t.Fatalf("expected owner membership, got %d", len(loaded.Memberships()))
	}

	var count int64
	if err := db.Model(&domain.MembershipRow{}).Count(&count).Error; err != nil {
		t.Fatalf("count memberships: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 membership row, got %d", count)
	}
}

func TestCreateTranslatesSlugCollision(t *testing.T) {
	repo, _, node, clk := setupRepo(t)
	ctx := context.Background()

	first := domain.NewOrganization(node, clk, "Acme", "acme", node.Generate())
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}

	second := domain.NewOrganization(node, clk, "Acme Too", "acme", node.Generate())
	if err := repo.Create(ctx, second); !errors.Is(err, domain.ErrSlugTaken) {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}

func TestSavePersistsMembershipDiff(t *testing.T) {
	repo, db, node, clk := setupRepo(t)
	ctx := context.Background()

	org := domain.NewOrganization(node, clk, "Acme", "acme", node.Generate())
	if err := repo.Create(ctx, org); err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := repo.FindByID(ctx, org.ID())
	if err != nil || loaded == nil {
		t.Fatalf("reload: %v", err)
	}

	added, err := loaded.AddMember(node.Generate(), domain.RoleOrgMember)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := repo.Save(ctx, loaded); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Promote and save again: only the one membership row may change.
	reloaded, err := repo.FindByID(ctx, org.ID())
	if err != nil || reloaded == nil {
		t.Fatalf("reload: %v", err)
	}
	clk.Advance(time.Minute)
	if _, err := reloaded.UpdateMemberRole(added.ID(), domain.RoleOrgAdmin); err != nil {
		t.Fatalf("update role: %v", err)
	}
	if err := repo.Save(ctx, reloaded); err != nil {
		t.Fatalf("save role change: %v", err)
	}

	var row domain.MembershipRow
	if err := db.Where("id = ?", added.ID()).First(&row).Error; err != nil {
		t.Fatalf("lookup membership: %v", err)
	}
	if row.Role != domain.RoleOrgAdmin.String() {
		t.Fatalf("expected persisted role %s, got %s", domain.RoleOrgAdmin, row.Role)
	}
}

func TestSaveSoftDeletesRemovedMemberships(t *testing.T) {
	repo, db, node, clk := setupRepo(t)
	ctx := context.Background()

	org := domain.NewOrganization(node, clk, "Acme", "acme", node.Generate())
	member, err := org.AddMember(node.Generate(), domain.RoleOrgMember)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := repo.Create(ctx, org); err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := repo.FindByID(ctx, org.ID())
	if err != nil || loaded == nil {
		t.Fatalf("reload: %v", err)
	}
	clk.Advance(time.Minute)
	if err := loaded.RemoveMember(member.ID()); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if err := repo.Save(ctx, loaded); err != nil {
		t.Fatalf("save: %v", err)
	}

	var row domain.MembershipRow
	if err := db.Where("id = ?", member.ID()).First(&row).Error; err != nil {
		t.Fatalf("lookup membership: %v", err)
	}
	if row.DeletedAt == nil {
		t.Fatalf("membership row not soft deleted")
	}

	// The active view no longer includes the removed member, so the
	// same user can join again.
	again, err := repo.FindByID(ctx, org.ID())
	if err != nil || again == nil {
		t.Fatalf("reload: %v", err)
	}
	if again.HasMember(member.UserID()) {
		t.Fatalf("soft-deleted membership still visible")
	}
	if _, err := again.AddMember(member.UserID(), domain.RoleOrgMember); err != nil {
		t.Fatalf("re-add after removal: %v", err)
	}
	if err := repo.Save(ctx, again); err != nil {
		t.Fatalf("save re-add: %v", err)
	}
}

func TestSaveTranslatesMembershipRace(t *testing.T) {
	repo, _, node, clk := setupRepo(t)
	ctx := context.Background()
	userID := node.Generate()

	org := domain.NewOrganization(node, clk, "Acme", "acme", node.Generate())
	if err := repo.Create(ctx, org); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Two instances loaded before either saves: both pass the in-memory
	// duplicate check, the unique index catches the second write.
	a, err := repo.FindByID(ctx, org.ID())
	if err != nil || a == nil {
		t.Fatalf("load a: %v", err)
	}
	b, err := repo.FindByID(ctx, org.ID())
	if err != nil || b == nil {
		t.Fatalf("load b: %v", err)
	}

	if _, err := a.AddMember(userID, domain.RoleOrgMember); err != nil {
		t.Fatalf("add on a: %v", err)
	}
	if _, err := b.AddMember(userID, domain.RoleOrgMember); err != nil {
		t.Fatalf("add on b: %v", err)
	}

	if err := repo.Save(ctx, a); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := repo.Save(ctx, b); !errors.Is(err, domain.ErrDuplicateMembership) {
		t.Fatalf("expected ErrDuplicateMembership, got %v", err)
	}
}

func TestListByUser(t *testing.T) {
	repo, _, node, clk := setupRepo(t)
	ctx := context.Background()
	userID := node.Generate()

	first := domain.NewOrganization(node, clk, "First", "first", userID)
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}

	clk.Advance(time.Hour)
	second := domain.NewOrganization(node, clk, "Second", "second", node.Generate())
	if _, err := second.AddMember(userID, domain.RoleOrgMember); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("create second: %v", err)
	}

	other := domain.NewOrganization(node, clk, "Other", "other", node.Generate())
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("create other: %v", err)
	}

	items, err := repo.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 memberships, got %d", len(items))
	}
	if items[0].Slug != "first" || items[1].Slug != "second" {
		t.Fatalf("unexpected order: %+v", items)
	}
	if items[0].Role != domain.RoleOrgAdmin.String() || items[1].Role != domain.RoleOrgMember.String() {
		t.Fatalf("unexpected roles: %+v", items)
	}
}

func TestSoftDeleteHidesOrganization(t *testing.T) {
	repo, db, node, clk := setupRepo(t)
	ctx := context.Background()

	org := domain.NewOrganization(node, clk, "Acme", "acme", node.Generate())
	if err := repo.Create(ctx, org); err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := repo.FindByID(ctx, org.ID())
	if err != nil || loaded == nil {
		t.Fatalf("reload: %v", err)
	}
	loaded.Delete()
	if err := repo.SoftDelete(ctx, loaded); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	gone, err := repo.FindByID(ctx, org.ID())
	if err != nil {
		t.Fatalf("find after delete: %v", err)
	}
	if gone != nil {
		t.Fatalf("soft-deleted organization still found")
	}

	var row domain.OrganizationRow
	if err := db.Where("id = ?", org.ID()).First(&row).Error; err != nil {
		t.Fatalf("raw lookup: %v", err)
	}
	if row.DeletedAt == nil {
		t.Fatalf("deleted_at not stamped")
	}

	// The slug becomes reusable once the old row is dead.
	fresh := domain.NewOrganization(node, clk, "Acme Again", "acme", node.Generate())
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("recreate slug: %v", err)
	}
}

func TestSaveQueuesEventsWhenBound(t *testing.T) {
	repo, db, node, clk := setupRepo(t)
	ctx := context.Background()

	org := domain.NewOrganization(node, clk, "Acme", "acme", node.Generate())
	queue := &nullQueue{}
	bound := repo.WithTrx(db, queue)

	if err := bound.Create(ctx, org); err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(queue.events) != 2 {
		t.Fatalf("expected 2 queued events, got %d", len(queue.events))
	}
	if queue.events[0].EventName() != domain.EventOrganizationCreated {
		t.Fatalf("unexpected first event %s", queue.events[0].EventName())
	}
	if leftover := org.PullEvents(); len(leftover) != 0 {
		t.Fatalf("events left on aggregate: %d", len(leftover))
	}
}

func TestSaveRemoveThenReAddSameUser(t *testing.T) {
	repo, db, node, clk := setupRepo(t)
	ctx := context.Background()

	org := domain.NewOrganization(node, clk, "Acme", "acme", node.Generate())
	member, err := org.AddMember(node.Generate(), domain.RoleOrgMember)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := repo.Create(ctx, org); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Removal and re-add in the same persistence cycle: the old row must
	// leave the partial unique index before the new one is inserted.
	loaded, err := repo.FindByID(ctx, org.ID())
	if err != nil || loaded == nil {
		t.Fatalf("reload: %v", err)
	}
	clk.Advance(time.Minute)
	if err := loaded.RemoveMember(member.ID()); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	readded, err := loaded.AddMember(member.UserID(), domain.RoleOrgAdmin)
	if err != nil {
		t.Fatalf("re-add member: %v", err)
	}
	if err := repo.Save(ctx, loaded); err != nil {
		t.Fatalf("save remove+re-add: %v", err)
	}

	var live int64
	err = db.Model(&domain.MembershipRow{}).
		Where("user_id = ? AND deleted_at IS NULL", member.UserID()).
		Count(&live).Error
	if err != nil {
		t.Fatalf("count live rows: %v", err)
	}
	if live != 1 {
		t.Fatalf("expected 1 live membership row, got %d", live)
	}

	var row domain.MembershipRow
	if err := db.Where("id = ?", readded.ID()).First(&row).Error; err != nil {
		t.Fatalf("lookup new row: %v", err)
	}
	if row.Role != domain.RoleOrgAdmin.String() {
		t.Fatalf("expected role %s, got %s", domain.RoleOrgAdmin, row.Role)
	}
}

func TestSoftDeleteDeniedWriteSurfacesError(t *testing.T) {
	repo, db, node, clk := setupRepo(t)
	ctx := context.Background()

	org := domain.NewOrganization(node, clk, "Acme", "acme", node.Generate())
	if err := repo.Create(ctx, org); err != nil {
		t.Fatalf("create: %v", err)
	}
	loaded, err := repo.FindByID(ctx, org.ID())
	if err != nil || loaded == nil {
		t.Fatalf("reload: %v", err)
	}
	loaded.Delete()

	errDenied := errors.New("permission denied for table organizations")
	err = db.Callback().Update().Before("gorm:update").Register("deny_org_update", func(tx *gorm.DB) {
		if tx.Statement.Table == "organizations" {
			_ = tx.AddError(errDenied)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	// The row is still readable after the failed update: the write was
	// denied outright, so the original error comes back.
	if err := repo.SoftDelete(ctx, loaded); !errors.Is(err, errDenied) {
		t.Fatalf("expected denied-write error, got %v", err)
	}
}

func TestSoftDeleteHiddenReadBackCountsAsSuccess(t *testing.T) {
	repo, db, node, clk := setupRepo(t)
	ctx := context.Background()

	org := domain.NewOrganization(node, clk, "Acme", "acme", node.Generate())
	if err := repo.Create(ctx, org); err != nil {
		t.Fatalf("create: %v", err)
	}
	loaded, err := repo.FindByID(ctx, org.ID())
	if err != nil || loaded == nil {
		t.Fatalf("reload: %v", err)
	}
	loaded.Delete()

	// A deny-on-read policy errors the update's read-back and then hides
	// the row from the verification query: the delete took effect.
	errDenied := errors.New("permission denied for table organizations")
	err = db.Callback().Update().Before("gorm:update").Register("deny_org_update", func(tx *gorm.DB) {
		if tx.Statement.Table == "organizations" {
			_ = tx.AddError(errDenied)
		}
	})
	if err != nil {
		t.Fatalf("register update callback: %v", err)
	}
	err = db.Callback().Query().Before("gorm:query").Register("hide_org_rows", func(tx *gorm.DB) {
		if tx.Statement.Table == "organizations" {
			_ = tx.AddError(gorm.ErrRecordNotFound)
		}
	})
	if err != nil {
		t.Fatalf("register query callback: %v", err)
	}

	if err := repo.SoftDelete(ctx, loaded); err != nil {
		t.Fatalf("expected policy-hidden delete to succeed, got %v", err)
	}
}
