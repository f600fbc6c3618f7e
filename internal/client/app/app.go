// Package app is the client-facing facade over the local store and the
// sync engine. UI and import collaborators go through it instead of
// touching the store or the engine directly.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/plateful/plateful/internal/client/store"
	syncengine "github.com/plateful/plateful/internal/client/sync"
	"github.com/plateful/plateful/internal/logging"
	"github.com/plateful/plateful/internal/model"
)

// App exposes local record operations plus sync control.
type App struct {
	store  store.Store
	engine *syncengine.Engine
	log    logging.Logger
}

// New builds the facade.
func New(st store.Store, engine *syncengine.Engine, log logging.Logger) *App {
	return &App{store: st, engine: engine, log: log.With("component", "app")}
}

// CreateEntity inserts a new local entity with a client-generated id. The
// record becomes visible immediately and syncs on the next cycle.
func (a *App) CreateEntity(ctx context.Context, entityType, name string, attributes map[string]any) (*model.Record, error) {
	rec := model.NewEntity(uuid.NewString(), entityType, name, attributes)
	stored, err := a.store.Put(ctx, model.CollectionEntities, rec, 0)
	if err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}
	return stored, nil
}

// CreateCuration inserts a new local curation attached to entityID. The
// target entity may itself still be pending; the server orders creates by
// arrival, not by reference.
func (a *App) CreateCuration(ctx context.Context, entityID, curatorID string, content map[string]any) (*model.Record, error) {
	rec := model.NewCuration(uuid.NewString(), entityID, curatorID, content)
	stored, err := a.store.Put(ctx, model.CollectionCurations, rec, 0)
	if err != nil {
		return nil, fmt.Errorf("create curation: %w", err)
	}
	return stored, nil
}

// Get returns a single local record.
func (a *App) Get(ctx context.Context, col model.Collection, id string) (*model.Record, error) {
	return a.store.Get(ctx, col, id)
}

// List returns all local records in a collection, tombstones excluded.
func (a *App) List(ctx context.Context, col model.Collection) ([]*model.Record, error) {
	return a.store.List(ctx, col)
}

// Conflicts returns records awaiting explicit resolution.
func (a *App) Conflicts(ctx context.Context, col model.Collection) ([]*model.Record, error) {
	return a.store.ListBySyncState(ctx, col, model.SyncStateConflict)
}

// Update writes modified content back. rec.Version must be the version the
// caller read; a mismatch returns common.ErrStaleWrite and the caller must
// re-read before retrying.
func (a *App) Update(ctx context.Context, rec *model.Record) (*model.Record, error) {
	stored, err := a.store.Put(ctx, rec.Collection, rec, rec.Version)
	if err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", rec.Collection, rec.ID, err)
	}
	return stored, nil
}

// Delete tombstones a record. The tombstone is pushed on the next cycle;
// a record the server never saw is discarded locally instead.
func (a *App) Delete(ctx context.Context, col model.Collection, id string) error {
	rec, err := a.store.Get(ctx, col, id)
	if err != nil {
		return err
	}
	rec.Deleted = true
	if _, err := a.store.Put(ctx, col, rec, rec.Version); err != nil {
		return fmt.Errorf("delete %s/%s: %w", col, id, err)
	}
	return nil
}

// OnConflict registers the callback invoked when a record enters the
// conflict state.
func (a *App) OnConflict(fn syncengine.ConflictHandler) {
	a.engine.OnConflict(fn)
}

// Sync runs one full pull/push cycle and returns its report.
func (a *App) Sync(ctx context.Context) (*syncengine.Report, error) {
	return a.engine.TriggerSync(ctx)
}

// Resolve settles a parked conflict.
func (a *App) Resolve(ctx context.Context, col model.Collection, id string, choice syncengine.Choice, mergedPayload map[string]any) error {
	return a.engine.Resolve(ctx, col, id, choice, mergedPayload)
}

// AutoSync runs background cycles every interval until ctx is cancelled.
func (a *App) AutoSync(ctx context.Context, interval time.Duration) {
	a.engine.AutoSync(ctx, interval)
}

// Syncing reports whether a cycle is currently running.
func (a *App) Syncing() bool {
	return a.engine.Syncing()
}
