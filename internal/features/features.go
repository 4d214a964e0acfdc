// Package features holds the shard's gameplay handlers. Each feature hooks
// into the session core through registries during startup.
package features

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/services/character"
	"github.com/mcoot/liveshard/internal/services/datastore"
	"github.com/mcoot/liveshard/internal/services/mtx"
	"github.com/mcoot/liveshard/internal/services/player"
	"github.com/mcoot/liveshard/internal/world"
)

// ExampleProductCredit is how much money the example product grants
const ExampleProductCredit = 100

// Deps are the services features register against
type Deps struct {
	Catalog    model.Catalog
	Store      *datastore.Store
	Mtx        *mtx.Service
	Characters *character.Service
	Logger     *slog.Logger
}

// Register installs every feature. It must run before the registries freeze.
func Register(d Deps) error {
	logger := d.Logger.With(slog.String("component", "features"))

	var errs []error
	if id, ok := d.Catalog.Products[model.ProductExample]; ok {
		errs = append(errs, d.Mtx.RegisterProductHandler(id, exampleProduct(d.Store, logger)))
	}
	if id, ok := d.Catalog.GamePasses[model.GamePassExample]; ok {
		errs = append(errs, d.Mtx.OnGamePassStatusChanged(id, "example-pass", exampleGamePass(logger)))
	}
	d.Characters.Added().Register("spawn-log", 10, character.AddedFunc(
		func(_ context.Context, rig *world.Rig, e *player.Entity) error {
			logger.Debug("character spawned",
				slog.String("user_id", e.UserID.String()),
				slog.String("rig_id", rig.ID()),
			)
			return nil
		}))
	return errors.Join(errs...)
}

func exampleProduct(store *datastore.Store, logger *slog.Logger) mtx.ProductHandler {
	return func(e *player.Entity, product model.ProductID) bool {
		_, ok := store.Update(e.UserID, model.AddBalance(ExampleProductCredit))
		logger.Debug("example product purchased",
			slog.String("user_id", e.UserID.String()),
			slog.String("product_id", string(product)),
		)
		return ok
	}
}

func exampleGamePass(logger *slog.Logger) mtx.GamePassHandler {
	return func(_ context.Context, e *player.Entity, pass model.GamePassID, active bool) error {
		if active {
			logger.Debug("example game pass activated",
				slog.String("user_id", e.UserID.String()),
				slog.String("pass_id", string(pass)),
			)
		}
		return nil
	}
}
