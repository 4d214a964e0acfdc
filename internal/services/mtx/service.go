// Package mtx processes purchase receipts and manages game passes.
//
// Receipts are delivered at least once and in any order. Each purchase id is
// credited at most once: the record keeps a bounded log of recently processed
// ids, and a delivery whose id is already logged only re-confirms the save.
package mtx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/mcoot/liveshard/internal/dependencies/clock"
	"github.com/mcoot/liveshard/internal/lifecycle"
	"github.com/mcoot/liveshard/internal/logging"
	"github.com/mcoot/liveshard/internal/metrics"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/platform"
	"github.com/mcoot/liveshard/internal/services/datastore"
	"github.com/mcoot/liveshard/internal/services/player"
)

// Config holds receipt and network settings
type Config struct {
	// ReceiptLogSize is how many recent purchase ids a record keeps
	ReceiptLogSize int
	// RetryAttempts and RetryDelay bound product info lookups
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultConfig returns the standard settings
func DefaultConfig() Config {
	return Config{
		ReceiptLogSize: 50,
		RetryAttempts:  10,
		RetryDelay:     2 * time.Second,
	}
}

// ProductHandler applies a developer product purchase. It runs synchronously
// while the purchase is being processed and must not block on I/O. It
// returns false if the purchase could not be applied.
type ProductHandler func(e *player.Entity, product model.ProductID) bool

// GamePassHandler is notified when a game pass is activated or deactivated
type GamePassHandler func(ctx context.Context, e *player.Entity, pass model.GamePassID, active bool) error

// Service is the transaction engine for one shard
type Service struct {
	cfg     Config
	catalog model.Catalog
	players *player.Manager
	store   *datastore.Store
	market  platform.Marketplace
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	products map[model.ProductID]ProductHandler
	passes   map[model.GamePassID]*lifecycle.Registry[GamePassHandler]
	frozen   bool

	infoMu    sync.Mutex
	infoCache map[string]*model.ProductInfo
	infoLoads singleflight.Group
}

// New creates a transaction service
func New(
	cfg Config,
	catalog model.Catalog,
	players *player.Manager,
	store *datastore.Store,
	market platform.Marketplace,
	clock clock.Clock,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	logger = logger.With(slog.String("component", "mtx"))
	s := &Service{
		cfg:       cfg,
		catalog:   catalog,
		players:   players,
		store:     store,
		market:    market,
		clock:     clock,
		metrics:   m,
		logger:    logger,
		products:  make(map[model.ProductID]ProductHandler),
		passes:    make(map[model.GamePassID]*lifecycle.Registry[GamePassHandler]),
		infoCache: make(map[string]*model.ProductInfo),
	}
	for _, pass := range catalog.GamePassIDs() {
		reg := lifecycle.New[GamePassHandler]("gamepass-"+string(pass), logger)
		reg.OnFault(func(registry, _ string, _ error) { m.HandlerFault(registry) })
		s.passes[pass] = reg
	}
	return s
}

// RegisterProductHandler sets the handler for a product. The first
// registration for a product wins; later ones are logged and rejected.
func (s *Service) RegisterProductHandler(product model.ProductID, handler ProductHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		s.logger.Error("product handler registered after startup", slog.String("product_id", string(product)))
		return model.ErrRegistrationClosed
	}
	if _, ok := s.products[product]; ok {
		s.logger.Error("handler already registered for product", slog.String("product_id", string(product)))
		return fmt.Errorf("product %s: %w", product, model.ErrHandlerAlreadyRegistered)
	}
	s.products[product] = handler
	s.logger.Debug("registered handler for product", slog.String("product_id", string(product)))
	return nil
}

// RegisterHandlerForEachProduct registers one handler for several products
func (s *Service) RegisterHandlerForEachProduct(products map[string]model.ProductID, handler ProductHandler) error {
	keys := make([]string, 0, len(products))
	for k := range products {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := s.RegisterProductHandler(products[k], handler); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnGamePassStatusChanged adds a handler for a game pass's active state
func (s *Service) OnGamePassStatusChanged(pass model.GamePassID, id string, handler GamePassHandler) error {
	s.mu.RLock()
	reg, ok := s.passes[pass]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("game pass %s: %w", pass, model.ErrUnknownGamePass)
	}
	if !reg.Register(id, lifecycle.DefaultPriority, handler) {
		return model.ErrRegistrationClosed
	}
	return nil
}

// Freeze closes registration
func (s *Service) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
	for _, reg := range s.passes {
		reg.Freeze()
	}
}

// ProcessReceipt decides whether a purchase has been granted. Any outcome
// other than model.PurchaseGranted asks the platform to redeliver later.
func (s *Service) ProcessReceipt(ctx context.Context, receipt model.ReceiptInfo) model.PurchaseDecision {
	log := s.logger.With(
		slog.String("purchase_id", receipt.PurchaseID),
		slog.String("user_id", receipt.PlayerID.String()),
		slog.String("product_id", string(receipt.ProductID)),
	)
	log.Info("processing receipt")

	decision := s.processReceipt(ctx, log, receipt)

	s.metrics.ReceiptProcessed(decision)
	log.Info("receipt processed", slog.String("decision", string(decision)))
	return decision
}

func (s *Service) processReceipt(ctx context.Context, log *slog.Logger, receipt model.ReceiptInfo) model.PurchaseDecision {
	if !s.players.IsConnected(receipt.PlayerID) {
		return model.NotProcessedYet
	}
	e, err := s.players.GetEntityAsync(ctx, receipt.PlayerID)
	if err != nil {
		log.Error("no entity for player, cannot process receipt", slog.String("error", err.Error()))
		return model.NotProcessedYet
	}

	decision := model.NotProcessedYet
	e.Exclusive(func() {
		decision = s.purchaseIDCheck(ctx, log, e, receipt)
	})
	return decision
}

// purchaseIDCheck must run inside the entity's exclusive section
func (s *Service) purchaseIDCheck(ctx context.Context, log *slog.Logger, e *player.Entity, receipt model.ReceiptInfo) model.PurchaseDecision {
	if e.Document.Read().HasReceipt(receipt.PurchaseID) {
		if err := e.Document.Save(ctx); err != nil {
			log.Warn("failed to confirm duplicate receipt", slog.String("error", err.Error()))
			return model.NotProcessedYet
		}
		log.Info("duplicate receipt, already granted")
		return model.PurchaseGranted
	}

	if _, ok := s.store.Get(e.UserID); !ok {
		return model.NotProcessedYet
	}
	if !s.grantProduct(ctx, log, e, receipt) {
		return model.NotProcessedYet
	}

	if err := e.Document.Save(ctx); err != nil {
		log.Warn("failed to save after purchase", slog.String("error", err.Error()))
		return model.NotProcessedYet
	}
	return model.PurchaseGranted
}

func (s *Service) grantProduct(ctx context.Context, log *slog.Logger, e *player.Entity, receipt model.ReceiptInfo) bool {
	if !s.catalog.HasProduct(receipt.ProductID) {
		log.Warn("player attempted to purchase invalid product")
		return false
	}

	s.mu.RLock()
	handler, ok := s.products[receipt.ProductID]
	s.mu.RUnlock()
	if !ok {
		logging.Fatal(ctx, log, "no handler for product")
		return false
	}

	if !s.invoke(log, handler, e, receipt.ProductID) {
		log.Error("failed to process product")
		return false
	}

	if _, ok := s.store.Update(e.UserID, model.Compose(
		model.AddProductPurchase(receipt.ProductID, receipt.CurrencySpent, s.clock.Now()),
		model.AppendReceipt(receipt.PurchaseID, s.cfg.ReceiptLogSize),
	)); !ok {
		log.Warn("player record released before purchase was recorded")
		return false
	}
	log.Info("player purchased developer product")
	return true
}

func (s *Service) invoke(log *slog.Logger, handler ProductHandler, e *player.Entity, product model.ProductID) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("product handler panicked", slog.Any("panic", p))
			ok = false
		}
	}()
	return handler(e, product)
}

// IsGamePassActive reports whether the player owns the pass and has it active
func (s *Service) IsGamePassActive(e *player.Entity, pass model.GamePassID) bool {
	data, ok := s.store.Get(e.UserID)
	if !ok {
		return false
	}
	return data.Mtx.GamePasses[pass].Active
}

// CheckForGamePassOwned checks the player's record first, then the marketplace
func (s *Service) CheckForGamePassOwned(ctx context.Context, e *player.Entity, pass model.GamePassID) (bool, error) {
	if !s.catalog.HasGamePass(pass) {
		return false, fmt.Errorf("game pass %s: %w", pass, model.ErrUnknownGamePass)
	}
	if data, ok := s.store.Get(e.UserID); ok && data.OwnsGamePass(pass) {
		return true, nil
	}
	owned, err := s.market.UserOwnsGamePass(ctx, e.UserID, pass)
	if err != nil {
		s.metrics.PlatformFailure("UserOwnsGamePass")
		return false, err
	}
	return owned, nil
}

// GrantGamePass records a newly purchased pass as owned and active
func (s *Service) GrantGamePass(ctx context.Context, e *player.Entity, pass model.GamePassID) error {
	if !s.catalog.HasGamePass(pass) {
		s.logger.Warn("player attempted to purchase invalid game pass",
			slog.String("user_id", e.UserID.String()),
			slog.String("pass_id", string(pass)),
		)
		return fmt.Errorf("game pass %s: %w", pass, model.ErrUnknownGamePass)
	}
	s.logger.Info("player purchased game pass",
		slog.String("user_id", e.UserID.String()),
		slog.String("pass_id", string(pass)),
	)
	return s.setActive(e, pass, true)
}

// SetGamePassActive toggles an owned pass
func (s *Service) SetGamePassActive(ctx context.Context, e *player.Entity, pass model.GamePassID, active bool) error {
	owned, err := s.CheckForGamePassOwned(ctx, e, pass)
	if err != nil {
		return err
	}
	if !owned {
		s.logger.Warn("player tried to activate a game pass they do not own",
			slog.String("user_id", e.UserID.String()),
			slog.String("pass_id", string(pass)),
		)
		return model.ErrGamePassNotOwned
	}
	return s.setActive(e, pass, active)
}

func (s *Service) setActive(e *player.Entity, pass model.GamePassID, active bool) error {
	changed := false
	_, ok := s.store.Update(e.UserID, func(d model.PlayerData) model.PlayerData {
		current, owned := d.Mtx.GamePasses[pass]
		if owned && current.Active == active {
			return d
		}
		changed = true
		return model.SetGamePassActive(pass, active)(d)
	})
	if !ok {
		return model.ErrNotConnected
	}
	if changed {
		s.notifyGamePassActive(e, pass, active)
	}
	return nil
}

// notifyGamePassActive runs the pass's handlers on the session without
// blocking the caller
func (s *Service) notifyGamePassActive(e *player.Entity, pass model.GamePassID, active bool) {
	s.mu.RLock()
	reg, ok := s.passes[pass]
	s.mu.RUnlock()
	if !ok {
		return
	}
	e.Janitor.Go("game pass "+string(pass), func(ctx context.Context) error {
		reg.Fanout(ctx, func(ctx context.Context, h GamePassHandler) error {
			return h(ctx, e, pass, active)
		})
		return nil
	})
}

// OnPlayerJoin notifies handlers of every pass the player owns, then looks
// for passes bought outside the shard and grants them.
func (s *Service) OnPlayerJoin(ctx context.Context, e *player.Entity) error {
	data, ok := s.store.Get(e.UserID)
	if !ok {
		return nil
	}

	owned := make([]model.GamePassID, 0, len(data.Mtx.GamePasses))
	for pass := range data.Mtx.GamePasses {
		owned = append(owned, pass)
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i] < owned[j] })
	for _, pass := range owned {
		s.notifyGamePassActive(e, pass, data.Mtx.GamePasses[pass].Active)
	}

	for _, pass := range s.catalog.GamePassIDs() {
		if data.OwnsGamePass(pass) {
			continue
		}
		isOwned, err := s.CheckForGamePassOwned(ctx, e, pass)
		if err != nil {
			s.logger.Warn("error checking game pass",
				slog.String("user_id", e.UserID.String()),
				slog.String("pass_id", string(pass)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if isOwned {
			if err := s.GrantGamePass(ctx, e, pass); err != nil {
				return err
			}
		}
	}
	return nil
}

// PromptGamePassPurchaseFinished handles the platform's notification that a
// game pass purchase prompt has closed
func (s *Service) PromptGamePassPurchaseFinished(ctx context.Context, userID model.UserID, pass model.GamePassID, purchased bool) error {
	grant := player.WithEntityArg(s.players, func(e *player.Entity, pass model.GamePassID) error {
		if !purchased {
			return nil
		}
		return s.GrantGamePass(ctx, e, pass)
	})
	return grant(userID, pass)
}

// GetProductInfo returns catalog metadata, cached after the first success.
// Lookups are retried with a fixed delay; if they keep failing it returns
// false rather than an error.
func (s *Service) GetProductInfo(ctx context.Context, infoType model.InfoType, id string) (*model.ProductInfo, bool) {
	key := string(infoType) + ":" + id

	s.infoMu.Lock()
	cached, ok := s.infoCache[key]
	s.infoMu.Unlock()
	if ok {
		return cached, true
	}

	v, err, _ := s.infoLoads.Do(key, func() (any, error) {
		info, err := backoff.Retry(ctx, func() (*model.ProductInfo, error) {
			info, err := s.market.GetProductInfo(ctx, id, infoType)
			if errors.Is(err, model.ErrProductNotFound) {
				return nil, backoff.Permanent(err)
			}
			if err != nil {
				s.metrics.PlatformFailure("GetProductInfo")
				return nil, err
			}
			return info, nil
		},
			backoff.WithBackOff(backoff.NewConstantBackOff(s.cfg.RetryDelay)),
			backoff.WithMaxTries(uint(max(s.cfg.RetryAttempts, 1))),
		)
		if err != nil {
			return nil, err
		}

		s.infoMu.Lock()
		s.infoCache[key] = info
		s.infoMu.Unlock()
		return info, nil
	})
	if err != nil {
		s.logger.Warn("failed to get product info",
			slog.String("product_id", id),
			slog.String("info_type", string(infoType)),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return v.(*model.ProductInfo), true
}
