package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/liveshard/internal/dependencies/random"
	"github.com/mcoot/liveshard/internal/model"
)

// Kick is a recorded moderation kick
type Kick struct {
	UserID  model.UserID
	Message string
}

// Ban is a recorded moderation ban
type Ban struct {
	UserID   model.UserID
	Reason   string
	Duration time.Duration
}

// Local is an in-process Platform used for development and tests.
// Every call can be made to fail, either the next n calls or a percentage.
type Local struct {
	mu     sync.Mutex
	random random.Random
	logger *slog.Logger

	products   map[model.InfoType]map[string]model.ProductInfo
	passOwners map[model.GamePassID]map[model.UserID]bool
	badges     map[model.BadgeID]model.BadgeInfo
	awarded    map[model.UserID]map[model.BadgeID]bool
	kicks      []Kick
	bans       map[model.UserID]Ban
	calls      map[string]int

	failNext    int
	failureRate int
	onKick      func(Kick)
}

// Ensure Local implements the interface
var _ Platform = (*Local)(nil)

// NewLocal creates an empty local platform
func NewLocal(rnd random.Random, logger *slog.Logger) *Local {
	return &Local{
		random: rnd,
		logger: logger.With(slog.String("component", "local-platform")),
		products: map[model.InfoType]map[string]model.ProductInfo{
			model.InfoTypeProduct:  {},
			model.InfoTypeGamePass: {},
		},
		passOwners: make(map[model.GamePassID]map[model.UserID]bool),
		badges:     make(map[model.BadgeID]model.BadgeInfo),
		awarded:    make(map[model.UserID]map[model.BadgeID]bool),
		bans:       make(map[model.UserID]Ban),
		calls:      make(map[string]int),
	}
}

// NewLocalFromCatalog creates a local platform that knows every catalog entry
func NewLocalFromCatalog(catalog model.Catalog, rnd random.Random, logger *slog.Logger) *Local {
	l := NewLocal(rnd, logger)
	for name, id := range catalog.Products {
		l.AddProduct(model.ProductInfo{ID: string(id), Type: model.InfoTypeProduct, Name: name, Price: 10, IsForSale: true})
	}
	for name, id := range catalog.GamePasses {
		l.AddProduct(model.ProductInfo{ID: string(id), Type: model.InfoTypeGamePass, Name: name, Price: 100, IsForSale: true})
	}
	for name, id := range catalog.Badges {
		l.AddBadge(model.BadgeInfo{ID: id, Name: name, IsEnabled: true})
	}
	return l
}

// AddProduct registers catalog metadata for a product or game pass
func (l *Local) AddProduct(info model.ProductInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.products[info.Type][info.ID] = info
}

// AddBadge registers a badge
func (l *Local) AddBadge(info model.BadgeInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.badges[info.ID] = info
}

// SetGamePassOwner grants or revokes ownership of a pass
func (l *Local) SetGamePassOwner(passID model.GamePassID, userID model.UserID, owned bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owners, ok := l.passOwners[passID]
	if !ok {
		owners = make(map[model.UserID]bool)
		l.passOwners[passID] = owners
	}
	if owned {
		owners[userID] = true
	} else {
		delete(owners, userID)
	}
}

// FailNext makes the next n calls fail
func (l *Local) FailNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = n
}

// SetFailureRate makes roughly pct percent of calls fail
func (l *Local) SetFailureRate(pct int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failureRate = pct
}

// OnKick sets a hook called after every kick
func (l *Local) OnKick(fn func(Kick)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onKick = fn
}

// Kicks returns every recorded kick
func (l *Local) Kicks() []Kick {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Kick(nil), l.kicks...)
}

// BanOf returns the active ban for a user, if any
func (l *Local) BanOf(userID model.UserID) (Ban, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bans[userID]
	return b, ok
}

// Calls returns how many times the named operation was invoked
func (l *Local) Calls(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

// begin records a call and decides whether it fails. Must hold mu.
func (l *Local) begin(ctx context.Context, op string) error {
	l.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.failNext > 0 {
		l.failNext--
		return fmt.Errorf("%s: %w", op, model.ErrPlatformUnavailable)
	}
	if l.failureRate > 0 && l.random.Intn(100) < l.failureRate {
		return fmt.Errorf("%s: %w", op, model.ErrPlatformUnavailable)
	}
	return nil
}

func (l *Local) GetProductInfo(ctx context.Context, id string, infoType model.InfoType) (*model.ProductInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "GetProductInfo"); err != nil {
		return nil, err
	}
	info, ok := l.products[infoType][id]
	if !ok {
		return nil, model.ErrProductNotFound
	}
	return &info, nil
}

func (l *Local) UserOwnsGamePass(ctx context.Context, userID model.UserID, passID model.GamePassID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "UserOwnsGamePass"); err != nil {
		return false, err
	}
	return l.passOwners[passID][userID], nil
}

func (l *Local) UserHasBadge(ctx context.Context, userID model.UserID, badgeID model.BadgeID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "UserHasBadge"); err != nil {
		return false, err
	}
	return l.awarded[userID][badgeID], nil
}

func (l *Local) GetBadgeInfo(ctx context.Context, badgeID model.BadgeID) (*model.BadgeInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "GetBadgeInfo"); err != nil {
		return nil, err
	}
	info, ok := l.badges[badgeID]
	if !ok {
		return nil, model.ErrBadgeNotFound
	}
	return &info, nil
}

func (l *Local) AwardBadge(ctx context.Context, userID model.UserID, badgeID model.BadgeID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "AwardBadge"); err != nil {
		return false, err
	}
	info, ok := l.badges[badgeID]
	if !ok || !info.IsEnabled {
		return false, nil
	}
	if l.awarded[userID] == nil {
		l.awarded[userID] = make(map[model.BadgeID]bool)
	}
	l.awarded[userID][badgeID] = true
	return true, nil
}

func (l *Local) Kick(ctx context.Context, userID model.UserID, message string) error {
	l.mu.Lock()
	if err := l.begin(ctx, "Kick"); err != nil {
		l.mu.Unlock()
		return err
	}
	k := Kick{UserID: userID, Message: message}
	l.kicks = append(l.kicks, k)
	hook := l.onKick
	l.mu.Unlock()

	l.logger.Info("user kicked", slog.String("user_id", userID.String()), slog.String("message", message))
	if hook != nil {
		hook(k)
	}
	return nil
}

func (l *Local) Ban(ctx context.Context, userID model.UserID, reason string, duration time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "Ban"); err != nil {
		return err
	}
	l.bans[userID] = Ban{UserID: userID, Reason: reason, Duration: duration}
	return nil
}

func (l *Local) Unban(ctx context.Context, userID model.UserID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx, "Unban"); err != nil {
		return err
	}
	delete(l.bans, userID)
	return nil
}
