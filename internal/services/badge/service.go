// Package badge awards platform badges to players
package badge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mcoot/liveshard/internal/metrics"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/platform"
	"github.com/mcoot/liveshard/internal/services/datastore"
	"github.com/mcoot/liveshard/internal/services/player"
)

// Service awards badges and tracks the outcome on the player's record
type Service struct {
	catalog model.Catalog
	store   *datastore.Store
	badges  platform.Badges
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a badge service
func New(catalog model.Catalog, store *datastore.Store, badges platform.Badges, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		catalog: catalog,
		store:   store,
		badges:  badges,
		metrics: m,
		logger:  logger.With(slog.String("component", "badge")),
	}
}

// OnPlayerJoin awards the welcome badge and retries any badge whose earlier
// award did not succeed. The work runs on the session in the background.
func (s *Service) OnPlayerJoin(ctx context.Context, e *player.Entity) error {
	pending := s.unrewarded(e.UserID)
	if welcome, ok := s.catalog.Badges[model.BadgeWelcome]; ok {
		pending = append([]model.BadgeID{welcome}, pending...)
	}

	e.Janitor.Go("award badges", func(ctx context.Context) error {
		for _, b := range pending {
			if err := s.AwardBadge(ctx, e, b); err != nil {
				s.logger.Error("failed to award badge",
					slog.String("user_id", e.UserID.String()),
					slog.String("badge_id", string(b)),
					slog.String("error", err.Error()),
				)
			}
		}
		return nil
	})
	return nil
}

func (s *Service) unrewarded(id model.UserID) []model.BadgeID {
	data, ok := s.store.Get(id)
	if !ok {
		return nil
	}
	var out []model.BadgeID
	for b, awarded := range data.Achievements.Badges {
		if !awarded {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AwardBadge awards a badge unless the player already has it. The attempt
// is recorded on the player's record whether or not the platform accepted it.
func (s *Service) AwardBadge(ctx context.Context, e *player.Entity, badgeID model.BadgeID) error {
	has, err := s.CheckIfPlayerHasBadge(ctx, e, badgeID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	info, err := s.GetBadgeInfo(ctx, badgeID)
	if err != nil {
		return err
	}
	if !info.IsEnabled {
		s.logger.Warn("badge is not enabled", slog.String("badge_id", string(badgeID)))
		return nil
	}

	awarded, err := s.badges.AwardBadge(ctx, e.UserID, badgeID)
	if err != nil {
		s.metrics.PlatformFailure("AwardBadge")
		return fmt.Errorf("award badge %s: %w", badgeID, err)
	}

	log := s.logger.With(slog.String("user_id", e.UserID.String()), slog.String("badge_id", string(badgeID)))
	if awarded {
		log.Info("awarded badge")
	} else {
		log.Warn("badge award was not successful")
	}
	s.store.Update(e.UserID, model.SetBadgeStatus(badgeID, awarded))
	return nil
}

// CheckIfPlayerHasBadge trusts a successful award on the record, and
// otherwise asks the platform
func (s *Service) CheckIfPlayerHasBadge(ctx context.Context, e *player.Entity, badgeID model.BadgeID) (bool, error) {
	if data, ok := s.store.Get(e.UserID); ok && data.Achievements.Badges[badgeID] {
		return true, nil
	}
	has, err := s.badges.UserHasBadge(ctx, e.UserID, badgeID)
	if err != nil {
		s.metrics.PlatformFailure("UserHasBadge")
		return false, fmt.Errorf("check badge %s: %w", badgeID, err)
	}
	return has, nil
}

// GetBadgeInfo fetches badge metadata from the platform
func (s *Service) GetBadgeInfo(ctx context.Context, badgeID model.BadgeID) (*model.BadgeInfo, error) {
	info, err := s.badges.GetBadgeInfo(ctx, badgeID)
	if err != nil {
		s.metrics.PlatformFailure("GetBadgeInfo")
		return nil, fmt.Errorf("badge info %s: %w", badgeID, err)
	}
	return info, nil
}
