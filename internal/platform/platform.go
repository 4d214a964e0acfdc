// Package platform defines the external services a shard calls out to:
// the marketplace, the badge service and moderation.
package platform

import (
	"context"
	"time"

	"github.com/mcoot/liveshard/internal/model"
)

// Marketplace answers catalog and ownership queries
type Marketplace interface {
	GetProductInfo(ctx context.Context, id string, infoType model.InfoType) (*model.ProductInfo, error)
	UserOwnsGamePass(ctx context.Context, userID model.UserID, passID model.GamePassID) (bool, error)
}

// Badges awards and queries achievement badges
type Badges interface {
	UserHasBadge(ctx context.Context, userID model.UserID, badgeID model.BadgeID) (bool, error)
	GetBadgeInfo(ctx context.Context, badgeID model.BadgeID) (*model.BadgeInfo, error)
	// AwardBadge reports whether the badge was awarded
	AwardBadge(ctx context.Context, userID model.UserID, badgeID model.BadgeID) (bool, error)
}

// Moderation removes users from the shard
type Moderation interface {
	Kick(ctx context.Context, userID model.UserID, message string) error
	Ban(ctx context.Context, userID model.UserID, reason string, duration time.Duration) error
	Unban(ctx context.Context, userID model.UserID) error
}

// Platform aggregates every external service
type Platform interface {
	Marketplace
	Badges
	Moderation
}
