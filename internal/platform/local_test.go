package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/liveshard/internal/dependencies/mocks"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/testutil"
)

func newLocal() (*Local, *mocks.MockRandom) {
	rnd := mocks.NewMockRandom()
	return NewLocalFromCatalog(model.CatalogFor(model.EnvironmentDevelopment), rnd, testutil.NopLogger()), rnd
}

func TestCatalogSeedsProductsAndBadges(t *testing.T) {
	l, _ := newLocal()
	ctx := context.Background()

	info, err := l.GetProductInfo(ctx, "3", model.InfoTypeProduct)
	require.NoError(t, err)
	assert.Equal(t, model.ProductExample, info.Name)

	_, err = l.GetProductInfo(ctx, "3", model.InfoTypeGamePass)
	assert.ErrorIs(t, err, model.ErrProductNotFound)

	badge, err := l.GetBadgeInfo(ctx, "1")
	require.NoError(t, err)
	assert.True(t, badge.IsEnabled)
}

func TestFailNext(t *testing.T) {
	l, _ := newLocal()
	ctx := context.Background()
	l.FailNext(2)

	for range 2 {
		_, err := l.UserOwnsGamePass(ctx, 1, "1")
		assert.ErrorIs(t, err, model.ErrPlatformUnavailable)
	}
	_, err := l.UserOwnsGamePass(ctx, 1, "1")
	assert.NoError(t, err)
	assert.Equal(t, 3, l.Calls("UserOwnsGamePass"))
}

func TestFailureRateUsesRandom(t *testing.T) {
	l, rnd := newLocal()
	ctx := context.Background()
	l.SetFailureRate(30)
	rnd.QueueIntn(10, 90)

	_, err := l.UserHasBadge(ctx, 1, "1")
	assert.ErrorIs(t, err, model.ErrPlatformUnavailable)
	_, err = l.UserHasBadge(ctx, 1, "1")
	assert.NoError(t, err)
}

func TestAwardBadge(t *testing.T) {
	l, _ := newLocal()
	ctx := context.Background()
	l.AddBadge(model.BadgeInfo{ID: "off", Name: "Off", IsEnabled: false})

	ok, err := l.AwardBadge(ctx, 1, "1")
	require.NoError(t, err)
	assert.True(t, ok)
	has, _ := l.UserHasBadge(ctx, 1, "1")
	assert.True(t, has)

	ok, err = l.AwardBadge(ctx, 1, "off")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestModeration(t *testing.T) {
	l, _ := newLocal()
	ctx := context.Background()
	var hooked []Kick
	l.OnKick(func(k Kick) { hooked = append(hooked, k) })

	require.NoError(t, l.Kick(ctx, 5, "bye"))
	assert.Equal(t, []Kick{{UserID: 5, Message: "bye"}}, l.Kicks())
	assert.Equal(t, l.Kicks(), hooked)

	require.NoError(t, l.Ban(ctx, 5, "cheating", time.Hour))
	ban, ok := l.BanOf(5)
	require.True(t, ok)
	assert.Equal(t, "cheating", ban.Reason)

	require.NoError(t, l.Unban(ctx, 5))
	_, ok = l.BanOf(5)
	assert.False(t, ok)
}
