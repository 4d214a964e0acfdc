package character

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/liveshard/internal/dependencies/mocks"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/platform"
	"github.com/mcoot/liveshard/internal/services/datastore"
	"github.com/mcoot/liveshard/internal/services/player"
	"github.com/mcoot/liveshard/internal/services/records"
	"github.com/mcoot/liveshard/internal/storage/memory"
	"github.com/mcoot/liveshard/internal/testutil"
	"github.com/mcoot/liveshard/internal/world"
)

type ServiceSuite struct {
	suite.Suite
	world   *world.World
	players *player.Manager
	service *Service
	logs    *testutil.LogBuffer
	ctx     context.Context

	mu      sync.Mutex
	added   []*world.Rig
	removed int
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.added = nil
	s.removed = 0
	s.setup(Config{
		LoadTimeout:       50 * time.Millisecond,
		AppearanceTimeout: 30 * time.Millisecond,
		AutoLoad:          false,
	})
}

func (s *ServiceSuite) setup(cfg Config) {
	logger, logs := testutil.CapturingLogger()
	s.logs = logs
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	local := platform.NewLocal(mocks.NewMockRandom(), logger)

	s.world = world.New(logger)
	s.players = player.NewManager(
		player.Config{HoldOpen: true},
		records.New(memory.NewWithClock(clk), records.DefaultConfig(), clk, logger),
		datastore.New(),
		player.NewRemoval(local, logger),
		clk,
		nil,
		logger,
	)
	s.service = New(cfg, s.world, clk, nil, logger)
	s.players.Joins().Register("character", 1, s.service)
	s.players.Leaves().Register("character", 1, s.service)

	s.service.Added().Register("record", 1, AddedFunc(func(_ context.Context, rig *world.Rig, _ *player.Entity) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.added = append(s.added, rig)
		return nil
	}))
	s.service.Removed().Register("record", 1, RemovedFunc(func(context.Context, *player.Entity) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.removed++
		return nil
	}))
}

func (s *ServiceSuite) TearDownTest() {
	_ = s.players.Shutdown(s.ctx)
}

func (s *ServiceSuite) join(id model.UserID) {
	s.Require().NoError(s.players.OnConnect(s.ctx, model.User{ID: id, Name: "player"}))
	s.Require().Eventually(func() bool {
		_, ok := s.trackerExists(id)
		return ok
	}, time.Second, time.Millisecond)
}

func (s *ServiceSuite) trackerExists(id model.UserID) (*tracker, bool) {
	s.service.mu.Lock()
	defer s.service.mu.Unlock()
	t, ok := s.service.trackers[id]
	return t, ok
}

func (s *ServiceSuite) awaitState(id model.UserID, want State) {
	s.Require().Eventually(func() bool {
		got, ok := s.service.State(id)
		return ok && got == want
	}, time.Second, time.Millisecond, "state never became %s", want)
}

func (s *ServiceSuite) addedRigs() []*world.Rig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*world.Rig(nil), s.added...)
}

func (s *ServiceSuite) removedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed
}

func (s *ServiceSuite) awaitReady(id model.UserID) *world.Rig {
	ctx, cancel := context.WithTimeout(s.ctx, time.Second)
	defer cancel()
	rig, err := s.service.AwaitReady(ctx, id)
	s.Require().NoError(err)
	return rig
}

func (s *ServiceSuite) TestAutoLoadReachesReady() {
	s.setup(Config{LoadTimeout: 50 * time.Millisecond, AppearanceTimeout: 30 * time.Millisecond, AutoLoad: true})
	s.join(1)

	rig := s.awaitReady(1)
	st, _ := s.service.State(1)
	s.Equal(StateReady, st)
	s.True(rig.HasTag(TagPlayerCharacter))
	s.Equal(CollisionGroupCharacter, rig.CollisionGroup())
	s.Eventually(func() bool { return len(s.addedRigs()) == 1 }, time.Second, time.Millisecond)
	s.Same(rig, s.addedRigs()[0])
	s.Eventually(func() bool { return rig.PartHasTag("Head", TagPlayerHead) }, time.Second, time.Millisecond)
}

func (s *ServiceSuite) TestExistingRigIsPickedUpOnJoin() {
	rig := s.world.Spawn(1, world.FullCharacter()...)
	s.join(1)

	s.Same(rig, s.awaitReady(1))
	s.Equal(0, s.world.LoadCount(1))
}

func (s *ServiceSuite) TestIncompleteRigRetriesWithFreshRig() {
	s.join(1)

	partial := s.world.Spawn(1, world.Part{Name: "Humanoid", Class: world.ClassHumanoid})
	s.awaitState(1, StateLoading)

	rig := s.awaitReady(1)
	s.NotSame(partial, rig)
	s.False(partial.Attached())
	s.Equal(1, s.world.LoadCount(1))
	s.Eventually(func() bool { return len(s.addedRigs()) == 1 }, time.Second, time.Millisecond)
	s.Same(rig, s.addedRigs()[0])
	s.Equal(0, s.removedCount())
}

func (s *ServiceSuite) TestRigNeverReadyWithoutFullSchema() {
	s.world.SetRigFactory(func(model.UserID) ([]world.Part, bool) {
		return []world.Part{{Name: "Head", Class: world.ClassHumanoid}}, true
	})
	s.join(1)
	s.world.Spawn(1)

	s.Eventually(func() bool { return s.world.LoadCount(1) >= 2 }, time.Second, time.Millisecond)
	_, ready := s.service.GetCharacterRig(1)
	s.False(ready)
	s.Empty(s.addedRigs())
}

func (s *ServiceSuite) TestDetachWhileLoadingFiresNoHandlers() {
	s.join(1)
	s.world.Spawn(1, world.Part{Name: "Humanoid", Class: world.ClassHumanoid})
	s.awaitState(1, StateLoading)

	s.world.Detach(1)
	s.awaitState(1, StateRemoved)

	time.Sleep(80 * time.Millisecond)
	s.Empty(s.addedRigs())
	s.Equal(0, s.removedCount())
	s.Equal(0, s.world.LoadCount(1))
}

func (s *ServiceSuite) TestDetachAfterReadyFiresRemovedOnce() {
	s.join(1)
	rig := s.world.Spawn(1, world.FullCharacter()...)
	s.awaitReady(1)

	s.world.Detach(1)
	s.awaitState(1, StateRemoved)
	s.Eventually(func() bool { return s.removedCount() == 1 }, time.Second, time.Millisecond)

	_, ok := s.service.GetCharacterRig(1)
	s.False(ok)
	s.Equal("Default", rig.CollisionGroup())
	s.False(rig.HasTag(TagPlayerCharacter))

	time.Sleep(20 * time.Millisecond)
	s.Equal(1, s.removedCount())
}

func (s *ServiceSuite) TestReplacingReadyRig() {
	s.join(1)
	first := s.world.Spawn(1, world.FullCharacter()...)
	s.Same(first, s.awaitReady(1))

	second := s.world.Spawn(1, world.FullCharacter()...)
	s.Eventually(func() bool {
		rig, ok := s.service.GetCharacterRig(1)
		return ok && rig == second
	}, time.Second, time.Millisecond)
	s.Eventually(func() bool { return s.removedCount() == 1 }, time.Second, time.Millisecond)
	s.Eventually(func() bool { return len(s.addedRigs()) == 2 }, time.Second, time.Millisecond)
}

func (s *ServiceSuite) TestLeaveFiresRemovedBeforeTeardown() {
	s.join(1)
	rig := s.world.Spawn(1, world.FullCharacter()...)
	s.awaitReady(1)

	s.Require().NoError(s.players.OnDisconnect(s.ctx, 1))

	s.Equal(1, s.removedCount())
	s.False(rig.Attached())
	_, tracked := s.trackerExists(1)
	s.False(tracked)
}

func (s *ServiceSuite) TestDisconnectCancelsPendingValidation() {
	s.join(1)
	rig := s.world.Spawn(1)
	s.awaitState(1, StateLoading)

	s.Require().NoError(s.players.OnDisconnect(s.ctx, 1))
	rig.AddPart(world.Part{Name: "Humanoid", Class: world.ClassHumanoid})

	time.Sleep(80 * time.Millisecond)
	s.Empty(s.addedRigs())
	s.Equal(0, s.world.LoadCount(1))
}

func (s *ServiceSuite) TestAppearanceTimeoutIsNotFatal() {
	s.world.SetRigFactory(func(model.UserID) ([]world.Part, bool) {
		return world.FullCharacter(), false
	})
	s.join(1)
	rig, err := s.world.LoadCharacter(s.ctx, 1)
	s.Require().NoError(err)

	s.Same(rig, s.awaitReady(1))
	s.Eventually(func() bool { return s.logs.Contains("character appearance did not load") }, time.Second, time.Millisecond)
	s.False(rig.PartHasTag("Head", TagPlayerHead))
	st, _ := s.service.State(1)
	s.Equal(StateReady, st)
}

func (s *ServiceSuite) TestWithRig() {
	s.join(1)
	s.world.Spawn(1, world.FullCharacter()...)
	s.awaitReady(1)

	id := WithRig(s.service, func(r *world.Rig) string { return r.ID() })
	s.NotEmpty(id(1))
	s.Empty(id(2))
}

func (s *ServiceSuite) TestAddedHandlersDoNotWaitOnEarlierOnes() {
	release := make(chan struct{})
	defer close(release)
	s.service.Added().Register("suspends", 0, AddedFunc(func(ctx context.Context, _ *world.Rig, _ *player.Entity) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))

	s.join(1)
	rig := s.world.Spawn(1, world.FullCharacter()...)
	s.Same(rig, s.awaitReady(1))

	s.Eventually(func() bool { return len(s.addedRigs()) == 1 }, time.Second, time.Millisecond)
}
