package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/liveshard/internal/dependencies/mocks"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/platform"
	"github.com/mcoot/liveshard/internal/services/datastore"
	"github.com/mcoot/liveshard/internal/services/records"
	"github.com/mcoot/liveshard/internal/storage"
	"github.com/mcoot/liveshard/internal/storage/memory"
	"github.com/mcoot/liveshard/internal/testutil"
)

// gatedStorage blocks record reads until released
type gatedStorage struct {
	*memory.Storage
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStorage) GetRecord(ctx context.Context, collection string, id model.UserID) (*model.StoredRecord, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Storage.GetRecord(ctx, collection, id)
}

type ManagerSuite struct {
	suite.Suite
	storage  *memory.Storage
	store    *datastore.Store
	platform *platform.Local
	clock    *mocks.MockClock
	manager  *Manager
	ctx      context.Context
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.storage = memory.NewWithClock(s.clock)
	s.ctx = context.Background()
	s.build(s.storage)
}

func (s *ManagerSuite) build(backend storage.Storage) {
	logger := testutil.NopLogger()
	s.store = datastore.New()
	s.platform = platform.NewLocal(mocks.NewMockRandom(), logger)
	collection := records.New(backend, records.DefaultConfig(), s.clock, logger)
	s.manager = NewManager(
		Config{HoldOpen: true},
		collection,
		s.store,
		NewRemoval(s.platform, logger),
		s.clock,
		nil,
		logger,
	)
}

func (s *ManagerSuite) TearDownTest() {
	_ = s.manager.Shutdown(s.ctx)
}

func (s *ManagerSuite) connect(id model.UserID) *Entity {
	s.Require().NoError(s.manager.OnConnect(s.ctx, model.User{ID: id, Name: "player"}))
	e, ok := s.manager.GetEntity(id)
	s.Require().True(ok)
	return e
}

func (s *ManagerSuite) TestConnectCreatesEntityWithDefaultData() {
	e := s.connect(1)

	s.Equal(model.UserID(1), e.UserID)
	s.Equal(s.clock.Now(), e.JoinedAt)
	s.Equal(int64(0), e.Document.Read().Balance.Money)

	got, err := s.manager.GetEntityAsync(s.ctx, 1)
	s.Require().NoError(err)
	s.Same(e, got)

	cached, ok := s.store.Get(1)
	s.True(ok)
	s.Equal(e.Document.Read(), cached)
}

func (s *ManagerSuite) TestJoinHandlersRunOnceWithFailuresIsolated() {
	var mu sync.Mutex
	var order []string
	record := func(name string) JoinFunc {
		return func(context.Context, *Entity) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	s.manager.Joins().Register("late", 5, record("late"))
	s.manager.Joins().Register("failing", 0, JoinFunc(func(context.Context, *Entity) error {
		return errors.New("boom")
	}))
	s.manager.Joins().Register("early", 1, record("early"))
	s.manager.Joins().Register("panics", 2, JoinFunc(func(context.Context, *Entity) error {
		panic("bad handler")
	}))
	s.manager.Joins().Register("middle", 3, record("middle"))

	s.connect(1)

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, time.Second, 5*time.Millisecond)
	s.ElementsMatch([]string{"early", "middle", "late"}, order)
}

func (s *ManagerSuite) TestSuspendedJoinHandlerDoesNotDelayLaterOnes() {
	release := make(chan struct{})
	defer close(release)
	later := make(chan struct{})
	s.manager.Joins().Register("suspends", 0, JoinFunc(func(ctx context.Context, _ *Entity) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))
	s.manager.Joins().Register("later", 1, JoinFunc(func(context.Context, *Entity) error {
		close(later)
		return nil
	}))

	s.connect(1)

	s.Eventually(func() bool {
		select {
		case <-later:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func (s *ManagerSuite) TestImmediateDisconnectStillRunsEveryJoinHandler() {
	var mu sync.Mutex
	var visible []bool
	for _, id := range []string{"a", "b"} {
		s.manager.Joins().Register(id, 1, JoinFunc(func(_ context.Context, e *Entity) error {
			got, ok := s.manager.GetEntity(e.UserID)
			mu.Lock()
			defer mu.Unlock()
			visible = append(visible, ok && got == e)
			return nil
		}))
	}

	s.Require().NoError(s.manager.OnConnect(s.ctx, model.User{ID: 1}))
	s.Require().NoError(s.manager.OnDisconnect(s.ctx, 1))

	mu.Lock()
	defer mu.Unlock()
	s.Len(visible, 2)
}

func (s *ManagerSuite) TestLoadFailureRejectsAndKicks() {
	s.storage.FailLoads(errors.New("datastore down"))

	err := s.manager.OnConnect(s.ctx, model.User{ID: 1, Name: "player"})
	s.ErrorIs(err, model.ErrJoinRejected)

	_, ok := s.manager.GetEntity(1)
	s.False(ok)
	s.False(s.manager.IsConnected(1))
	s.Equal([]platform.Kick{{UserID: 1, Message: model.KickPlayerProfileUndefined.Message()}}, s.platform.Kicks())

	_, err = s.manager.GetEntityAsync(s.ctx, 1)
	s.ErrorIs(err, model.ErrNotConnected)
}

func (s *ManagerSuite) TestDuplicateConnectRejected() {
	s.connect(1)
	s.ErrorIs(s.manager.OnConnect(s.ctx, model.User{ID: 1}), model.ErrAlreadyConnected)
}

func (s *ManagerSuite) TestDisconnectPersistsMirroredWrites() {
	e := s.connect(1)

	_, ok := s.store.Update(1, model.AddBalance(30))
	s.Require().True(ok)
	s.Equal(int64(30), e.Document.Read().Balance.Money)

	s.Require().NoError(s.manager.OnDisconnect(s.ctx, 1))

	rec, err := s.storage.GetRecord(s.ctx, "PlayerData", 1)
	s.Require().NoError(err)
	s.Equal(int64(30), rec.Data.Balance.Money)

	_, cached := s.store.Get(1)
	s.False(cached)
	_, ok = s.manager.GetEntity(1)
	s.False(ok)
	s.True(e.Janitor.Done())
}

func (s *ManagerSuite) TestLeaveHandlersSettleBeforeTeardown() {
	var mu sync.Mutex
	var seen []bool
	for _, id := range []string{"a", "b", "c"} {
		s.manager.Leaves().Register(id, 1, LeaveFunc(func(ctx context.Context, e *Entity) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, e.Document.Closed())
			if id == "b" {
				return errors.New("leave failed")
			}
			return nil
		}))
	}
	s.manager.Leaves().Register("slow", 1, LeaveFunc(func(ctx context.Context, e *Entity) error {
		time.Sleep(20 * time.Millisecond)
		s.store.Update(e.UserID, model.AddBalance(1))
		return nil
	}))

	s.connect(1)
	s.Require().NoError(s.manager.OnDisconnect(s.ctx, 1))

	s.Equal([]bool{false, false, false}, seen)
	rec, err := s.storage.GetRecord(s.ctx, "PlayerData", 1)
	s.Require().NoError(err)
	s.Equal(int64(1), rec.Data.Balance.Money)
}

func (s *ManagerSuite) TestDisconnectUnknownPlayerIsIgnored() {
	s.NoError(s.manager.OnDisconnect(s.ctx, 99))
}

func (s *ManagerSuite) TestGetEntityAsyncWaitsForJoin() {
	gated := &gatedStorage{Storage: s.storage, entered: make(chan struct{}, 1), release: make(chan struct{})}
	s.build(gated)

	connected := make(chan error, 1)
	go func() { connected <- s.manager.OnConnect(s.ctx, model.User{ID: 1}) }()
	<-gated.entered

	got := make(chan *Entity, 1)
	go func() {
		e, err := s.manager.GetEntityAsync(s.ctx, 1)
		s.NoError(err)
		got <- e
	}()

	close(gated.release)
	s.Require().NoError(<-connected)
	e := <-got
	s.Require().NotNil(e)
	s.Equal(model.UserID(1), e.UserID)
}

func (s *ManagerSuite) TestDisconnectBeforeReady() {
	gated := &gatedStorage{Storage: s.storage, entered: make(chan struct{}, 1), release: make(chan struct{})}
	s.build(gated)
	joined := false
	s.manager.Joins().Register("join", 1, JoinFunc(func(context.Context, *Entity) error {
		joined = true
		return nil
	}))

	connected := make(chan error, 1)
	go func() { connected <- s.manager.OnConnect(s.ctx, model.User{ID: 1}) }()
	<-gated.entered

	waited := make(chan error, 1)
	go func() {
		e, err := s.manager.GetEntityAsync(s.ctx, 1)
		s.Nil(e)
		waited <- err
	}()

	s.Require().NoError(s.manager.OnDisconnect(s.ctx, 1))
	s.ErrorIs(<-waited, model.ErrDisconnectedBeforeReady)

	close(gated.release)
	s.ErrorIs(<-connected, model.ErrDisconnectedBeforeReady)

	s.False(s.manager.IsConnected(1))
	s.False(joined)
	_, locked := s.storage.LockOwner("PlayerData", 1)
	s.False(locked)
	_, cached := s.store.Get(1)
	s.False(cached)
}

func (s *ManagerSuite) TestReconnectReplacesAbandonedJoin() {
	gated := &gatedStorage{Storage: s.storage, entered: make(chan struct{}, 1), release: make(chan struct{})}
	s.build(gated)

	first := make(chan error, 1)
	go func() { first <- s.manager.OnConnect(s.ctx, model.User{ID: 1}) }()
	<-gated.entered
	s.Require().NoError(s.manager.OnDisconnect(s.ctx, 1))
	s.False(s.manager.IsConnected(1))

	second := make(chan error, 1)
	go func() { second <- s.manager.OnConnect(s.ctx, model.User{ID: 1, Name: "again"}) }()
	s.Require().Eventually(func() bool { return s.manager.IsConnected(1) }, time.Second, time.Millisecond)

	close(gated.release)
	s.ErrorIs(<-first, model.ErrDisconnectedBeforeReady)
	<-gated.entered
	s.Require().NoError(<-second)

	e, ok := s.manager.GetEntity(1)
	s.Require().True(ok)
	s.Equal("again", e.Name)
	s.False(e.Document.Closed())
	_, cached := s.store.Get(1)
	s.True(cached)
}

func (s *ManagerSuite) TestReconnectGivesUpWhenContextEnds() {
	gated := &gatedStorage{Storage: s.storage, entered: make(chan struct{}, 1), release: make(chan struct{})}
	s.build(gated)

	first := make(chan error, 1)
	go func() { first <- s.manager.OnConnect(s.ctx, model.User{ID: 1}) }()
	<-gated.entered
	s.Require().NoError(s.manager.OnDisconnect(s.ctx, 1))

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Millisecond)
	defer cancel()
	s.ErrorIs(s.manager.OnConnect(ctx, model.User{ID: 1}), context.DeadlineExceeded)
	s.False(s.manager.IsConnected(1))

	close(gated.release)
	s.ErrorIs(<-first, model.ErrDisconnectedBeforeReady)
}

func (s *ManagerSuite) TestGetEntityAsyncRespectsContext() {
	gated := &gatedStorage{Storage: s.storage, entered: make(chan struct{}, 1), release: make(chan struct{})}
	s.build(gated)

	connected := make(chan error, 1)
	go func() { connected <- s.manager.OnConnect(s.ctx, model.User{ID: 1}) }()
	<-gated.entered

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Millisecond)
	defer cancel()
	_, err := s.manager.GetEntityAsync(ctx, 1)
	s.ErrorIs(err, context.DeadlineExceeded)

	close(gated.release)
	s.NoError(<-connected)
}

func (s *ManagerSuite) TestShutdownDrainsAndRejects() {
	s.connect(1)
	s.connect(2)
	s.store.Update(2, model.AddBalance(9))

	s.Require().NoError(s.manager.Shutdown(s.ctx))

	s.Empty(s.manager.Entities())
	s.ErrorIs(s.manager.OnConnect(s.ctx, model.User{ID: 3}), model.ErrShuttingDown)
	rec, err := s.storage.GetRecord(s.ctx, "PlayerData", 2)
	s.Require().NoError(err)
	s.Equal(int64(9), rec.Data.Balance.Money)
}

func (s *ManagerSuite) TestWithEntity() {
	s.connect(1)
	name := WithEntity(s.manager, func(e *Entity) string { return e.Name })

	s.Equal("player", name(1))
	s.Equal("", name(2))

	add := WithEntityArg(s.manager, func(e *Entity, n int) int { return int(e.UserID) + n })
	s.Equal(3, add(1, 2))
	s.Equal(0, add(5, 2))
}

func (s *ManagerSuite) TestExclusiveSerializes() {
	e := s.connect(1)
	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Exclusive(func() {
				mu.Lock()
				active++
				maxActive = max(maxActive, active)
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	s.Equal(1, maxActive)
}
