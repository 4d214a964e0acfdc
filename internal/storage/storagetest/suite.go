// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/storage"
)

const collection = "PlayerData"

// Suite runs backend-independent storage tests. Embed it and set NewStorage.
type Suite struct {
	suite.Suite
	NewStorage func() storage.Storage

	Storage storage.Storage
	Ctx     context.Context
}

func (s *Suite) SetupTest() {
	s.Storage = s.NewStorage()
	s.Ctx = context.Background()
}

func (s *Suite) TearDownTest() {
	if s.Storage != nil {
		_ = s.Storage.Close()
	}
}

func (s *Suite) record(id model.UserID, money int64) *model.StoredRecord {
	data := model.DefaultPlayerData()
	data.Balance.Money = money
	data.Mtx.ReceiptHistory = []string{"a", "b"}
	return &model.StoredRecord{
		UserID:    id,
		Data:      data,
		OwnerTags: []model.UserID{id},
		UpdatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *Suite) TestGetRecordNotFound() {
	_, err := s.Storage.GetRecord(s.Ctx, collection, 1)
	s.ErrorIs(err, model.ErrRecordNotFound)
}

func (s *Suite) TestSaveAndGetRecord() {
	s.Require().NoError(s.Storage.AcquireLock(s.Ctx, collection, 1, "shard-a", time.Minute))
	s.Require().NoError(s.Storage.SaveRecord(s.Ctx, collection, s.record(1, 250), "shard-a"))

	got, err := s.Storage.GetRecord(s.Ctx, collection, 1)
	s.Require().NoError(err)
	s.Equal(model.UserID(1), got.UserID)
	s.Equal(int64(250), got.Data.Balance.Money)
	s.Equal([]string{"a", "b"}, got.Data.Mtx.ReceiptHistory)
	s.Equal([]model.UserID{1}, got.OwnerTags)
	s.True(got.UpdatedAt.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func (s *Suite) TestCollectionsAreSeparate() {
	s.Require().NoError(s.Storage.SaveRecord(s.Ctx, collection, s.record(1, 10), "shard-a"))

	_, err := s.Storage.GetRecord(s.Ctx, "Other", 1)
	s.ErrorIs(err, model.ErrRecordNotFound)
}

func (s *Suite) TestLockConflict() {
	s.Require().NoError(s.Storage.AcquireLock(s.Ctx, collection, 1, "shard-a", time.Minute))

	err := s.Storage.AcquireLock(s.Ctx, collection, 1, "shard-b", time.Minute)
	s.ErrorIs(err, model.ErrRecordLocked)
}

func (s *Suite) TestLockSameOwnerExtends() {
	s.Require().NoError(s.Storage.AcquireLock(s.Ctx, collection, 1, "shard-a", time.Minute))
	s.NoError(s.Storage.AcquireLock(s.Ctx, collection, 1, "shard-a", time.Hour))
}

func (s *Suite) TestReleaseAllowsOtherOwner() {
	s.Require().NoError(s.Storage.AcquireLock(s.Ctx, collection, 1, "shard-a", time.Minute))
	s.Require().NoError(s.Storage.ReleaseLock(s.Ctx, collection, 1, "shard-a"))

	s.NoError(s.Storage.AcquireLock(s.Ctx, collection, 1, "shard-b", time.Minute))
}

func (s *Suite) TestReleaseByNonOwnerIsNoop() {
	s.Require().NoError(s.Storage.AcquireLock(s.Ctx, collection, 1, "shard-a", time.Minute))
	s.Require().NoError(s.Storage.ReleaseLock(s.Ctx, collection, 1, "shard-b"))

	err := s.Storage.AcquireLock(s.Ctx, collection, 1, "shard-b", time.Minute)
	s.ErrorIs(err, model.ErrRecordLocked)
}

func (s *Suite) TestSaveRefusedWhileOtherOwnerHoldsLock() {
	s.Require().NoError(s.Storage.AcquireLock(s.Ctx, collection, 1, "shard-a", time.Minute))

	err := s.Storage.SaveRecord(s.Ctx, collection, s.record(1, 999), "shard-b")
	s.ErrorIs(err, model.ErrRecordLocked)

	_, err = s.Storage.GetRecord(s.Ctx, collection, 1)
	s.ErrorIs(err, model.ErrRecordNotFound)
}

func (s *Suite) TestSaveOverwrites() {
	s.Require().NoError(s.Storage.SaveRecord(s.Ctx, collection, s.record(1, 1), "shard-a"))
	s.Require().NoError(s.Storage.SaveRecord(s.Ctx, collection, s.record(1, 2), "shard-a"))

	got, err := s.Storage.GetRecord(s.Ctx, collection, 1)
	s.Require().NoError(err)
	s.Equal(int64(2), got.Data.Balance.Money)
}
