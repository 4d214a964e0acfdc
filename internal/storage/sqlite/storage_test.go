package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/liveshard/internal/dependencies/mocks"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/storage"
	"github.com/mcoot/liveshard/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.Suite
	clock *mocks.MockClock
}

func TestStorageSuite(t *testing.T) {
	s := new(StorageSuite)
	s.NewStorage = func() storage.Storage {
		s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
		st, err := Open(filepath.Join(s.T().TempDir(), "records.db"), s.clock)
		s.Require().NoError(err)
		return st
	}
	suite.Run(t, s)
}

func (s *StorageSuite) TestExpiredLockCanBeTaken() {
	s.Require().NoError(s.Storage.AcquireLock(s.Ctx, "PlayerData", 1, "shard-a", time.Minute))
	s.clock.Advance(time.Minute)

	s.NoError(s.Storage.AcquireLock(s.Ctx, "PlayerData", 1, "shard-b", time.Minute))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ", mocks.NewMockClock(time.Now()))
	require.Error(t, err)
}

func TestReopenKeepsRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	st, err := Open(path, clk)
	require.NoError(t, err)
	data := model.DefaultPlayerData()
	data.Balance.Money = 75
	require.NoError(t, st.SaveRecord(ctx, "PlayerData", &model.StoredRecord{UserID: 3, Data: data}, "shard-a"))
	require.NoError(t, st.Close())

	st, err = Open(path, clk)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.GetRecord(ctx, "PlayerData", 3)
	require.NoError(t, err)
	require.Equal(t, int64(75), got.Data.Balance.Money)
}
