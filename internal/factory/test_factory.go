package factory

import (
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcoot/liveshard/internal/config"
	"github.com/mcoot/liveshard/internal/dependencies/mocks"
	"github.com/mcoot/liveshard/internal/model"
	"github.com/mcoot/liveshard/internal/platform"
	"github.com/mcoot/liveshard/internal/storage/memory"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock     *mocks.MockClock
	MockRandom    *mocks.MockRandom
	MemoryStorage *memory.Storage
	LocalPlatform *platform.Local
}

// TestSettings returns settings with short timeouts suitable for tests
func TestSettings() config.Config {
	return config.Config{
		Environment:          string(model.EnvironmentDevelopment),
		LogLevel:             "debug",
		StorageType:          config.StorageMemory,
		RecordCollection:     "PlayerData",
		RecordLockTTL:        5 * time.Minute,
		CharacterLoadTimeout: 200 * time.Millisecond,
		AppearanceTimeout:    100 * time.Millisecond,
		CharacterAutoLoad:    true,
		ReceiptLogSize:       50,
		NetworkRetryAttempts: 3,
		NetworkRetryDelay:    time.Millisecond,
		ShutdownTimeout:      5 * time.Second,
	}
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithSettings(TestSettings())
}

// NewTestAppWithSettings is NewTestApp with custom settings
func NewTestAppWithSettings(settings config.Config) *TestApp {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	store := memory.NewWithClock(mockClock)
	catalog := model.CatalogFor(settings.Env())
	local := platform.NewLocalFromCatalog(catalog, mockRandom, logger)
	reg := prometheus.NewRegistry()

	app, err := newWithDependencies(settings, catalog, store, mockClock, mockRandom, local, reg, reg, logger)
	if err != nil {
		panic("factory: " + err.Error())
	}

	return &TestApp{
		App:           app,
		MockClock:     mockClock,
		MockRandom:    mockRandom,
		MemoryStorage: store,
		LocalPlatform: local,
	}
}
