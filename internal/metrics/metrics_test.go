package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/liveshard/internal/model"
)

func TestRecordsSessionsAndReceipts(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()
	m.JoinFailed("rejected")
	m.ReceiptProcessed(model.PurchaseGranted)
	m.ReceiptProcessed(model.NotProcessedYet)
	m.ReceiptProcessed(model.PurchaseGranted)
	m.CharacterBecameReady(time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsLive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Joins.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Joins.WithLabelValues("rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Receipts.WithLabelValues("PurchaseGranted")))
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	first.CharacterRetry()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.CharacterRetries))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.ReceiptProcessed(model.PurchaseGranted)
		m.HandlerFault("joins")
		m.PlatformFailure("AwardBadge")
	})
}
