// Package metrics holds the Prometheus collectors a shard exports.
package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcoot/liveshard/internal/model"
)

const namespace = "liveshard"

// Metrics groups the shard's collectors. A nil *Metrics records nothing.
type Metrics struct {
	SessionsLive     prometheus.Gauge
	Joins            *prometheus.CounterVec
	Receipts         *prometheus.CounterVec
	HandlerFaults    *prometheus.CounterVec
	CharacterRetries prometheus.Counter
	CharacterReady   prometheus.Histogram
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	PlatformFailures *prometheus.CounterVec
}

// New constructs the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{}
	var err error

	if m.SessionsLive, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_live",
		Help:      "Number of sessions with a live entity.",
	})); err != nil {
		return nil, err
	}
	if m.Joins, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "joins_total",
		Help:      "Connection attempts partitioned by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.Receipts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "receipts_total",
		Help:      "Processed purchase receipts partitioned by decision.",
	}, []string{"decision"})); err != nil {
		return nil, err
	}
	if m.HandlerFaults, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handler_faults_total",
		Help:      "Lifecycle handler errors and panics partitioned by registry.",
	}, []string{"registry"})); err != nil {
		return nil, err
	}
	if m.CharacterRetries, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "character_retries_total",
		Help:      "Character loads retried after a readiness timeout.",
	})); err != nil {
		return nil, err
	}
	if m.CharacterReady, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "character_ready_seconds",
		Help:      "Time from rig spawn to readiness.",
		Buckets:   prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if m.PlatformFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "platform_failures_total",
		Help:      "Failed platform calls partitioned by operation.",
	}, []string{"op"})); err != nil {
		return nil, err
	}
	if m.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	if m.HTTPDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Histogram of HTTP request latencies in seconds partitioned by method, route, and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector already registered
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsLive.Inc()
	m.Joins.WithLabelValues("accepted").Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.SessionsLive.Dec()
}

// JoinFailed counts a connection that never produced an entity
func (m *Metrics) JoinFailed(outcome string) {
	if m == nil {
		return
	}
	m.Joins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReceiptProcessed(decision model.PurchaseDecision) {
	if m == nil {
		return
	}
	m.Receipts.WithLabelValues(string(decision)).Inc()
}

func (m *Metrics) HandlerFault(registry string) {
	if m == nil {
		return
	}
	m.HandlerFaults.WithLabelValues(registry).Inc()
}

func (m *Metrics) CharacterRetry() {
	if m == nil {
		return
	}
	m.CharacterRetries.Inc()
}

func (m *Metrics) CharacterBecameReady(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CharacterReady.Observe(elapsed.Seconds())
}

func (m *Metrics) PlatformFailure(op string) {
	if m == nil {
		return
	}
	m.PlatformFailures.WithLabelValues(op).Inc()
}

// HTTPRequest records one served request against its route template
func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.HTTPRequests.WithLabelValues(method, route, code).Inc()
	m.HTTPDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}
