package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/internal/core/domain"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)

	p.RecordSignal(domain.SignalOffer)
	p.RecordSignal(domain.SignalOffer)
	p.RecordSignal(domain.SignalCandidate)
	p.RecordPoll(3)
	p.RecordPoll(0)
	p.SetActiveUsers("voice", 4)
	p.RecordMessagePosted(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.signalsRelayed.WithLabelValues("offer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.signalsRelayed.WithLabelValues("candidate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.polls))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.signalsDelivered))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.activeUsers.WithLabelValues("voice")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.messagesPosted.WithLabelValues("true")))

	// a second collector on its own registry must not collide
	assert.NotPanics(t, func() { NewPrometheusCollector(prometheus.NewRegistry()) })
}

func TestHealthChecker(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("ok", func(ctx context.Context) error { return nil }, 0, time.Second)

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.True(t, h.IsReady(context.Background()))

	open := true
	h.AddBreakerCheck(func() bool { return open }, 0)
	h.AddCheck("db", func(ctx context.Context) error { return errors.New("locked") }, 0, time.Second)

	status = h.CheckAll(context.Background())
	require.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "locked", status.Checks["db"])
	assert.Equal(t, "circuit open", status.Checks["store_circuit"])
	assert.Equal(t, StatusHealthy, status.Checks["ok"])

	last := h.LastStatus()
	assert.Equal(t, StatusUnhealthy, last.Status)
	assert.Len(t, last.Checks, 3)
}
