package monitoring

import (
	"context"
	"errors"
	"time"
)

var errCircuitOpen = errors.New("circuit open")

// Pinger is anything whose backend can be pinged, such as the repository
// factory.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// AddStoreCheck pings the storage backends.
func (h *HealthChecker) AddStoreCheck(p Pinger, interval, timeout time.Duration) {
	h.AddCheck("store", p.HealthCheck, interval, timeout)
}

// AddBreakerCheck fails while the store circuit breaker is open.
func (h *HealthChecker) AddBreakerCheck(isOpen func() bool, interval time.Duration) {
	h.AddCheck("store_circuit", func(ctx context.Context) error {
		if isOpen() {
			return errCircuitOpen
		}
		return nil
	}, interval, time.Second)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == StatusHealthy
}
