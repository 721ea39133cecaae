package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmynk/girandola/internal/metrics"
)

// Pinger is satisfied by storage.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreMonitor pings the store periodically and reports reachability.
type StoreMonitor struct {
	store    Pinger
	interval time.Duration
	// up is the last observed state; logs fire only on change.
	up bool
}

func NewStoreMonitor(store Pinger, interval time.Duration) *StoreMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StoreMonitor{store: store, interval: interval, up: true}
}

func (m *StoreMonitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *StoreMonitor) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := m.store.Ping(pingCtx)
	up := err == nil
	metrics.SetStoreUp(up)

	switch {
	case !up && m.up:
		slog.Warn("Storage unreachable", "error", err)
	case up && !m.up:
		slog.Info("Storage reachable again")
	}
	m.up = up
}

func (m *StoreMonitor) String() string {
	return "store-monitor"
}
