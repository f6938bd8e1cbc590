package shutdown

import (
	"context"
	"sync"

	"github.com/tradefleet/fleetd/pkg/logger"
)

// Handler is a shutdown callback. Implementations should return promptly
// once ctx is done.
type Handler func(ctx context.Context)

// Manager collects shutdown callbacks and runs them concurrently on demand.
type Manager struct {
	callbacks []Handler
	mu        sync.Mutex
}

func NewManager() *Manager {
	return &Manager{callbacks: make([]Handler, 0)}
}

// OnShutdown registers a callback.
func (m *Manager) OnShutdown(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, handler)
}

// Shutdown runs all registered callbacks concurrently and blocks until they
// finish or ctx expires. Pass a context with a deadline.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}

	logger.Infof("graceful shutdown: %d callbacks", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(handler Handler) {
			defer wg.Done()
			handler(ctx)
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all shutdown callbacks finished")
	case <-ctx.Done():
		logger.Warnf("shutdown timed out: %v", ctx.Err())
	}
}
