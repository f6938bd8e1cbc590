package engine

import (
	"context"
	"sync"

	"github.com/tradefleet/fleetd/internal/domain"
)

// MockAPI is an in-memory engine for tests.
type MockAPI struct {
	mu sync.Mutex

	// Response data
	Configs []domain.BotConfiguration
	Status  []byte

	// Call tracking
	Calls      map[string]int
	StartCmds  []Command
	StopCmds   []Command
	DeletedIDs []int64

	// Error injection: next call with this name fails once
	ErrorOnNext map[string]error
}

func NewMockAPI() *MockAPI {
	return &MockAPI{
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
	}
}

func (m *MockAPI) trackCall(name string) error {
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockAPI) FetchConfigs(ctx context.Context) ([]domain.BotConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("FetchConfigs"); err != nil {
		return nil, err
	}
	out := make([]domain.BotConfiguration, len(m.Configs))
	copy(out, m.Configs)
	return out, nil
}

func (m *MockAPI) FetchStatus(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("FetchStatus"); err != nil {
		return nil, err
	}
	return append([]byte(nil), m.Status...), nil
}

func (m *MockAPI) Start(ctx context.Context, cmd Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("Start"); err != nil {
		return err
	}
	m.StartCmds = append(m.StartCmds, cmd)
	return nil
}

func (m *MockAPI) Stop(ctx context.Context, cmd Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("Stop"); err != nil {
		return err
	}
	m.StopCmds = append(m.StopCmds, cmd)
	return nil
}

func (m *MockAPI) DeleteConfig(ctx context.Context, configID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("DeleteConfig"); err != nil {
		return err
	}
	m.DeletedIDs = append(m.DeletedIDs, configID)
	return nil
}

// Snapshot helpers for assertions.

func (m *MockAPI) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

func (m *MockAPI) Commands() (starts, stops []Command, deletes []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	starts = append(starts, m.StartCmds...)
	stops = append(stops, m.StopCmds...)
	deletes = append(deletes, m.DeletedIDs...)
	return
}
