package fleet

import (
	"sort"
	"sync"
	"time"

	"github.com/tradefleet/fleetd/internal/domain"
)

// Snapshot is one consistent view of fleet state. Records are shared
// pointers but are never mutated after a resolve pass, so snapshots stay
// immutable.
type Snapshot struct {
	Records      []*domain.CanonicalBotRecord `json:"records"`
	SelectedIDs  []string                     `json:"selectedIds"`
	StartingKeys []string                     `json:"startingKeys"`
	RefreshToken uint64                       `json:"refreshToken"`
	LastRefresh  time.Time                    `json:"lastRefresh"`
	Diagnostics  Diagnostics                  `json:"diagnostics"`
}

// Store owns the canonical map, the selection set and the in-flight
// starting set as one unit, updated through discrete transitions. All reads
// go through immutable snapshots; a single mutex enforces the one-writer
// discipline the state needs in a multi-goroutine host.
type Store struct {
	mu          sync.RWMutex
	records     map[string]*domain.CanonicalBotRecord
	order       []string
	selection   *Selection
	starting    map[string]struct{}
	token       uint64
	lastRefresh time.Time
	diag        Diagnostics

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
}

func NewStore() *Store {
	return &Store{
		records:   make(map[string]*domain.CanonicalBotRecord),
		selection: NewSelection(),
		starting:  make(map[string]struct{}),
		subs:      make(map[int]chan Snapshot),
	}
}

// ApplyResolve replaces the canonical map with a fresh resolve result,
// prunes the selection against the new id set and publishes the snapshot.
// Tokens must advance: a result stamped at or behind the applied token is
// rejected, so a slow refresh can never roll the fleet back to stale data.
func (s *Store) ApplyResolve(res *Result, token uint64, at time.Time) Snapshot {
	s.mu.Lock()
	if token <= s.token {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}
	s.records = res.Records
	s.order = res.Order
	s.token = token
	s.lastRefresh = at
	s.diag = res.Diagnostics

	current := make(map[string]struct{}, len(res.Records))
	for id := range res.Records {
		current[id] = struct{}{}
	}
	s.selection.Prune(current)

	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return snap
}

func (s *Store) Select(id string)          { s.selection.Select(id) }
func (s *Store) Deselect(id string)        { s.selection.Deselect(id) }
func (s *Store) Toggle(id string)          { s.selection.Toggle(id) }
func (s *Store) ClearSelection()           { s.selection.Clear() }
func (s *Store) IsSelected(id string) bool { return s.selection.IsSelected(id) }
func (s *Store) SelectedIDs() []string     { return s.selection.IDs() }
func (s *Store) SelectionCount() int       { return s.selection.Count() }

// SelectAll marks every record currently in the fleet.
func (s *Store) SelectAll() {
	s.mu.RLock()
	ids := append([]string(nil), s.order...)
	s.mu.RUnlock()
	s.selection.SelectAll(ids)
}

func (s *Store) AllSelected() bool {
	s.mu.RLock()
	total := len(s.records)
	s.mu.RUnlock()
	return s.selection.AllSelected(total)
}

// Get returns the record for a canonical id from the current map.
func (s *Store) Get(id string) (*domain.CanonicalBotRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Records returns the current records in display order.
func (s *Store) Records() []*domain.CanonicalBotRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.CanonicalBotRecord, 0, len(s.order))
	for _, id := range s.order {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// ConfigCount counts configuration-backed records, the number the plan gate
// cares about.
func (s *Store) ConfigCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.records {
		if rec.ConfigID != nil {
			n++
		}
	}
	return n
}

// BeginStart marks a start request in flight for UI feedback. The key
// lifecycle is independent of the canonical map.
func (s *Store) BeginStart(key string) {
	s.mu.Lock()
	s.starting[key] = struct{}{}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// EndStart clears the in-flight mark, on success or failure alike.
func (s *Store) EndStart(key string) {
	s.mu.Lock()
	delete(s.starting, key)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Store) StartingKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startingKeysLocked()
}

// Snapshot returns the current consistent view.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	records := make([]*domain.CanonicalBotRecord, 0, len(s.order))
	for _, id := range s.order {
		if rec, ok := s.records[id]; ok {
			records = append(records, rec)
		}
	}
	selected := s.selection.IDs()
	sort.Strings(selected)
	return Snapshot{
		Records:      records,
		SelectedIDs:  selected,
		StartingKeys: s.startingKeysLocked(),
		RefreshToken: s.token,
		LastRefresh:  s.lastRefresh,
		Diagnostics:  s.diag,
	}
}

func (s *Store) startingKeysLocked() []string {
	keys := make([]string, 0, len(s.starting))
	for k := range s.starting {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Subscribe registers a snapshot listener. The channel drops updates when
// the consumer lags; a fleet snapshot is state, not a log.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 8)
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Store) publish(snap Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
