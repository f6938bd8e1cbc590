package fleet

import "sync"

// Selection tracks which canonical ids are marked for bulk action. It is
// always kept a subset of the current fleet: Prune must be called with the
// new id set after every resolve pass.
type Selection struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewSelection() *Selection {
	return &Selection{ids: make(map[string]struct{})}
}

func (s *Selection) Select(id string) {
	s.mu.Lock()
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Selection) Deselect(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

func (s *Selection) Toggle(id string) {
	s.mu.Lock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
	} else {
		s.ids[id] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *Selection) SelectAll(ids []string) {
	s.mu.Lock()
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *Selection) Clear() {
	s.mu.Lock()
	s.ids = make(map[string]struct{})
	s.mu.Unlock()
}

func (s *Selection) IsSelected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Selection) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// AllSelected is true iff every one of total records is selected and the
// fleet is non-empty.
func (s *Selection) AllSelected(total int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return total > 0 && len(s.ids) == total
}

// IDs returns a snapshot of the selected ids.
func (s *Selection) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// Prune drops every selected id not present in current, returning the ids
// that were removed. Stale ids are not an error.
func (s *Selection) Prune(current map[string]struct{}) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id := range s.ids {
		if _, ok := current[id]; !ok {
			removed = append(removed, id)
			delete(s.ids, id)
		}
	}
	return removed
}
