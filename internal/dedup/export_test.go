package dedup

// Seen reports whether id is in the target's set. It does not load from
// the store.
func (s *SeenStore) Seen(target, id string) bool {
	e := s.entry(target)
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.ids[id]
	return ok
}

// Size returns the number of ids remembered for target.
func (s *SeenStore) Size(target string) int {
	e := s.entry(target)
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.ids)
}
