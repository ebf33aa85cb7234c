package resolver

import "sync"

// StateStore holds the observable resolver state. Every dispatched call gets
// a monotonically increasing token; a completion is applied only while its
// token is still the latest dispatched one, so a slow older call can never
// overwrite the result of a newer one.
type StateStore struct {
	// emitMu serializes commit+notify so observers see states in commit order.
	emitMu sync.Mutex

	mu     sync.RWMutex
	cur    State
	latest uint64
	closed bool
	subs   map[int]func(State)
	nextID int
}

// NewStateStore returns a store in the Empty state.
func NewStateStore() *StateStore {
	return &StateStore{
		cur:  State{Status: StatusEmpty},
		subs: make(map[int]func(State)),
	}
}

// Snapshot returns a copy of the current state.
func (s *StateStore) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.clone()
}

// Latest returns the most recently dispatched token.
func (s *StateStore) Latest() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Subscribe registers fn for every committed state and returns a function
// that removes it. fn runs synchronously and must not call back into the store.
func (s *StateStore) Subscribe(fn func(State)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// dispatch allocates the next token.
func (s *StateStore) dispatch() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}
	s.latest++
	return s.latest, true
}

// begin moves to Loading for token if it is still the latest.
func (s *StateStore) begin(token uint64, query string) bool {
	return s.commit(token, State{Status: StatusLoading, Query: query})
}

// finish applies st for token if no newer call has been dispatched.
func (s *StateStore) finish(token uint64, st State) bool {
	return s.commit(token, st)
}

func (s *StateStore) commit(token uint64, st State) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.closed || token != s.latest {
		s.mu.Unlock()
		return false
	}
	st.Seq = token
	s.cur = st.clone()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st.clone())
	}
	return true
}

// close stops all further commits and drops subscribers.
func (s *StateStore) close() {
	s.mu.Lock()
	s.closed = true
	s.subs = make(map[int]func(State))
	s.mu.Unlock()
}
