package loginclient

import "sync"

// Session is the value shared with every subscriber: the signed-in
// user (nil when logged out) and whether a handshake is in flight.
type Session struct {
	User    *SessionUser
	Loading bool
}

// SessionStore is process-wide observable session state with
// single-writer, multi-reader semantics. Only the orchestrator's
// transition handlers call Set; everything else subscribes or reads.
type SessionStore struct {
	mu          sync.Mutex
	current     Session
	subscribers map[int]func(Session)
	nextID      int
	initialized bool
}

func NewSessionStore() *SessionStore {
	return &SessionStore{subscribers: make(map[int]func(Session))}
}

// Init marks the store as wired up. It returns false on every call
// after the first, so callers can guard against registering duplicate
// listeners when the same setup path runs twice.
func (s *SessionStore) Init() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return false
	}
	s.initialized = true
	return true
}

// Reset clears the session and the init guard. Subscribers stay.
func (s *SessionStore) Reset() {
	s.mu.Lock()
	s.current = Session{}
	s.initialized = false
	subs := s.snapshotSubscribersLocked()
	cur := s.current
	s.mu.Unlock()
	for _, fn := range subs {
		fn(cur)
	}
}

// Current returns the latest session value.
func (s *SessionStore) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers fn for every future Set and returns an
// unsubscribe func. fn is also invoked immediately with the current
// value so late subscribers do not miss state.
func (s *SessionStore) Subscribe(fn func(Session)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	cur := s.current
	s.mu.Unlock()

	fn(cur)
	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Set replaces the session value and notifies subscribers. Callbacks
// run outside the lock; a subscriber that re-subscribes or reads
// Current from its callback will not deadlock.
func (s *SessionStore) Set(session Session) {
	s.mu.Lock()
	s.current = session
	subs := s.snapshotSubscribersLocked()
	s.mu.Unlock()
	for _, fn := range subs {
		fn(session)
	}
}

func (s *SessionStore) snapshotSubscribersLocked() []func(Session) {
	subs := make([]func(Session), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}
