package identity

import "sync"

// Identity is an authenticated user.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Source answers "who is signed in" and notifies on change.
type Source interface {
	Current() (Identity, bool)
	// Subscribe registers fn for identity changes and returns a function
	// that removes it. fn is not called for the current identity.
	Subscribe(fn func(Identity, bool)) (unsubscribe func())
}

// Session is a mutable current identity, as held by a signed-in client.
type Session struct {
	mu      sync.Mutex
	current Identity
	signed  bool
	nextID  int
	subs    map[int]func(Identity, bool)
}

func NewSession() *Session {
	return &Session{subs: make(map[int]func(Identity, bool))}
}

func (s *Session) Current() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.signed
}

func (s *Session) Subscribe(fn func(Identity, bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) SignIn(id Identity) {
	s.set(id, true)
}

func (s *Session) SignOut() {
	s.set(Identity{}, false)
}

// set updates the identity and notifies subscribers synchronously, outside
// the lock, when it changed.
func (s *Session) set(id Identity, signed bool) {
	s.mu.Lock()
	if s.current == id && s.signed == signed {
		s.mu.Unlock()
		return
	}
	s.current, s.signed = id, signed
	subs := make([]func(Identity, bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(id, signed)
	}
}

// Static is a fixed identity that never changes, such as the bearer of a
// verified request token. The zero value is signed out.
type Static struct {
	id     Identity
	signed bool
}

func NewStatic(id Identity) Static {
	return Static{id: id, signed: id.UserID != ""}
}

func (s Static) Current() (Identity, bool) { return s.id, s.signed }

func (Static) Subscribe(func(Identity, bool)) func() { return func() {} }
