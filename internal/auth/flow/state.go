package flow

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// DefaultStateTTL bounds how long a user has to finish the provider consent page.
const DefaultStateTTL = 10 * time.Minute

type pendingLogin struct {
	userID   uint
	provider string
	expires  time.Time
}

// StateStore tracks OAuth state tokens issued by login redirects. A state
// token can be consumed once.
type StateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]pendingLogin
	now     func() time.Time
}

// NewStateStore creates a store; ttl <= 0 uses DefaultStateTTL.
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{
		ttl:     ttl,
		pending: make(map[string]pendingLogin),
		now:     time.Now,
	}
}

// Issue records a login for userID with provider and returns its state token.
func (s *StateStore) Issue(userID uint, provider string) string {
	b := make([]byte, 16)
	rand.Read(b)
	state := hex.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, p := range s.pending {
		if now.After(p.expires) {
			delete(s.pending, k)
		}
	}
	s.pending[state] = pendingLogin{userID: userID, provider: provider, expires: now.Add(s.ttl)}
	return state
}

// Consume removes state and returns the login it was issued for.
func (s *StateStore) Consume(state string) (userID uint, provider string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, found := s.pending[state]
	if !found {
		return 0, "", false
	}
	delete(s.pending, state)
	if s.now().After(p.expires) {
		return 0, "", false
	}
	return p.userID, p.provider, true
}
