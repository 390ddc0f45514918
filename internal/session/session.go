package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"antbot/internal/domain"
)

// Asker answers a single question. Implemented by service.Pipeline.
type Asker interface {
	Ask(ctx context.Context, query string) (domain.Answer, error)
}

// Turn is one entry of the conversation log.
type Turn struct {
	Role      domain.Role          `json:"role"`
	Content   string               `json:"content"`
	Sources   []domain.ScoredChunk `json:"sources,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// Session holds the conversation log of one user. The pipeline never sees it.
type Session struct {
	ID string

	asker        Asker
	initFailure  func(error) string
	askMu        sync.Mutex
	mu           sync.Mutex
	turns        []Turn
	lastActivity time.Time
}

// New creates a session. initFailure renders the assistant turn logged when the
// pipeline could not be initialized; the error is still returned to the caller.
func New(asker Asker, initFailure func(error) string) *Session {
	if initFailure == nil {
		initFailure = func(err error) string { return err.Error() }
	}
	return &Session{ID: uuid.NewString(), asker: asker, initFailure: initFailure, lastActivity: time.Now()}
}

// Ask logs the user turn, asks the pipeline and logs the assistant turn.
// Calls on one session run one at a time so turns stay paired.
func (s *Session) Ask(ctx context.Context, query string) (Turn, error) {
	s.askMu.Lock()
	defer s.askMu.Unlock()
	s.append(Turn{Role: domain.RoleUser, Content: query, CreatedAt: time.Now()})
	ans, err := s.asker.Ask(ctx, query)
	reply := Turn{Role: domain.RoleAssistant, Content: ans.Text, Sources: ans.Sources}
	if err != nil {
		reply.Content = s.initFailure(err)
	}
	reply.CreatedAt = time.Now()
	s.append(reply)
	return reply, err
}

// Turns returns a copy of the conversation log.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Reset clears the conversation log.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.lastActivity = time.Now()
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) append(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	s.lastActivity = t.CreatedAt
}

var ErrSessionNotFound = errors.New("session not found")

// Store keeps sessions by id.
type Store struct {
	asker       Asker
	initFailure func(error) string
	mu          sync.RWMutex
	sessions    map[string]*Session
}

func NewStore(asker Asker, initFailure func(error) string) *Store {
	return &Store{asker: asker, initFailure: initFailure, sessions: map[string]*Session{}}
}

func (st *Store) Create() *Session {
	s := New(st.asker, st.initFailure)
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Prune drops sessions idle for longer than maxIdle and returns how many were removed.
func (st *Store) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.LastActivity().Before(cutoff) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}
