package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/intake-sim/backend/internal/model/chat"
	"github.com/zhouzirui/intake-sim/backend/internal/model/persona"
	"github.com/zhouzirui/intake-sim/backend/internal/service/ai"
)

// DefaultMaxTurns is the retention window applied when Options.MaxTurns is unset.
const DefaultMaxTurns = 20

var ErrSessionNotFound = errors.New("session not found")

// Store owns every session. Only GetOrCreate and Reset may create sessions.
type Store interface {
	GetOrCreate(ctx context.Context, sessionID string) (string, error)
	Reset(ctx context.Context, sessionID string) (chat.Session, error)
	Get(ctx context.Context, sessionID string) (chat.Session, error)
	AppendTurns(ctx context.Context, sessionID string, turns ...chat.Turn) error
	// Acquire blocks until the caller is the only writer of the session.
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// Options tunes a MemoryStore.
type Options struct {
	MaxTurns int
	// IdleTTL enables expiry of sessions untouched for longer than the TTL.
	// Zero keeps sessions for the life of the process.
	IdleTTL   time.Duration
	Generator *persona.Generator
	Logger    *slog.Logger
	Now       func() time.Time
}

type entry struct {
	session chat.Session
	// sem is a one-slot semaphore serializing writers of this session.
	sem chan struct{}
}

// MemoryStore keeps sessions in process memory with no durability.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	maxTurns  int
	idleTTL   time.Duration
	generator *persona.Generator
	logger    *slog.Logger
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewService bootstraps the in-memory session store.
func NewService(opts Options) *MemoryStore {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.Generator == nil {
		opts.Generator = persona.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &MemoryStore{
		sessions:  make(map[string]*entry),
		maxTurns:  opts.MaxTurns,
		idleTTL:   opts.IdleTTL,
		generator: opts.Generator,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// GetOrCreate returns sessionID unchanged when it is known. Otherwise a new
// session with a fresh persona is stored under a new identifier.
func (s *MemoryStore) GetOrCreate(_ context.Context, sessionID string) (string, error) {
	if sessionID != "" {
		s.mu.RLock()
		_, ok := s.sessions[sessionID]
		s.mu.RUnlock()
		if ok {
			return sessionID, nil
		}
	}

	session := s.newSession(uuid.NewString())

	s.mu.Lock()
	s.sessions[session.ID] = &entry{session: session, sem: make(chan struct{}, 1)}
	s.mu.Unlock()

	s.logger.Info("session created", "session", session.ID, "condition", session.Persona.Condition.Name)
	return session.ID, nil
}

// Reset replaces the persona, instruction and turns of sessionID, creating
// the session when it is unknown. An empty sessionID allocates a new one.
// It waits for any exchange in flight on the session to finish first.
func (s *MemoryStore) Reset(ctx context.Context, sessionID string) (chat.Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		s.sessions[sessionID] = e
	}
	s.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		s.mu.Lock()
		if e.session.ID == "" && s.sessions[sessionID] == e {
			delete(s.sessions, sessionID)
		}
		s.mu.Unlock()
		return chat.Session{}, ctx.Err()
	}
	defer func() { <-e.sem }()

	session := s.newSession(sessionID)

	s.mu.Lock()
	e.session = session
	// The entry may have been swept while we waited.
	s.sessions[sessionID] = e
	s.mu.Unlock()

	s.logger.Info("session reset", "session", sessionID, "condition", session.Persona.Condition.Name)
	return snapshot(session), nil
}

// Get returns a copy of the session.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[sessionID]
	if !ok || e.session.ID == "" {
		return chat.Session{}, ErrSessionNotFound
	}
	return snapshot(e.session), nil
}

// AppendTurns appends turns in order, then drops the oldest turns beyond the
// retention window.
func (s *MemoryStore) AppendTurns(_ context.Context, sessionID string, turns ...chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok || e.session.ID == "" {
		return ErrSessionNotFound
	}

	e.session.Turns = pruneTurns(append(e.session.Turns, turns...), s.maxTurns)
	e.session.UpdatedAt = s.now().UTC()
	return nil
}

// Acquire takes the session's writer slot. The returned release must be
// called exactly once.
func (s *MemoryStore) Acquire(ctx context.Context, sessionID string) (func(), error) {
	for {
		s.mu.RLock()
		e, ok := s.sessions[sessionID]
		s.mu.RUnlock()
		if !ok {
			return nil, ErrSessionNotFound
		}

		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		// The entry may have been swept, and the id re-created, while we waited.
		s.mu.RLock()
		current := s.sessions[sessionID] == e
		s.mu.RUnlock()
		if !current {
			<-e.sem
			continue
		}

		var once sync.Once
		return func() { once.Do(func() { <-e.sem }) }, nil
	}
}

// Len reports the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than the TTL that no exchange is
// holding. It is a no-op without a TTL.
func (s *MemoryStore) Sweep(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if e.session.ID == "" || now.Sub(e.session.UpdatedAt) <= s.idleTTL {
			continue
		}
		select {
		case e.sem <- struct{}{}:
			delete(s.sessions, id)
			<-e.sem
			removed++
		default:
		}
	}

	if removed > 0 {
		s.logger.Info("expired idle sessions", "count", removed)
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if s.idleTTL <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.Sweep(t)
		}
	}
}

func (s *MemoryStore) newSession(id string) chat.Session {
	p := s.generator.Generate()
	now := s.now().UTC()
	return chat.Session{
		ID:          id,
		Persona:     p,
		Instruction: ai.CompileSystemInstruction(p),
		Turns:       []chat.Turn{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// pruneTurns keeps the most recent max turns in their original order.
func pruneTurns(turns []chat.Turn, max int) []chat.Turn {
	if len(turns) <= max {
		return turns
	}
	kept := make([]chat.Turn, max)
	copy(kept, turns[len(turns)-max:])
	return kept
}

func snapshot(session chat.Session) chat.Session {
	session.Turns = append([]chat.Turn(nil), session.Turns...)
	session.Persona.Symptoms = append([]string(nil), session.Persona.Symptoms...)
	session.Persona.Condition.Symptoms = append([]string(nil), session.Persona.Condition.Symptoms...)
	return session
}
