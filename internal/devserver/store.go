package devserver

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

// ErrSessionNotFound is returned by History.Get for an unknown id.
var ErrSessionNotFound = errors.New("session not found")

// History records finished sessions. List is newest first and a repeated id
// replaces the earlier entry, moving it to the front.
type History interface {
	Add(ctx context.Context, summary protocol.SessionSummary, record protocol.SessionRecord) error
	List(ctx context.Context) ([]protocol.SessionSummary, error)
	Get(ctx context.Context, id string) (protocol.SessionRecord, error)
	Count(ctx context.Context) (int, error)
}

type storedSession struct {
	summary protocol.SessionSummary
	record  protocol.SessionRecord
}

// MemoryStore keeps finished sessions in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]storedSession
	order    []string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]storedSession)}
}

func (s *MemoryStore) Add(_ context.Context, summary protocol.SessionSummary, record protocol.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[summary.ID]; ok {
		s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == summary.ID })
	}
	s.sessions[summary.ID] = storedSession{summary: summary, record: record}
	s.order = append(s.order, summary.ID)
	return nil
}

func (s *MemoryStore) List(context.Context) ([]protocol.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.SessionSummary, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.sessions[s.order[i]].summary)
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (protocol.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.sessions[id]
	if !ok {
		return protocol.SessionRecord{}, ErrSessionNotFound
	}
	return stored.record, nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

var (
	_ History = (*MemoryStore)(nil)
	_ History = (*SQLiteStore)(nil)
)
