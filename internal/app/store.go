package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/enclasse/classrelay/internal/core"
	"github.com/enclasse/classrelay/internal/domain"
)

// MemoryStore is the in-process SessionStore. The real deployment sits in
// front of the school's persistent store; only membership lives here.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.ClassSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[domain.SessionID]*domain.ClassSession)}
}

var _ core.SessionStore = (*MemoryStore)(nil)

func (m *MemoryStore) Get(_ context.Context, id domain.SessionID) (*domain.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	cp := *sess
	cp.Participants = append([]domain.UserID(nil), sess.Participants...)
	return &cp, nil
}

func (m *MemoryStore) Create(_ context.Context, teacher domain.UserID, participants []domain.UserID) (*domain.ClassSession, error) {
	sess := &domain.ClassSession{
		ID:           domain.SessionID(uuid.NewString()),
		TeacherID:    teacher,
		Participants: append([]domain.UserID(nil), participants...),
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	cp := *sess
	return &cp, nil
}

func (m *MemoryStore) Delete(_ context.Context, id domain.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) AddParticipant(_ context.Context, id domain.SessionID, uid domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if !sess.HasParticipant(uid) {
		sess.Participants = append(sess.Participants, uid)
	}
	return nil
}

// Put seeds a session with a fixed id. Test and bootstrap helper.
func (m *MemoryStore) Put(sess *domain.ClassSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
}
