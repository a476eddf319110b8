package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/enclasse/classrelay/internal/core"
	"github.com/enclasse/classrelay/internal/domain"
)

// SessionService owns the session lifecycle: started by a teacher, ended by
// its host-of-record. Ending resets both ownership registers to null.
type SessionService struct {
	bus       core.Bus
	store     core.SessionStore
	registers *OwnershipRegisters
}

func NewSessionService(bus core.Bus, store core.SessionStore, registers *OwnershipRegisters) *SessionService {
	return &SessionService{bus: bus, store: store, registers: registers}
}

// Start creates a live session owned by the calling teacher.
func (s *SessionService) Start(ctx context.Context, ident *domain.Identity, participants []domain.UserID) (*domain.ClassSession, error) {
	if ident == nil {
		return nil, ErrUnauthorized
	}
	if ident.Role != domain.RoleTeacher {
		return nil, forbiddenf("only a teacher may start a session")
	}
	sess, err := s.store.Create(ctx, ident.UserID, participants)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.session").
		Str("session", string(sess.ID)).
		Str("teacher", string(ident.UserID)).
		Int("participants", len(participants)).
		Msg("session started")
	return sess, nil
}

// End destroys a session. Host-of-record only. All derived ownership fields
// reset to null; participants learn about it from the session-ended broadcast
// and must drop any local state.
func (s *SessionService) End(ctx context.Context, ident *domain.Identity, id domain.SessionID) error {
	if ident == nil {
		return ErrUnauthorized
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if ident.Role != domain.RoleTeacher || !sess.IsHost(ident.UserID) {
		return forbiddenf("only the host may end session %s", id)
	}

	s.registers.Reset(id)
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.bus.Publish(ctx, domain.SessionTopic(id), domain.EventSessionEnded, nil, ""); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	log.Info().Str("module", "app.session").Str("session", string(id)).Msg("session ended")
	return nil
}

// Snapshot returns the authoritative state a late joiner re-derives from:
// membership plus the current register values. Missed broadcasts are never
// replayed, so this is the only catch-up path.
type Snapshot struct {
	Session              *domain.ClassSession `json:"session"`
	SpotlightedID        *domain.UserID       `json:"spotlightedParticipantId"`
	WhiteboardController *domain.UserID       `json:"whiteboardControllerId"`
}

func (s *SessionService) Snapshot(ctx context.Context, ident *domain.Identity, id domain.SessionID) (*Snapshot, error) {
	if ident == nil {
		return nil, ErrUnauthorized
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if !sess.HasParticipant(ident.UserID) {
		return nil, forbiddenf("not a participant of session %s", id)
	}
	wb := s.registers.Holder(id, KindWhiteboard)
	if wb == nil {
		// Whiteboard control defaults to the teacher.
		teacher := sess.TeacherID
		wb = &teacher
	}
	return &Snapshot{
		Session:              sess,
		SpotlightedID:        s.registers.Holder(id, KindSpotlight),
		WhiteboardController: wb,
	}, nil
}
