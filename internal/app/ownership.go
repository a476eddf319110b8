package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/enclasse/classrelay/internal/core"
	"github.com/enclasse/classrelay/internal/domain"
)

// OwnershipKind names a single-writer register scoped to a session.
type OwnershipKind string

const (
	KindSpotlight  OwnershipKind = "spotlight"
	KindWhiteboard OwnershipKind = "whiteboard"
)

func (k OwnershipKind) event() string {
	if k == KindWhiteboard {
		return domain.EventWhiteboardControlChanged
	}
	return domain.EventSpotlightChanged
}

// OwnershipRegisters holds the spotlight and whiteboard-controller fields for
// every live session. Writes are teacher-only, last-write-wins; readers learn
// the value from the broadcast, never by direct query.
type OwnershipRegisters struct {
	bus core.Bus

	mu      sync.Mutex
	holders map[OwnershipKind]map[domain.SessionID]*domain.UserID
}

func NewOwnershipRegisters(bus core.Bus) *OwnershipRegisters {
	return &OwnershipRegisters{
		bus: bus,
		holders: map[OwnershipKind]map[domain.SessionID]*domain.UserID{
			KindSpotlight:  {},
			KindWhiteboard: {},
		},
	}
}

// Set assigns the register and publishes exactly one broadcast with the new
// value. A nil holder is always valid and returns control to the teacher.
// Re-setting an unchanged value still broadcasts; the write is an idempotent
// assignment, not an increment, so a lost race is resolved last-write-wins.
func (r *OwnershipRegisters) Set(ctx context.Context, ident *domain.Identity, sess *domain.ClassSession, kind OwnershipKind, holder *domain.UserID) error {
	if ident == nil {
		return ErrUnauthorized
	}
	if ident.Role != domain.RoleTeacher {
		return forbiddenf("only the teacher may set %s", kind)
	}

	r.mu.Lock()
	r.holders[kind][sess.ID] = holder
	r.mu.Unlock()

	change := domain.OwnershipChange{ParticipantID: holder}
	if err := r.bus.Publish(ctx, domain.SessionTopic(sess.ID), kind.event(), change, ""); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	ev := log.Info().Str("module", "app.ownership").
		Str("session", string(sess.ID)).
		Str("kind", string(kind))
	if holder != nil {
		ev = ev.Str("holder", string(*holder))
	}
	ev.Msg("register set")
	return nil
}

// Holder reports the current register value. nil means the teacher holds it.
// Exposed for snapshot fetches; live clients follow the broadcasts instead.
func (r *OwnershipRegisters) Holder(id domain.SessionID, kind OwnershipKind) *domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holders[kind][id]
}

// Reset drops both registers for a session. Called on session destruction;
// the session-ended broadcast makes the reset observable.
func (r *OwnershipRegisters) Reset(id domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, byKind := range r.holders {
		delete(byKind, id)
	}
}
