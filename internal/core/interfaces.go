package core

import (
	"context"

	"github.com/enclasse/classrelay/internal/domain"
)

// SocketID identifies one live bus connection. An empty value means "none",
// used where an exclusion key is optional.
type SocketID string

// Bus is the boundary to the pub/sub transport. The relay only ever publishes;
// delivery guarantees (or the lack of them) belong to the bus, not to us.
type Bus interface {
	// Publish republishes one event on a topic. exclude, when non-empty,
	// skips that socket so a sender does not echo its own whiteboard strokes.
	Publish(ctx context.Context, topic, event string, payload any, exclude SocketID) error

	// ActiveTopics lists topics with at least one live subscriber whose name
	// starts with prefix. Used for class-wide fan-out.
	ActiveTopics(prefix string) []string
}

// SessionStore is the persistence boundary. Only the membership fields needed
// for authorization live here; everything else about a class is out of scope.
type SessionStore interface {
	Get(ctx context.Context, id domain.SessionID) (*domain.ClassSession, error)
	Create(ctx context.Context, teacher domain.UserID, participants []domain.UserID) (*domain.ClassSession, error)
	Delete(ctx context.Context, id domain.SessionID) error
	AddParticipant(ctx context.Context, id domain.SessionID, uid domain.UserID) error
}

// RoomTokenIssuer provisions access to the external video room for one
// identity. The token is opaque to us.
type RoomTokenIssuer interface {
	IssueRoomToken(ident domain.Identity, room string) (string, error)
}
