package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enclasse/classrelay/internal/domain"
)

func newSessionFixture(t *testing.T) (*SessionService, *OwnershipRegisters, *MemoryStore, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	store := seededStore(t)
	registers := NewOwnershipRegisters(bus)
	return NewSessionService(bus, store, registers), registers, store, bus
}

func TestStartSessionTeacherOnly(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t)

	_, err := svc.Start(context.Background(), studentIdent("u1"), nil)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Start(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	sess, err := svc.Start(context.Background(), teacherIdent(), []domain.UserID{"u1", "u2"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, domain.UserID("prof"), sess.TeacherID)
	assert.True(t, sess.HasParticipant("u1"))
}

func TestEndSessionResetsRegistersAndBroadcasts(t *testing.T) {
	svc, registers, store, bus := newSessionFixture(t)
	relay := NewRelay(bus, store, registers)

	require.NoError(t, relay.Spotlight(context.Background(), teacherIdent(), "S1", holderPtr("u1")))
	require.NoError(t, relay.WhiteboardControl(context.Background(), teacherIdent(), "S1", holderPtr("u2")))

	require.NoError(t, svc.End(context.Background(), teacherIdent(), "S1"))

	assert.Nil(t, registers.Holder("S1", KindSpotlight))
	assert.Nil(t, registers.Holder("S1", KindWhiteboard))

	_, err := store.Get(context.Background(), "S1")
	assert.ErrorIs(t, err, ErrNotFound)

	entries := bus.published()
	last := entries[len(entries)-1]
	assert.Equal(t, domain.EventSessionEnded, last.Event)
	assert.Equal(t, "presence-session-S1", last.Topic)
}

func TestEndSessionHostOnly(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t)

	err := svc.End(context.Background(), studentIdent("u1"), "S1")
	assert.ErrorIs(t, err, ErrForbidden)

	otherTeacher := &domain.Identity{UserID: "someone-else", Role: domain.RoleTeacher}
	err = svc.End(context.Background(), otherTeacher, "S1")
	assert.ErrorIs(t, err, ErrForbidden)

	err = svc.End(context.Background(), teacherIdent(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotDefaultsWhiteboardControlToTeacher(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t)

	snap, err := svc.Snapshot(context.Background(), studentIdent("u1"), "S1")
	require.NoError(t, err)
	assert.Nil(t, snap.SpotlightedID)
	require.NotNil(t, snap.WhiteboardController)
	assert.Equal(t, domain.UserID("prof"), *snap.WhiteboardController)
}

func TestSnapshotMembersOnly(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t)
	_, err := svc.Snapshot(context.Background(), studentIdent("stranger"), "S1")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestStoreAddParticipant(t *testing.T) {
	store := seededStore(t)
	require.NoError(t, store.AddParticipant(context.Background(), "S1", "u9"))
	require.NoError(t, store.AddParticipant(context.Background(), "S1", "u9")) // idempotent

	sess, err := store.Get(context.Background(), "S1")
	require.NoError(t, err)
	assert.True(t, sess.HasParticipant("u9"))

	count := 0
	for _, p := range sess.Participants {
		if p == "u9" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
