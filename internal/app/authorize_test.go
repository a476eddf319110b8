package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enclasse/classrelay/internal/domain"
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	store.Put(&domain.ClassSession{
		ID:           "S1",
		TeacherID:    "prof",
		Participants: []domain.UserID{"u1", "u2"},
	})
	return store
}

func teacherIdent() *domain.Identity {
	return &domain.Identity{UserID: "prof", Name: "Mme Dupont", Role: domain.RoleTeacher}
}

func studentIdent(id domain.UserID) *domain.Identity {
	return &domain.Identity{UserID: id, Name: "Student " + string(id), Role: domain.RoleStudent}
}

func TestAuthorizeUnauthenticated(t *testing.T) {
	a := NewAuthorizer("key", "secret", seededStore(t))
	_, err := a.Authorize(context.Background(), nil, AuthRequest{SocketID: "sock", Channel: "presence-session-S1"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthorizeMissingFields(t *testing.T) {
	a := NewAuthorizer("key", "secret", seededStore(t))
	_, err := a.Authorize(context.Background(), studentIdent("u1"), AuthRequest{Channel: "presence-session-S1"})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = a.Authorize(context.Background(), studentIdent("u1"), AuthRequest{SocketID: "sock"})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestAuthorizeInvalidChannelClass(t *testing.T) {
	a := NewAuthorizer("key", "secret", seededStore(t))
	for _, channel := range []string{"session-S1", "public-session-S1", "presence-lobby-1", "presence-"} {
		_, err := a.Authorize(context.Background(), studentIdent("u1"), AuthRequest{SocketID: "sock", Channel: channel})
		assert.ErrorIs(t, err, domain.ErrInvalidChannelClass, channel)
	}
}

func TestAuthorizePresenceGrant(t *testing.T) {
	a := NewAuthorizer("key", "secret", seededStore(t))
	grant, err := a.Authorize(context.Background(), studentIdent("u1"), AuthRequest{SocketID: "sock", Channel: "presence-session-S1"})
	require.NoError(t, err)

	var data struct {
		UserID   domain.UserID     `json:"user_id"`
		UserInfo domain.MemberInfo `json:"user_info"`
	}
	require.NoError(t, json.Unmarshal([]byte(grant.ChannelData), &data))
	assert.Equal(t, domain.UserID("u1"), data.UserID)
	assert.Equal(t, domain.UserID("u1"), data.UserInfo.ID)
	assert.Equal(t, "Student u1", data.UserInfo.DisplayName)

	expected := "key:" + Signature("secret", "sock", "presence-session-S1", grant.ChannelData)
	assert.Equal(t, expected, grant.Auth)
}

func TestAuthorizePrivateGrantOmitsMemberInfo(t *testing.T) {
	a := NewAuthorizer("key", "secret", seededStore(t))
	grant, err := a.Authorize(context.Background(), studentIdent("u1"), AuthRequest{SocketID: "sock", Channel: "private-conversation-7"})
	require.NoError(t, err)
	assert.Empty(t, grant.ChannelData)
	assert.Equal(t, "key:"+Signature("secret", "sock", "private-conversation-7", ""), grant.Auth)
}

func TestAuthorizeMembershipEnforced(t *testing.T) {
	a := NewAuthorizer("key", "secret", seededStore(t))

	_, err := a.Authorize(context.Background(), studentIdent("stranger"), AuthRequest{SocketID: "sock", Channel: "presence-session-S1"})
	assert.ErrorIs(t, err, ErrForbidden)

	// Same rule applies to private session-backed channels.
	_, err = a.Authorize(context.Background(), studentIdent("stranger"), AuthRequest{SocketID: "sock", Channel: "private-webrtc-session-S1"})
	assert.ErrorIs(t, err, ErrForbidden)

	// The teacher is always a member of their own session.
	_, err = a.Authorize(context.Background(), teacherIdent(), AuthRequest{SocketID: "sock", Channel: "presence-whiteboard-S1"})
	assert.NoError(t, err)
}

func TestAuthorizeUnknownSessionChannel(t *testing.T) {
	a := NewAuthorizer("key", "secret", seededStore(t))
	_, err := a.Authorize(context.Background(), studentIdent("u1"), AuthRequest{SocketID: "sock", Channel: "presence-session-ghost"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestVerifyGrant(t *testing.T) {
	auth := "key:" + Signature("secret", "sock", "presence-session-S1", `{"user_id":"u1"}`)
	assert.True(t, VerifyGrant("key", "secret", "sock", "presence-session-S1", `{"user_id":"u1"}`, auth))
	assert.False(t, VerifyGrant("key", "secret", "other", "presence-session-S1", `{"user_id":"u1"}`, auth))
	assert.False(t, VerifyGrant("key", "secret", "sock", "presence-session-S1", `{"user_id":"u9"}`, auth))
	assert.False(t, VerifyGrant("key", "wrong", "sock", "presence-session-S1", `{"user_id":"u1"}`, auth))
}
