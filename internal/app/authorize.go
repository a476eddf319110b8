package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/enclasse/classrelay/internal/core"
	"github.com/enclasse/classrelay/internal/domain"
)

// AuthRequest is one subscription attempt as received on /auth.
type AuthRequest struct {
	SocketID core.SocketID
	Channel  string
}

// AuthGrant is the signed ticket the bus accepts for one socket+channel pair.
// Presence grants additionally carry the public member info.
type AuthGrant struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// presenceData is the channel_data payload for presence subscriptions.
type presenceData struct {
	UserID   domain.UserID     `json:"user_id"`
	UserInfo domain.MemberInfo `json:"user_info"`
}

// Authorizer maps topic names to channel classes and issues signed grants.
// Session-backed topics are granted only to members of the owning session.
type Authorizer struct {
	key    string
	secret string
	store  core.SessionStore
}

func NewAuthorizer(key, secret string, store core.SessionStore) *Authorizer {
	return &Authorizer{key: key, secret: secret, store: store}
}

// Authorize applies the channel rules in order: authentication, request
// shape, topic grammar, then membership for session-backed scopes.
func (a *Authorizer) Authorize(ctx context.Context, ident *domain.Identity, req AuthRequest) (*AuthGrant, error) {
	if ident == nil {
		return nil, ErrUnauthorized
	}
	if req.SocketID == "" || req.Channel == "" {
		return nil, badRequestf("socket_id and channel_name are required")
	}

	topic, err := domain.ParseTopic(req.Channel)
	if err != nil {
		log.Warn().Str("module", "app.auth").Str("channel", req.Channel).Msg("rejected channel name")
		return nil, err
	}

	if topic.SessionBacked() {
		sess, err := a.store.Get(ctx, domain.SessionID(topic.ID))
		if err != nil {
			return nil, forbiddenf("no session behind channel %s", req.Channel)
		}
		if !sess.HasParticipant(ident.UserID) {
			return nil, forbiddenf("not a participant of session %s", topic.ID)
		}
	}

	grant := &AuthGrant{}
	if topic.Class == domain.ClassPresence {
		data, err := json.Marshal(presenceData{UserID: ident.UserID, UserInfo: ident.MemberInfo()})
		if err != nil {
			return nil, fmt.Errorf("marshal channel data: %w", err)
		}
		grant.ChannelData = string(data)
	}
	grant.Auth = a.key + ":" + Signature(a.secret, req.SocketID, req.Channel, grant.ChannelData)

	log.Info().Str("module", "app.auth").
		Str("channel", req.Channel).
		Str("user", string(ident.UserID)).
		Msg("issued grant")
	return grant, nil
}

// Signature computes the grant MAC over socket_id:channel[:channel_data].
// The bus recomputes it before admitting a subscriber.
func Signature(secret string, sid core.SocketID, channel, channelData string) string {
	msg := string(sid) + ":" + channel
	if channelData != "" {
		msg += ":" + channelData
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyGrant checks a presented auth string against the expected signature.
func VerifyGrant(key, secret string, sid core.SocketID, channel, channelData, auth string) bool {
	expected := key + ":" + Signature(secret, sid, channel, channelData)
	return hmac.Equal([]byte(expected), []byte(auth))
}
