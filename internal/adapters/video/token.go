// Package video provisions access credentials for the external media room.
// The relay never carries media itself; it only hands out room tickets.
package video

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/enclasse/classrelay/internal/core"
	"github.com/enclasse/classrelay/internal/domain"
)

// Issuer signs short-lived per-identity room credentials. The token shape is
// opaque to callers: payload.signature, both base64url.
type Issuer struct {
	key    string
	secret string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(key, secret string, ttl time.Duration) *Issuer {
	return &Issuer{key: key, secret: secret, ttl: ttl, now: time.Now}
}

var _ core.RoomTokenIssuer = (*Issuer)(nil)

type claims struct {
	Key    string        `json:"key"`
	Room   string        `json:"room"`
	UserID domain.UserID `json:"userId"`
	Name   string        `json:"name"`
	Exp    int64         `json:"exp"`
}

func (i *Issuer) IssueRoomToken(ident domain.Identity, room string) (string, error) {
	if room == "" {
		return "", fmt.Errorf("empty room name")
	}
	payload, err := json.Marshal(claims{
		Key:    i.key,
		Room:   room,
		UserID: ident.UserID,
		Name:   ident.Name,
		Exp:    i.now().Add(i.ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	mac := hmac.New(sha256.New, []byte(i.secret))
	mac.Write(payload)
	return enc.EncodeToString(payload) + "." + enc.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks a token's signature and expiry. The media collaborator calls
// this on its side; exposed here so tests can close the loop.
func (i *Issuer) Verify(token string) (*claims, error) {
	enc := base64.RawURLEncoding
	var payloadPart, sigPart string
	for idx := range token {
		if token[idx] == '.' {
			payloadPart, sigPart = token[:idx], token[idx+1:]
			break
		}
	}
	if payloadPart == "" || sigPart == "" {
		return nil, fmt.Errorf("malformed token")
	}
	payload, err := enc.DecodeString(payloadPart)
	if err != nil {
		return nil, fmt.Errorf("malformed token payload")
	}
	sig, err := enc.DecodeString(sigPart)
	if err != nil {
		return nil, fmt.Errorf("malformed token signature")
	}
	mac := hmac.New(sha256.New, []byte(i.secret))
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, fmt.Errorf("bad token signature")
	}
	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, err
	}
	if i.now().Unix() >= c.Exp {
		return nil, fmt.Errorf("token expired")
	}
	return &c, nil
}
