package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignalOffer(t *testing.T) {
	raw := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 0 0 IN IP4 0.0.0.0\r\n"}`)
	env, err := ParseSignal("u1", "u2", raw)
	require.NoError(t, err)
	assert.Equal(t, UserID("u1"), env.FromUserID)
	assert.Equal(t, UserID("u2"), env.ToUserID)
	assert.Equal(t, SignalOffer, env.Type)
	assert.JSONEq(t, string(raw), string(env.Payload))
}

func TestParseSignalAnswer(t *testing.T) {
	env, err := ParseSignal("u2", "u1", json.RawMessage(`{"type":"answer","sdp":"v=0\r\n"}`))
	require.NoError(t, err)
	assert.Equal(t, SignalAnswer, env.Type)
}

func TestParseSignalCandidate(t *testing.T) {
	nested := json.RawMessage(`{"type":"ice-candidate","candidate":{"candidate":"candidate:1 1 udp 2122260223 192.0.2.1 54400 typ host","sdpMid":"0","sdpMLineIndex":0}}`)
	_, err := ParseSignal("u1", "u2", nested)
	require.NoError(t, err)

	flat := json.RawMessage(`{"type":"ice-candidate","candidate":"candidate:1 1 udp 2122260223 192.0.2.1 54400 typ host"}`)
	_, err = ParseSignal("u1", "u2", flat)
	require.NoError(t, err)
}

func TestParseSignalRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty object", `{}`, ErrSignalType},
		{"unknown type", `{"type":"renegotiate"}`, ErrSignalType},
		{"offer without sdp", `{"type":"offer"}`, ErrSignalPayload},
		{"answer with empty sdp", `{"type":"answer","sdp":""}`, ErrSignalPayload},
		{"candidate without candidate", `{"type":"ice-candidate"}`, ErrSignalPayload},
		{"not json", `offer`, ErrSignalType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSignal("u1", "u2", json.RawMessage(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseSignalNilPayload(t *testing.T) {
	_, err := ParseSignal("u1", "u2", nil)
	assert.ErrorIs(t, err, ErrSignalType)
}
