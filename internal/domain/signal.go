package domain

import (
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"
)

// SignalType enumerates the peer-negotiation message kinds carried by the relay.
type SignalType string

const (
	SignalOffer        SignalType = "offer"
	SignalAnswer       SignalType = "answer"
	SignalICECandidate SignalType = "ice-candidate"
)

var (
	ErrSignalType    = errors.New("missing or unknown signal type")
	ErrSignalPayload = errors.New("signal payload missing required fields")
)

// SignalEnvelope is the unit the relay republishes verbatim. The relay never
// inspects the SDP beyond shape validation; recipients filter by ToUserID.
type SignalEnvelope struct {
	FromUserID UserID          `json:"fromUserId"`
	ToUserID   UserID          `json:"toUserId"`
	Type       SignalType      `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

// ParseSignal validates a raw signal body and wraps it into an envelope.
// Offers and answers must carry an SDP, candidates a candidate string.
func ParseSignal(from, to UserID, raw json.RawMessage) (SignalEnvelope, error) {
	var head struct {
		Type SignalType `json:"type"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &head) != nil {
		return SignalEnvelope{}, ErrSignalType
	}

	switch head.Type {
	case SignalOffer, SignalAnswer:
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(raw, &sd); err != nil || sd.SDP == "" {
			return SignalEnvelope{}, ErrSignalPayload
		}
	case SignalICECandidate:
		var body struct {
			Candidate webrtc.ICECandidateInit `json:"candidate"`
		}
		if err := json.Unmarshal(raw, &body); err != nil || body.Candidate.Candidate == "" {
			// Some clients flatten the candidate into the signal itself.
			var flat webrtc.ICECandidateInit
			if err := json.Unmarshal(raw, &flat); err != nil || flat.Candidate == "" {
				return SignalEnvelope{}, ErrSignalPayload
			}
		}
	default:
		return SignalEnvelope{}, ErrSignalType
	}

	return SignalEnvelope{FromUserID: from, ToUserID: to, Type: head.Type, Payload: raw}, nil
}
