package domain

import "encoding/json"

// Event names published on session presence topics.
const (
	EventHandRaiseToggled         = "hand-raise-toggled"
	EventSpotlightChanged         = "spotlight-changed"
	EventWhiteboardControlChanged = "whiteboard-control-changed"
	EventTimer                    = "timer-event"
	EventWebRTCSignal             = "webrtc-signal"
	EventSessionEnded             = "session-ended"
	EventTriggerCard              = "trigger-card"
)

// HandRaise toggles the raised-hand marker for one participant.
type HandRaise struct {
	UserID   UserID `json:"userId"`
	IsRaised bool   `json:"isRaised"`
}

// OwnershipChange is the broadcast body for spotlight and whiteboard-control
// updates. A nil ParticipantID returns control to the teacher.
type OwnershipChange struct {
	ParticipantID *UserID `json:"participantId"`
}

// TimerEvent drives the shared classroom timer (start, pause, reset, ...).
type TimerEvent struct {
	Event string `json:"event"`
	Time  *int   `json:"time,omitempty"`
}

// WhiteboardEvent carries one stroke (or erase, clear, ...) on a session board.
// SenderID is stamped server-side, never trusted from the client.
type WhiteboardEvent struct {
	Event    string          `json:"event"`
	SenderID UserID          `json:"senderId"`
	Data     json.RawMessage `json:"data"`
}

// TriggerCard flips the activity card on every class channel at once.
type TriggerCard struct {
	IsActive bool `json:"isActive"`
}
