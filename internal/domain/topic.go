package domain

import (
	"errors"
	"strings"
)

// ChannelClass decides which authorization rule applies to a topic.
type ChannelClass string

const (
	// ClassPresence topics broadcast to every subscriber and expose the roster.
	ClassPresence ChannelClass = "presence"
	// ClassPrivate topics broadcast without roster visibility.
	ClassPrivate ChannelClass = "private"
)

// TopicScope is the middle segment of a topic name.
type TopicScope string

const (
	ScopeClasse        TopicScope = "classe"
	ScopeSession       TopicScope = "session"
	ScopeWhiteboard    TopicScope = "whiteboard"
	ScopeConversation  TopicScope = "conversation"
	ScopeWebRTCSession TopicScope = "webrtc-session"
)

var ErrInvalidChannelClass = errors.New("invalid channel class")

// Topic is a parsed channel name: <class>-<scope>-<id>.
type Topic struct {
	Name  string
	Class ChannelClass
	Scope TopicScope
	ID    string
}

var knownScopes = []TopicScope{
	ScopeWebRTCSession, // longest prefixes first, "webrtc-session" contains a dash
	ScopeClasse,
	ScopeSession,
	ScopeWhiteboard,
	ScopeConversation,
}

// ParseTopic validates a raw channel name against the topic grammar.
// Names outside the grammar are always rejected.
func ParseTopic(name string) (Topic, error) {
	var class ChannelClass
	var rest string
	switch {
	case strings.HasPrefix(name, string(ClassPresence)+"-"):
		class = ClassPresence
		rest = strings.TrimPrefix(name, string(ClassPresence)+"-")
	case strings.HasPrefix(name, string(ClassPrivate)+"-"):
		class = ClassPrivate
		rest = strings.TrimPrefix(name, string(ClassPrivate)+"-")
	default:
		return Topic{}, ErrInvalidChannelClass
	}

	for _, scope := range knownScopes {
		prefix := string(scope) + "-"
		if strings.HasPrefix(rest, prefix) {
			id := strings.TrimPrefix(rest, prefix)
			if id == "" {
				return Topic{}, ErrInvalidChannelClass
			}
			return Topic{Name: name, Class: class, Scope: scope, ID: id}, nil
		}
	}
	return Topic{}, ErrInvalidChannelClass
}

// SessionBacked reports whether the topic id refers to a live session,
// i.e. membership can be checked against the session store.
func (t Topic) SessionBacked() bool {
	switch t.Scope {
	case ScopeSession, ScopeWhiteboard, ScopeWebRTCSession:
		return true
	}
	return false
}

// SessionTopic is the presence topic every session-scoped broadcast lands on.
func SessionTopic(id SessionID) string {
	return string(ClassPresence) + "-" + string(ScopeSession) + "-" + string(id)
}

// ClasseTopicPrefix is used for fan-out broadcasts across all class channels.
const ClasseTopicPrefix = "presence-classe-"
