package domain

import "errors"

type (
	UserID    string
	SessionID string
)

// Role is assigned by the identity provider, never by this service.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Identity is the resolved caller for one request.
type Identity struct {
	UserID UserID `json:"userId"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Email  string `json:"email,omitempty"`
}

// MemberInfo is the public presence payload exposed on rosters.
type MemberInfo struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
}

// MemberInfo never leaks role or email onto the wire.
func (i Identity) MemberInfo() MemberInfo {
	return MemberInfo{ID: i.UserID, DisplayName: i.Name}
}

var (
	ErrSessionEnded   = errors.New("session ended")
	ErrEmptySessionID = errors.New("empty session id")
)

// ClassSession is an ephemeral live meeting. The teacher that started it is
// the host-of-record; ownership fields derive from broadcasts, not from here.
type ClassSession struct {
	ID           SessionID `json:"id"`
	TeacherID    UserID    `json:"professeurId"`
	Participants []UserID  `json:"participants"`
}

// HasParticipant reports session membership. The teacher always counts.
func (s *ClassSession) HasParticipant(uid UserID) bool {
	if uid == s.TeacherID {
		return true
	}
	for _, p := range s.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// IsHost reports whether uid is the host-of-record.
func (s *ClassSession) IsHost(uid UserID) bool {
	return uid == s.TeacherID
}
