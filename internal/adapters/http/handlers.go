package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/enclasse/classrelay/internal/app"
	"github.com/enclasse/classrelay/internal/core"
	"github.com/enclasse/classrelay/internal/domain"
)

// Server bundles the relay surface behind gin handlers. Handlers only bind
// and translate; every rule lives in the app layer.
type Server struct {
	auth     *app.Authorizer
	relay    *app.Relay
	sessions *app.SessionService
	tokens   core.RoomTokenIssuer
}

func NewServer(auth *app.Authorizer, relay *app.Relay, sessions *app.SessionService, tokens core.RoomTokenIssuer) *Server {
	return &Server{auth: auth, relay: relay, sessions: sessions, tokens: tokens}
}

func fail(c *gin.Context, err error) {
	c.JSON(app.HTTPStatus(err), gin.H{"error": err.Error()})
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleAuth issues a channel grant. Accepts the form encoding bus clients
// POST by convention, or JSON.
func (s *Server) handleAuth(c *gin.Context) {
	var req struct {
		SocketID    string `form:"socket_id" json:"socket_id"`
		ChannelName string `form:"channel_name" json:"channel_name"`
	}
	_ = c.ShouldBind(&req)

	grant, err := s.auth.Authorize(c.Request.Context(), identityFrom(c), app.AuthRequest{
		SocketID: core.SocketID(req.SocketID),
		Channel:  req.ChannelName,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

func (s *Server) handleStartSession(c *gin.Context) {
	var req struct {
		Participants []domain.UserID `json:"participants"`
	}
	_ = c.ShouldBindJSON(&req)

	sess, err := s.sessions.Start(c.Request.Context(), identityFrom(c), req.Participants)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (s *Server) handleEndSession(c *gin.Context) {
	if err := s.sessions.End(c.Request.Context(), identityFrom(c), domain.SessionID(c.Param("id"))); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

// handleSnapshot is the catch-up path for late joiners: missed broadcasts are
// never replayed, state is re-derived from here.
func (s *Server) handleSnapshot(c *gin.Context) {
	snap, err := s.sessions.Snapshot(c.Request.Context(), identityFrom(c), domain.SessionID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleRaiseHand(c *gin.Context) {
	var req domain.HandRaise
	_ = c.ShouldBindJSON(&req)

	if err := s.relay.RaiseHand(c.Request.Context(), identityFrom(c), domain.SessionID(c.Param("id")), req); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func holderFrom(raw *string) *domain.UserID {
	if raw == nil || *raw == "" {
		return nil
	}
	uid := domain.UserID(*raw)
	return &uid
}

func (s *Server) handleSpotlight(c *gin.Context) {
	var req struct {
		ParticipantID *string `json:"participantId"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := s.relay.Spotlight(c.Request.Context(), identityFrom(c), domain.SessionID(c.Param("id")), holderFrom(req.ParticipantID)); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (s *Server) handleWhiteboardControl(c *gin.Context) {
	var req struct {
		ParticipantID *string `json:"participantId"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := s.relay.WhiteboardControl(c.Request.Context(), identityFrom(c), domain.SessionID(c.Param("id")), holderFrom(req.ParticipantID)); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (s *Server) handleTimer(c *gin.Context) {
	var req domain.TimerEvent
	_ = c.ShouldBindJSON(&req)

	if err := s.relay.Timer(c.Request.Context(), identityFrom(c), domain.SessionID(c.Param("id")), req); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (s *Server) handleWhiteboard(c *gin.Context) {
	var req struct {
		SessionID string          `json:"sessionId"`
		Event     string          `json:"event"`
		Data      json.RawMessage `json:"data"`
		SocketID  string          `json:"socket_id"`
	}
	_ = c.ShouldBindJSON(&req)

	err := s.relay.Whiteboard(c.Request.Context(), identityFrom(c),
		domain.SessionID(req.SessionID), req.Event, req.Data, core.SocketID(req.SocketID))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (s *Server) handleWebRTCSignal(c *gin.Context) {
	var req struct {
		SessionID  string          `json:"sessionId"`
		ToUserID   string          `json:"toUserId"`
		FromUserID string          `json:"fromUserId"` // informational; the stamped sender is the caller
		Signal     json.RawMessage `json:"signal"`
	}
	_ = c.ShouldBindJSON(&req)

	err := s.relay.WebRTCSignal(c.Request.Context(), identityFrom(c),
		domain.SessionID(req.SessionID), domain.UserID(req.ToUserID), req.Signal)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (s *Server) handleRelay(c *gin.Context) {
	var req struct {
		Channel  string          `json:"channel"`
		Event    string          `json:"event"`
		Data     json.RawMessage `json:"data"`
		SocketID string          `json:"socket_id"`
	}
	_ = c.ShouldBindJSON(&req)

	err := s.relay.Relayed(c.Request.Context(), identityFrom(c), req.Channel, req.Event, req.Data, core.SocketID(req.SocketID))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

func (s *Server) handleTriggerCard(c *gin.Context) {
	var req domain.TriggerCard
	_ = c.ShouldBindJSON(&req)

	if err := s.relay.TriggerCard(c.Request.Context(), identityFrom(c), req); err != nil {
		fail(c, err)
		return
	}
	ok(c)
}

// handleVideoToken provisions a media-room credential for a session member.
func (s *Server) handleVideoToken(c *gin.Context) {
	ident := identityFrom(c)
	id := domain.SessionID(c.Param("id"))

	// Snapshot doubles as the membership check.
	if _, err := s.sessions.Snapshot(c.Request.Context(), ident, id); err != nil {
		fail(c, err)
		return
	}
	token, err := s.tokens.IssueRoomToken(*ident, "webrtc-session-"+string(id))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
