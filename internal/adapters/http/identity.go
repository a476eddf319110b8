package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/enclasse/classrelay/internal/domain"
)

// Session keys written by the identity provider boundary and read back on
// every request.
const (
	sessUserID = "user_id"
	sessName   = "name"
	sessRole   = "role"
	sessEmail  = "email"
)

// identityFrom resolves the caller from the cookie session. nil means
// unauthenticated; callers map that to 401.
func identityFrom(c *gin.Context) *domain.Identity {
	s := sessions.Default(c)
	uid, _ := s.Get(sessUserID).(string)
	if uid == "" {
		return nil
	}
	name, _ := s.Get(sessName).(string)
	role, _ := s.Get(sessRole).(string)
	email, _ := s.Get(sessEmail).(string)
	return &domain.Identity{
		UserID: domain.UserID(uid),
		Name:   name,
		Role:   domain.Role(role),
		Email:  email,
	}
}

type loginRequest struct {
	UserID string `json:"userId" binding:"required"`
	Name   string `json:"name" binding:"required"`
	Role   string `json:"role" binding:"required,oneof=teacher student"`
	Email  string `json:"email" binding:"omitempty,email"`
}

// handleLogin stores the identity resolved by the external provider into the
// cookie session. In production this sits behind the school's SSO callback.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid login payload", "details": err.Error()})
		return
	}
	sess := sessions.Default(c)
	sess.Set(sessUserID, req.UserID)
	sess.Set(sessName, req.Name)
	sess.Set(sessRole, req.Role)
	sess.Set(sessEmail, req.Email)
	if err := sess.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist session"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", req.UserID).Str("role", req.Role).Msg("identity bound")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleLogout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	if err := sess.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
