package http

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/enclasse/classrelay/internal/adapters/bus"
	"github.com/enclasse/classrelay/internal/config"
)

// SetupRouter wires the full HTTP surface: grant endpoint, relay operations,
// session lifecycle and the in-process bus websocket.
func SetupRouter(ctx context.Context, cfg *config.Config, srv *Server, hub *bus.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if len(cfg.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowCredentials = true
		r.Use(cors.New(corsCfg))
	}

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("classrelay", store))

	r.POST("/login", srv.handleLogin)
	r.POST("/logout", srv.handleLogout)
	r.POST("/auth", srv.handleAuth)
	r.GET("/ws", func(c *gin.Context) {
		hub.Handle(ctx, c)
	})

	api := r.Group("/api")
	api.POST("/session", srv.handleStartSession)
	api.GET("/session/:id", srv.handleSnapshot)
	api.POST("/session/:id/end", srv.handleEndSession)
	api.POST("/session/:id/raise-hand", srv.handleRaiseHand)
	api.POST("/session/:id/spotlight", srv.handleSpotlight)
	api.POST("/session/:id/whiteboard-control", srv.handleWhiteboardControl)
	api.POST("/session/:id/timer", srv.handleTimer)
	api.POST("/session/:id/video-token", srv.handleVideoToken)
	api.POST("/whiteboard", srv.handleWhiteboard)
	api.POST("/webrtc/signal", srv.handleWebRTCSignal)
	api.POST("/relay", srv.handleRelay)
	api.POST("/trigger-card", srv.handleTriggerCard)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
