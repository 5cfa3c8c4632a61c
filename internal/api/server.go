// Package api is the HTTP surface: the WebSocket upgrade endpoint plus a
// small read-only monitoring API. No business logic lives here.
package api

import (
	"net/http"
	"strconv"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classboard/internal/gateway"
	"classboard/internal/history"
	"classboard/internal/registry"
	"classboard/internal/transfer"
)

// Server routes HTTP traffic to the gateway and monitoring handlers.
type Server struct {
	engine    *gin.Engine
	gw        *gateway.Gateway
	reg       *registry.Registry
	transfers *transfer.Coordinator
	hist      *history.Log
}

// NewServer builds the gin engine and registers all routes.
func NewServer(gw *gateway.Gateway, reg *registry.Registry, transfers *transfer.Coordinator, hist *history.Log) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	s := &Server{
		engine:    engine,
		gw:        gw,
		reg:       reg,
		transfers: transfers,
		hist:      hist,
	}

	engine.GET("/ws", gw.HandleWS)
	engine.GET("/healthz", s.healthCheck)
	engine.GET("/api/stats", s.stats)
	engine.GET("/api/rooms/:code/events", s.roomEvents)

	return s
}

// ServeHTTP lets the server plug into a standard http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rooms":             s.reg.Stats(),
		"connections":       s.gw.ConnCount(),
		"pending_transfers": s.transfers.PendingCount(),
	})
}

// roomEvents exposes the audit log for one room. Works on live and
// already-destroyed rooms alike; with history disabled it returns an empty
// list.
func (s *Server) roomEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := s.hist.RoomEvents(c.Request.Context(), c.Param("code"), limit)
	if err != nil {
		zap.L().Error("room events query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room events"})
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
