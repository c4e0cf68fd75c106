// Package api exposes a thin read-only HTTP/WS surface over the
// strategy engine's live state: current bias per symbol, open
// positions, and a push channel for position/order/circuit events. This
// is not a feature surface (the trading logic exists and runs without
// it) — it is the ambient operational surface the teacher always ships
// alongside its trading core, grounded on teacher internal/api/server.go
// and internal/api/websocket.go, trimmed down from their multi-tenant
// billing/autopilot scope to what a single-account execution engine
// needs: status and a live event feed.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"strategybot/internal/auth"
	"strategybot/internal/events"
	"strategybot/internal/execution/position"
	"strategybot/internal/strategyengine"
)

// ServerConfig mirrors the teacher's ServerConfig shape, trimmed to the
// fields this surface actually uses.
type ServerConfig struct {
	Port        int
	AuthEnabled bool
}

// Server is the HTTP/WS status surface.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	jwtManager *auth.JWTManager
	hub        *WSHub
	strategies *strategyengine.Engine
	positions  *position.Tracker
	log        zerolog.Logger
}

// NewServer wires the status API. jwtManager may be nil, in which case
// the API is unauthenticated (matching the teacher's authEnabled switch
// in ServerConfig, here decided by whether a manager was supplied).
func NewServer(cfg ServerConfig, bus *events.Bus, jwtManager *auth.JWTManager, strategies *strategyengine.Engine, positions *position.Tracker, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
	}))

	hub := NewWSHub()
	go hub.Run()
	bus.SubscribeAll(func(ev events.Event) {
		hub.BroadcastEvent(ev)
	})

	s := &Server{
		router:     router,
		config:     cfg,
		jwtManager: jwtManager,
		hub:        hub,
		strategies: strategies,
		positions:  positions,
		log:        log.With().Str("component", "api_server").Logger(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	group := s.router.Group("/api")
	if s.jwtManager != nil {
		group.Use(auth.Middleware(s.jwtManager))
	}

	group.GET("/strategy/:symbol", s.getStrategyState)
	group.GET("/positions", s.getPositions)
	group.GET("/ws", s.serveWebSocket)
}

func (s *Server) getStrategyState(c *gin.Context) {
	symbol := c.Param("symbol")
	state, ok := s.strategies.Last(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no state for symbol", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.positions.All()})
}

// Start begins serving HTTP, blocking until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
