// Package gateway serves the review UI: a websocket channel that pushes
// workspace snapshots and accepts review commands, plus a REST mirror.
package gateway

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/johnmikel306/learntrack-sub002/internal/config"
	"github.com/johnmikel306/learntrack-sub002/internal/gateway/hub"
	"github.com/johnmikel306/learntrack-sub002/internal/metrics"
	"github.com/johnmikel306/learntrack-sub002/internal/platform/logger"
)

// Options tunes the websocket channel and command handling.
type Options struct {
	APIKey         string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64
	CommandTimeout time.Duration
}

// OptionsFromConfig reads the gateway options from the service config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		APIKey:         cfg.GatewayAPIKey,
		PingInterval:   cfg.PingInterval,
		WriteTimeout:   cfg.WriteTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
		CommandTimeout: cfg.RequestTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 30 * time.Second
	}
	return o
}

// Server handles websocket and REST clients of the gateway.
type Server struct {
	opts       Options
	hub        *hub.Hub
	workspaces *Workspaces
	metrics    *metrics.Metrics
	log        *logger.Logger
	upgrader   websocket.Upgrader
}

// NewServer creates a gateway server. The metrics argument may be nil, in
// which case /metrics is not served.
func NewServer(opts Options, h *hub.Hub, workspaces *Workspaces, m *metrics.Metrics, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		opts:       opts.withDefaults(),
		hub:        h,
		workspaces: workspaces,
		metrics:    m,
		log:        log.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Echo builds the HTTP server with every gateway route.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/health", s.handleHealth)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	e.GET("/ws", s.HandleWebSocket)

	var mw []echo.MiddlewareFunc
	if s.opts.APIKey != "" {
		mw = append(mw, middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.APIKey)) == 1, nil
			},
		}))
	}
	s.registerREST(e.Group("/v1/workspaces/:workspace_id", mw...))

	return e
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "healthy",
		"connections": s.hub.ConnectionCount(),
		"workspaces":  len(s.workspaces.IDs()),
	})
}
