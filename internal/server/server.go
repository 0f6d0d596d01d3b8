package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sandboxui/bridge/internal/api/middleware"
	"github.com/sandboxui/bridge/internal/config"
	"github.com/sandboxui/bridge/internal/gateway"
	"github.com/sandboxui/bridge/internal/infrastructure/monitoring"
	"github.com/sandboxui/bridge/internal/logging"
	"github.com/sandboxui/bridge/internal/secrets"
	"github.com/sandboxui/bridge/internal/session"
	"github.com/sandboxui/bridge/internal/shared/errs"
	"github.com/sandboxui/bridge/internal/shared/paths"
	"github.com/sandboxui/bridge/internal/transfer"
	"github.com/sandboxui/bridge/internal/tree"
	"github.com/sandboxui/bridge/internal/ws"
)

// Server wraps the HTTP server and the bridge components.
type Server struct {
	router  *gin.Engine
	httpSrv *http.Server

	sess   *session.Session
	bridge *tree.Bridge
	agent  *transfer.Agent
	gw     *gateway.Gateway

	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// New assembles the full bridge: gateway, session, tree, secrets,
// transfer agent, WebSocket handler, routes.
func New(cfg *config.Config, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewDefault()
	}

	metrics := monitoring.NewMetrics()

	sess := session.New()
	gw := gateway.New(gateway.Config{
		BaseURL:           cfg.Sandbox.BaseURL,
		Timeout:           cfg.Sandbox.Timeout,
		RequestsPerSecond: cfg.Sandbox.RequestsPerSecond,
		Burst:             cfg.Sandbox.Burst,
	}, sess.TokenSource(), logger)

	bridge := tree.New(sess, gw, logger).WithMetrics(metrics)
	store := secrets.New(sess, gw, cfg.Secrets.DebounceWindow, logger).WithMetrics(metrics)
	agent := transfer.New(sess, gw, cfg.Transfer.HandleTTL, cfg.Transfer.MaxBytes, logger).WithMetrics(metrics)
	wsHandler := ws.NewHandler(sess, bridge, store, agent, gw, logger).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.Server.AllowOrigins
	}
	router.Use(middleware.CORS(corsCfg))

	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	s := &Server{
		router:  router,
		sess:    sess,
		bridge:  bridge,
		agent:   agent,
		gw:      gw,
		logger:  logger.Named("server"),
		config:  cfg,
		metrics: metrics,
	}

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stream", wsHandler.HandleConnection)
	router.GET("/transfers/:id", s.serveTransfer)
	router.POST("/uploads", s.upload)

	return s
}

// Router exposes the engine as an http.Handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, stops the transfer sweep and
// flushes the logger.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	s.agent.Stop()
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
	}
	s.logger.Sync()
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(s.metrics.Uptime().Seconds()),
		"session_active": s.sess.Active(),
	})
}

// serveTransfer redeems a handle exactly once. The handle is removed
// before the body is written, so a second request for the same id is a
// 404 no matter how the first one ended.
func (s *Server) serveTransfer(c *gin.Context) {
	h, ok := s.agent.Take(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown or already served handle"})
		return
	}

	disposition := h.Disposition
	if disposition == "attachment" {
		disposition = fmt.Sprintf("attachment; filename=%s", strconv.Quote(h.Name))
	}
	c.Header("Content-Disposition", disposition)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, h.ContentType, h.Bytes())
}

// upload accepts a multipart file destined for a sandbox folder. Bytes
// go over plain HTTP rather than the socket, mirroring downloads; the
// widget repaints the parent via the invalidated tree afterwards.
func (s *Server) upload(c *gin.Context) {
	sandboxID := s.sess.ID()
	if sandboxID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no active session"})
		return
	}

	path := c.PostForm("path")
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	if err := s.gw.Upload(c.Request.Context(), sandboxID, path, header.Filename, file); err != nil {
		s.logger.Warn("upload failed",
			zap.String("path", path),
			zap.String("name", header.Filename),
			zap.Error(err),
		)
		c.JSON(statusFor(err), gin.H{
			"error": err.Error(),
			"code":  errs.KindOf(err).String(),
		})
		return
	}

	// The tree keys nodes in id form; the multipart field may arrive
	// in either form.
	s.bridge.Invalidate(paths.ToID(path))
	c.JSON(http.StatusCreated, gin.H{"path": path, "name": header.Filename})
}

// statusFor maps the failure taxonomy back onto HTTP statuses for the
// plain-HTTP routes.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.Unauthorized:
		return http.StatusUnauthorized
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Conflict:
		return http.StatusConflict
	case errs.PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case errs.Invalid:
		return http.StatusBadRequest
	case errs.Unreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
