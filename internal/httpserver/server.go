package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"photovault/internal/domain/media"
	"photovault/internal/middleware"
	"photovault/internal/pkg/jwt"
)

const BasePath = "/api/v1"

// Options configures the router.
type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	InternalToken   string
	JWTSecret       string
	CORSOrigins     []string
	MaxUploadBytes  int64
	// Health reports readiness; nil means always healthy.
	Health func(ctx context.Context) error
}

type Server struct {
	opts   Options
	engine *gin.Engine
	log    zerolog.Logger
}

func New(svc *media.Service, opts Options, log zerolog.Logger) *Server {
	log = log.With().Str("component", "http-server").Logger()
	engine := gin.New()
	engine.MaxMultipartMemory = 32 << 20
	engine.Use(middleware.ErrorLogger(log), middleware.RequestLogger(log), middleware.CORS(opts.CORSOrigins))

	engine.GET("/healthz", func(c *gin.Context) {
		if opts.Health != nil {
			if err := opts.Health(c.Request.Context()); err != nil {
				log.Error().Err(err).Msg("health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var tokens *jwt.Service
	if opts.JWTSecret != "" {
		tokens = jwt.New(opts.JWTSecret, 24*time.Hour)
	}

	v1 := engine.Group(BasePath)
	v1.Use(middleware.Identity(opts.InternalToken, tokens, log))
	media.RegisterRoutes(v1, media.NewHandler(svc, opts.MaxUploadBytes, BasePath))

	return &Server{opts: opts, engine: engine, log: log}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run starts the HTTP listener and shuts it down gracefully once ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.opts.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
