// Package admin serves the read-only HTTP surface of a replctl process:
// liveness, session status and prometheus metrics.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/replctl/internal/observability"
	"github.com/danmuck/replctl/internal/repl"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const Version = "0.1.0"

var (
	ErrStatusSourceRequired = errors.New("admin: status source required")
	ErrUnauthorized         = errors.New("admin: unauthorized")
)

// StatusSource reports the current session state.
type StatusSource interface {
	Status() repl.Status
}

// Options configures the admin surface. An empty Token leaves /status open.
type Options struct {
	CorsOrigins []string
	Token       string
}

type Server struct {
	addr     string
	source   StatusSource
	token    string
	router   *gin.Engine
	appeared time.Time
}

func New(addr string, source StatusSource, opts Options) (*Server, error) {
	if source == nil {
		return nil, ErrStatusSourceRequired
	}
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		addr:     addr,
		source:   source,
		token:    strings.TrimSpace(opts.Token),
		router:   r,
		appeared: time.Now(),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		st := s.source.Status()
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": "replctl",
			"module":  st.Module,
			"version": Version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		st := s.source.Status()
		code := http.StatusOK
		if st.Phase != repl.PhaseReady {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready": st.Phase == repl.PhaseReady,
			"phase": st.Phase,
		})
	})

	s.router.GET("/status", s.requireToken(), func(c *gin.Context) {
		c.JSON(http.StatusOK, s.source.Status())
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		if err := validateToken(s.token, bearerToken(c.GetHeader("Authorization"))); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func validateToken(want, got string) error {
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Serve listens on the admin address until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("admin.Server.Serve addr=%q", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Msgf("admin.Server.Serve shutdown err=%v", err)
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
