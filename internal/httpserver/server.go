package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pastebin-lite/internal/clock"
	"pastebin-lite/internal/paste"
)

// Config captures server configuration.
type Config struct {
	Pastes      *paste.Service
	Clock       *clock.Clock
	RateLimiter *RateLimiter
	TrustProxy  bool
	BaseURL     string
	Logger      *slog.Logger
}

// Server wraps HTTP handling logic.
type Server struct {
	pastes     *paste.Service
	clock      *clock.Clock
	router     chi.Router
	limiter    *RateLimiter
	trustProxy bool
	baseURL    *url.URL
	logger     *slog.Logger
}

// New constructs a new Server instance.
func New(cfg Config) (*Server, error) {
	if cfg.Pastes == nil {
		return nil, errors.New("paste service required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New(false)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var parsedBase *url.URL
	if cfg.BaseURL != "" {
		var err error
		parsedBase, err = url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		if parsedBase.Scheme == "" || parsedBase.Host == "" {
			return nil, errors.New("base url must include scheme and host")
		}
		parsedBase.Path = strings.TrimSuffix(parsedBase.Path, "/")
	}

	srv := &Server{
		pastes:     cfg.Pastes,
		clock:      cfg.Clock,
		router:     chi.NewRouter(),
		limiter:    cfg.RateLimiter,
		trustProxy: cfg.TrustProxy,
		baseURL:    parsedBase,
		logger:     cfg.Logger,
	}
	srv.routes()
	return srv, nil
}

// Handler returns the underlying router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(RateLimitMiddleware(s.limiter, func(r *http.Request) string {
		return ClientIP(r, s.trustProxy)
	}))
	r.Use(middleware.Compress(5, "text/plain", "application/json"))
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(ar chi.Router) {
		ar.Get("/healthz", s.handleHealth)
		ar.Post("/pastes", s.handleCreate)
		ar.Get("/pastes/{id}", s.handleFetch)
	})

	r.Route("/p/{id}", func(pr chi.Router) {
		pr.Get("/", s.handleRaw)
		pr.Get("/qr", s.handleQR)
	})
}

func (s *Server) isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if s.baseURL != nil && s.baseURL.Scheme == "https" {
		return true
	}
	if s.trustProxy {
		proto := strings.ToLower(r.Header.Get("X-Forwarded-Proto"))
		if proto == "https" {
			return true
		}
	}
	return false
}

// shareURL is the link handed back on creation.
func (s *Server) shareURL(r *http.Request, id string) string {
	if s.baseURL != nil {
		u := *s.baseURL
		u.Path = strings.TrimSuffix(u.Path, "/") + "/p/" + id
		return u.String()
	}

	scheme := "http"
	if s.isSecureRequest(r) {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s/p/%s", scheme, host, id)
}
