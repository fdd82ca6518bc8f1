package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"chargelog/internal/middleware/ratelimit"
	"chargelog/internal/middleware/trace"
	"chargelog/internal/services"
)

type Server struct {
	http.Server
	sessions    *services.SessionService
	backendType string

	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server. Rate limiting applies to mutating methods only; reads are
// served from the snapshot cache and are cheap.
func NewServer(addr string, sessions *services.SessionService, backendType string) *Server {
	mux := http.NewServeMux()

	s := &Server{
		sessions:    sessions,
		backendType: backendType,
		rateLimiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		tracer:      trace.NewMiddleware(clientIP),
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/insights", s.handleInsights)
	mux.HandleFunc("/api/locations", s.handleLocations)
	mux.HandleFunc("/api/locations/resolve", s.handleResolveLocations)
	mux.HandleFunc("/api/meta", s.handleMeta)

	handler := s.tracer.Middleware(s.withSecurityHeaders(s.withWriteLimit(mux)))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// withWriteLimit applies the rate limiter to mutating requests.
func (s *Server) withWriteLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			if !s.rateLimiter.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client IP, preferring proxy headers.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
