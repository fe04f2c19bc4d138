// Package devserver runs the in-memory ledger service over HTTP so the CLI
// and the HTTP gateway can be exercised end to end without the real backend.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"frintab/internal/gateway/memory"
	applog "frintab/internal/log"
)

// Defaults for the write rate limiter.
const (
	DefaultWriteLimit  = 60
	DefaultWriteWindow = time.Minute
)

type Options struct {
	Addr string
	// WriteLimit caps POST requests per client IP per WriteWindow.
	WriteLimit  int
	WriteWindow time.Duration
	Logger      *applog.Logger
	// Registry receives the server collectors and backs /metrics. A nil
	// Registry gets a private one.
	Registry *prometheus.Registry
}

// Server wraps http.Server with the ledger routes and probes.
type Server struct {
	*http.Server
	store        *memory.Store
	logger       *applog.Logger
	rateLimiter  *rateLimiter
	limited      prometheus.Counter
	suspicious   prometheus.Counter
	shutdownOnce sync.Once
}

func NewServer(store *memory.Store, opts Options) (*Server, error) {
	if store == nil {
		return nil, errors.New("devserver: nil store")
	}
	if opts.Logger == nil {
		opts.Logger = applog.Discard()
	}
	if opts.WriteLimit <= 0 {
		opts.WriteLimit = DefaultWriteLimit
	}
	if opts.WriteWindow <= 0 {
		opts.WriteWindow = DefaultWriteWindow
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	limited := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "frintab",
		Subsystem: "devserver",
		Name:      "rate_limited_total",
		Help:      "Write requests rejected by the per-IP rate limiter.",
	})
	suspicious := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "frintab",
		Subsystem: "devserver",
		Name:      "suspicious_requests_total",
		Help:      "Requests rejected as scanner probes.",
	})
	for _, c := range []prometheus.Collector{limited, suspicious} {
		if err := opts.Registry.Register(c); err != nil {
			return nil, fmt.Errorf("register devserver metrics: %w", err)
		}
	}

	s := &Server{
		store:       store,
		logger:      opts.Logger.WithComponent(applog.ComponentDevServer),
		rateLimiter: newRateLimiter(opts.WriteLimit, opts.WriteWindow),
		limited:     limited,
		suspicious:  suspicious,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	mux.Handle(memory.BasePath+"/", memory.NewHandler(store))

	s.Server = &http.Server{
		Addr:              opts.Addr,
		Handler:           withRequestID(applog.Middleware(opts.Logger)(s.withSecurity(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// withSecurity sets response headers and rate limits writes per client.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w.Header())

		if isSuspicious(r) {
			s.suspicious.Inc()
			s.logger.WarnContext(r.Context(), "Suspicious request rejected",
				applog.FieldClientIP, extractClientIP(r),
				applog.FieldPath, r.URL.Path)
			http.NotFound(w, r)
			return
		}

		if r.Method == http.MethodPost {
			clientIP := extractClientIP(r)
			if !s.rateLimiter.allow(clientIP) {
				s.limited.Inc()
				s.logger.WarnContext(r.Context(), "Rate limit exceeded",
					applog.FieldClientIP, clientIP,
					applog.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", fmt.Sprint(int(s.rateLimiter.window.Seconds())))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// withRequestID makes sure every request carries an X-Request-ID and echoes
// it on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(applog.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(applog.RequestIDHeader, id)
		}
		w.Header().Set(applog.RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ready"))
}

// ListenAndServe serves until Shutdown; http.ErrServerClosed is not an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Ledger dev server listening",
		applog.FieldAddr, s.Addr,
		applog.FieldPath, strings.TrimSuffix(memory.BasePath, "/"))
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and the limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
