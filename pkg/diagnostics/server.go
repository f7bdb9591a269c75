// Package diagnostics serves exporter status over HTTP.
package diagnostics

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/otlpexport/internal/constants"
	"github.com/hyp3rd/otlpexport/pkg/config"
	"github.com/hyp3rd/otlpexport/pkg/exportmetrics"
	"github.com/hyp3rd/otlpexport/pkg/logging"
)

// StatusPath is the route serving the JSON snapshot.
const StatusPath = "/otlpexport/status"

// Snapshot captures the exporters' state for the status endpoint.
type Snapshot struct {
	Protocol          string                 `json:"protocol"`
	Endpoint          string                 `json:"endpoint"`
	StartTime         time.Time              `json:"start_time"`
	LastReloadTime    time.Time              `json:"last_reload_time"`
	ConfigReloadCount int64                  `json:"config_reload_count"`
	Exporters         []exportmetrics.Status `json:"exporters"`
	Timestamp         time.Time              `json:"timestamp"`
}

// SnapshotProvider supplies diagnostic snapshots.
type SnapshotProvider interface {
	Snapshot() Snapshot
}

// Server exposes runtime status over HTTP for operational diagnostics.
type Server struct {
	cfg      config.DiagnosticsConfig
	provider SnapshotProvider
	logger   logging.Adapter

	server *http.Server
	addr   net.Addr
	mu     sync.Mutex
	start  sync.Once
	stop   sync.Once
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the adapter used to report serve and shutdown failures.
func WithLogger(logger logging.Adapter) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer constructs a diagnostics server.
func NewServer(cfg config.DiagnosticsConfig, provider SnapshotProvider, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		provider: provider,
		logger:   logging.NewNoopAdapter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins serving the diagnostics endpoint until the supplied context is canceled or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.HTTPAddr == "" {
		return ewrap.New("diagnostics http_addr is required")
	}

	var startErr error

	s.start.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc(StatusPath, s.HandleStatus)

		s.server = &http.Server{
			Addr:              s.cfg.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: constants.DefaultTimeout,
		}

		lc := net.ListenConfig{}

		ln, err := lc.Listen(ctx, "tcp", s.cfg.HTTPAddr)
		if err != nil {
			startErr = ewrap.Wrap(err, "listen diagnostics")

			return
		}

		s.mu.Lock()
		s.addr = ln.Addr()
		s.mu.Unlock()

		srv := s.server

		go func() {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultShutdownTimeout)
			defer cancel()

			err := s.Shutdown(shutdownCtx)
			if err != nil {
				s.logger.Error(shutdownCtx, err, "shutdown diagnostics server")
			}
		}()

		go func() {
			err := srv.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error(context.Background(), err, "diagnostics server stopped")
			}
		}()
	})

	return startErr
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addr
}

// Shutdown stops the diagnostics server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.stop.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.server == nil {
			return
		}

		ctxShutdown, cancel := context.WithTimeout(ctx, constants.DefaultShutdownTimeout)
		defer cancel()

		shutdownErr = s.server.Shutdown(ctxShutdown)
		s.server = nil
	})

	if shutdownErr != nil {
		return ewrap.Wrap(shutdownErr, "shutdown diagnostics server")
	}

	return nil
}

// HandleStatus serves StatusPath with a JSON snapshot of the runtime status.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AuthToken != "" {
		if !validAuth(r.Header.Get("Authorization"), s.cfg.AuthToken) {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}
	}

	snapshot := s.provider.Snapshot()
	snapshot.Timestamp = time.Now().UTC()

	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(snapshot)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func validAuth(header, token string) bool {
	const prefix = "Bearer "

	if header == "" {
		return false
	}

	if !strings.HasPrefix(header, prefix) {
		return false
	}

	provided := strings.TrimSpace(header[len(prefix):])

	return subtle.ConstantTimeCompare([]byte(provided), []byte(token)) == 1
}
