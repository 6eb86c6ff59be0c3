// ABOUTME: HTTP server wiring the realtime engine together
// ABOUTME: Owns the websocket endpoint, health checks, metrics, and shutdown

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/palaver-chat/palaver/internal/auth"
	"github.com/palaver-chat/palaver/internal/chat"
	"github.com/palaver-chat/palaver/internal/config"
	"github.com/palaver-chat/palaver/internal/dispatch"
	"github.com/palaver-chat/palaver/internal/metrics"
	"github.com/palaver-chat/palaver/internal/presence"
	"github.com/palaver-chat/palaver/internal/rooms"
	"github.com/palaver-chat/palaver/internal/session"
	"github.com/palaver-chat/palaver/internal/store"
	"github.com/palaver-chat/palaver/internal/throttle"
)

// Server composes the realtime conversation engine: store, verifier,
// presence and room state, dispatcher, command handlers, and the HTTP
// surface exposing the websocket endpoint.
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	store   *store.SQLiteStore
	service *chat.Service
	typing  *throttle.Keyed
	metrics *metrics.Metrics

	verifier auth.TokenVerifier
	upgrader websocket.Upgrader

	httpServer  *http.Server
	tsnetServer *tsnet.Server
}

// New builds a fully wired server from configuration. The store is
// opened (and its schema initialized) here; everything downstream is
// plain dependency injection.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("creating token verifier: %w", err)
	}

	var m *metrics.Metrics
	var promReg *prometheus.Registry
	if cfg.Metrics.Enabled {
		promReg = prometheus.NewRegistry()
		m = metrics.New(promReg)
	}

	registry := presence.NewRegistry(logger)
	tracker := rooms.NewTracker(logger)
	dispatcher := dispatch.NewDispatcher(registry, tracker, m, logger)
	typing := throttle.NewKeyed(cfg.Realtime.TypingInterval)
	service := chat.NewService(st, registry, tracker, dispatcher, typing, cfg.Realtime.BacklogLimit, m, logger)

	s := &Server{
		config:   cfg,
		logger:   logger.With("component", "server"),
		store:    st,
		service:  service,
		typing:   typing,
		metrics:  m,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// handleWebSocket authenticates the handshake and hands the socket to a
// session. The credential is verified before the upgrade, so an
// unauthenticated client never holds an open websocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	credential, err := auth.CredentialFromRequest(r)
	if err != nil {
		http.Error(w, "missing credential", http.StatusUnauthorized)
		return
	}
	userID, err := s.verifier.Verify(credential)
	if err != nil {
		s.logger.Debug("rejected websocket handshake", "error", err)
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	sess := session.New(conn, userID, s.service, s.metrics,
		s.config.Realtime.SendBuffer,
		s.config.Realtime.PingInterval,
		s.config.Realtime.PongTimeout,
		s.logger)

	// Run blocks for the life of the connection. The request context is
	// tied to the hijacked HTTP request, so commands run off Background.
	sess.Run(context.Background())
}

// handleHealth returns 200 OK while the process is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "store unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Run starts the server and blocks until the context is canceled or the
// listener fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// setupListener creates the listener from configuration, either plain
// TCP or a tailscale node.
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.config.Server.HTTPAddr, err)
	}
	return ln, nil
}

// setupTailscaleListener brings up an embedded tailscale node and
// listens on it, optionally exposed publicly via funnel.
func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   tsCfg.AuthKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	if tsCfg.Funnel {
		ln, err := s.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	}

	ln, err := s.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale: %w", err)
	}
	return ln, nil
}

func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	if status == nil || status.Self == nil {
		s.logger.Info("tailscale node up", "hostname", hostname)
		return
	}
	s.logger.Info("tailscale node up",
		"hostname", hostname,
		"dns_name", status.Self.DNSName,
		"ips", status.Self.TailscaleIPs,
	)
}

// resolveTailscaleStateDir returns the configured state dir or a
// per-user default under the home directory.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".palaver", "tsnet"), nil
}

// gracefulShutdown stops accepting connections and closes every
// component. A fresh context is used since the run context is already
// canceled by the time we get here.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown closes the HTTP server and all owned components.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if s.tsnetServer != nil {
		if err := s.tsnetServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale shutdown: %w", err))
		}
	}
	s.typing.Close()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	s.logger.Info("shutdown complete")
	return nil
}
