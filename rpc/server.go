// Package rpc serves the vault over JSON-RPC 2.0, with a websocket stream of
// committed events and Prometheus metrics on the same listener.
package rpc

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"epochvault/core/auth"
	"epochvault/core/host"
	"epochvault/indexer"
)

const (
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	shutdownTimeout        = 10 * time.Second
)

// Backend is the node surface the server exposes.
type Backend interface {
	ChainID() uint64
	Invoke(ctx context.Context, inv *auth.Invocation) (*host.Receipt, error)
	Offer() (*host.OfferView, error)
	Request(addr [20]byte) (*host.RequestView, error)
	Requests() ([]*host.RequestView, error)
	Epoch() (*host.EpochView, error)
	RedeemRate(epochID uint32) (*host.RateView, error)
	Balance(token string, addr [20]byte) (*host.BalanceView, error)
	Allowance(token string, owner, spender [20]byte) (*host.AllowanceView, error)
}

// Archive answers history queries. It is optional.
type Archive interface {
	ListEvents(ctx context.Context, filter indexer.Filter) ([]indexer.Event, error)
	Invocation(ctx context.Context, digest string) (*indexer.InvocationRecord, error)
}

// Config tunes the server.
type Config struct {
	// AuthToken, when set, must be presented as a bearer token on vault_invoke.
	AuthToken          string
	RateLimitPerSecond float64
	RateLimitBurst     int
	MaxBodyBytes       int64
	Logger             *slog.Logger
}

type Server struct {
	backend   Backend
	archive   Archive
	hub       *Hub
	authToken string
	limiter   *rateLimiter
	maxBody   int64
	logger    *slog.Logger
}

// NewServer builds a server over backend. hub may be nil when no event stream
// is wanted.
func NewServer(backend Backend, archive Archive, hub *Hub, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxRequestBytes
	}
	return &Server{
		backend:   backend,
		archive:   archive,
		hub:       hub,
		authToken: strings.TrimSpace(cfg.AuthToken),
		limiter:   newRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		maxBody:   maxBody,
		logger:    logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.limiter.middleware).Post("/", s.handle)
	if s.hub != nil {
		r.Get("/ws/events", s.hub.ServeHTTP)
	}
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if s.hub != nil {
			s.hub.Close()
		}
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}
