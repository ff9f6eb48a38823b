// ABOUTME: Gateway HTTP server wiring: routes, auth middleware, lifecycle.
// ABOUTME: Exposes the thread API and the SSE streaming endpoint.

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/genie-gateway/internal/auth"
	"github.com/2389/genie-gateway/internal/dedupe"
	"github.com/2389/genie-gateway/internal/orchestrator"
	"github.com/2389/genie-gateway/internal/store"
)

const (
	dedupeTTL     = 5 * time.Minute
	dedupeMaxSize = 10000
)

// EventLog is the read side of the audit ledger. nil disables the events
// endpoint.
type EventLog interface {
	EventsByThread(ctx context.Context, threadID string, limit int) ([]*store.LedgerEvent, error)
}

// Options configures a Gateway.
type Options struct {
	Addr     string
	Threads  *store.ThreadStore
	Orch     *orchestrator.Orchestrator
	Events   EventLog             // optional
	Verifier auth.TokenVerifier   // optional; nil disables auth
	Logger   *slog.Logger
}

// Gateway serves the HTTP API: thread management, history, the audit trail,
// and token-by-token answer streaming over SSE.
type Gateway struct {
	threads    *store.ThreadStore
	orch       *orchestrator.Orchestrator
	events     EventLog
	dedupe     *dedupe.Cache
	logger     *slog.Logger
	httpServer *http.Server
}

// New wires a gateway from its dependencies.
func New(opts Options) (*Gateway, error) {
	if opts.Threads == nil {
		return nil, errors.New("thread store is required")
	}
	if opts.Orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		threads: opts.Threads,
		orch:    opts.Orch,
		events:  opts.Events,
		dedupe:  dedupe.New(dedupeTTL, dedupeMaxSize),
		logger:  logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           g.Handler(opts.Verifier),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// Handler builds the route tree. The health endpoint stays reachable without
// a token; everything under /api/ goes through the auth middleware.
func (g *Gateway) Handler(verifier auth.TokenVerifier) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/threads", g.handleCreateThread)
	api.HandleFunc("GET /api/threads", g.handleListThreads)
	api.HandleFunc("POST /api/threads/{id}/select", g.handleSelectThread)
	api.HandleFunc("GET /api/threads/{id}/messages", g.handleThreadMessages)
	api.HandleFunc("GET /api/threads/{id}/events", g.handleThreadEvents)
	api.HandleFunc("POST /api/send", g.handleSend)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", g.handleHealth)
	root.Handle("/api/", auth.HTTPAuthMiddleware(verifier)(api))
	return root
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (g *Gateway) Start() error {
	g.logger.Info("http server listening", "addr", g.httpServer.Addr)
	if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases gateway resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.dedupe.Close()
	return g.httpServer.Shutdown(ctx)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
