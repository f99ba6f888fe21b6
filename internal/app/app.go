// Package app wires the memory engine's subsystems into a running
// process: the vector store, the embedding encoder (wrapped in a TTL
// cache), the snapshot reconciliation step, the memory service, the MCP
// server, the recall HTTP endpoint, and the optional audit log.
//
// Grounded on the teacher's internal/app.App: New performs all
// initialization synchronously and records a slice of closers so
// Shutdown can tear everything down in reverse order within a deadline;
// functional Option values let tests inject doubles for any subsystem
// instead of building real ones from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/memorize-mcp/memorize/internal/audit"
	"github.com/memorize-mcp/memorize/internal/cache"
	"github.com/memorize-mcp/memorize/internal/config"
	"github.com/memorize-mcp/memorize/internal/embedding"
	"github.com/memorize-mcp/memorize/internal/mcpserver"
	"github.com/memorize-mcp/memorize/internal/memoryservice"
	"github.com/memorize-mcp/memorize/internal/persistence"
	"github.com/memorize-mcp/memorize/internal/recall"
	"github.com/memorize-mcp/memorize/internal/store"
)

// embeddingCacheTTL bounds how long an identical text's embedding is
// reused before being recomputed.
const embeddingCacheTTL = 10 * time.Minute

// shutdownHTTPTimeout bounds how long Shutdown waits for an in-flight
// HTTP listener to drain before moving on to the next closer.
const shutdownHTTPTimeout = 5 * time.Second

// App owns every subsystem's lifetime for one memorize-mcp process.
type App struct {
	cfg *config.Config

	vectorStore store.Store
	encoder     embedding.Embedder
	cachedEnc   *cache.CachedEmbedder
	svc         *memoryservice.Service
	mcp         *mcpserver.Server
	recallSrv   *http.Server
	auditLog    *audit.Logger

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New, used to inject test doubles.
type Option func(*App)

// WithStore injects a Store instead of opening a BadgerStore from
// cfg.DBPath.
func WithStore(s store.Store) Option {
	return func(a *App) { a.vectorStore = s }
}

// WithEmbedder injects an Embedder instead of constructing an Encoder
// from cfg.ModelDir. The embedder is used as-is, without the TTL cache
// wrapper, so tests can assert exact call counts.
func WithEmbedder(e embedding.Embedder) Option {
	return func(a *App) { a.encoder = e }
}

// WithAuditLogger injects an audit logger instead of opening one under
// cfg.DBPath.
func WithAuditLogger(l *audit.Logger) Option {
	return func(a *App) { a.auditLog = l }
}

// New wires every subsystem together, in order: store, embedder,
// snapshot reconciliation, audit log, memory service, MCP server
// (audit-wired), recall handler (audit-wired).
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStore(); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initEmbedder(); err != nil {
		return nil, fmt.Errorf("app: init embedder: %w", err)
	}
	if err := a.reconcileSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("app: reconcile snapshot: %w", err)
	}
	if err := a.initAudit(); err != nil {
		return nil, fmt.Errorf("app: init audit: %w", err)
	}

	a.svc = memoryservice.New(a.vectorStore, a.encoder, slog.Default())
	a.mcp = mcpserver.New(a.svc, slog.Default(), a.auditLog)

	if err := a.initRecall(); err != nil {
		return nil, fmt.Errorf("app: init recall: %w", err)
	}

	return a, nil
}

func (a *App) initStore() error {
	if a.vectorStore != nil {
		return nil
	}
	s, err := store.NewBadgerStore(store.DefaultDir(a.cfg.DBPath))
	if err != nil {
		return err
	}
	a.vectorStore = s
	a.closers = append(a.closers, s.Close)
	return nil
}

func (a *App) initEmbedder() error {
	if a.encoder != nil {
		return nil
	}
	enc, err := embedding.NewEncoder(a.cfg.ModelDir)
	if err != nil {
		return err
	}
	cached := cache.WrapEmbedder(enc, embeddingCacheTTL)
	a.cachedEnc = cached
	a.encoder = cached
	a.closers = append(a.closers, func() error {
		cached.Close()
		return nil
	})
	return nil
}

// reconcileSnapshot loads the JSON snapshot (if any) and reconciles it
// against the live store's contents, per §4.3's startup sequence.
func (a *App) reconcileSnapshot(ctx context.Context) error {
	snap, ok := persistence.Load(persistence.Path(a.cfg.DBPath))
	if !ok {
		return nil
	}
	return persistence.Reconcile(ctx, a.vectorStore, a.encoder, snap)
}

func (a *App) initRecall() error {
	if a.cfg.HookPort == 0 {
		return nil
	}
	handler := recall.NewHandler(a.vectorStore, a.encoder, slog.Default(), a.auditLog)
	a.recallSrv = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", a.cfg.HookPort),
		Handler: handler.Mux(),
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownHTTPTimeout)
		defer cancel()
		return a.recallSrv.Shutdown(ctx)
	})
	return nil
}

func (a *App) initAudit() error {
	if a.auditLog != nil {
		return nil
	}
	l, err := audit.Open(a.cfg.DBPath)
	if err != nil {
		// The audit log is a pure enrichment (§10): its failure to open
		// never blocks startup.
		slog.Warn("app: audit log unavailable, continuing without it", "err", err)
		return nil
	}
	a.auditLog = l
	a.closers = append(a.closers, l.Close)
	return nil
}

// Run serves the MCP protocol over the configured transport, and the
// recall HTTP endpoint concurrently if --hook-port is non-zero. It
// blocks until ctx is canceled or a listener returns a fatal error.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	if a.recallSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("recall endpoint listening", "addr", a.recallSrv.Addr)
			if err := a.recallSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("app: recall endpoint: %w", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		switch a.cfg.Transport {
		case config.TransportHTTP:
			srv := &http.Server{
				Addr:    fmt.Sprintf("127.0.0.1:%d", a.cfg.Port),
				Handler: a.mcp.HTTPHandler(),
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownHTTPTimeout)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			slog.Info("mcp server listening", "transport", "http", "addr", srv.Addr)
			if e := srv.ListenAndServe(); e != nil && !errors.Is(e, http.ErrServerClosed) {
				err = fmt.Errorf("app: mcp http server: %w", e)
			}
		default:
			slog.Info("mcp server listening", "transport", "stdio")
			err = a.mcp.RunStdio(ctx)
		}
		if err != nil {
			errCh <- err
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		<-done
		return ctx.Err()
	case err := <-errCh:
		return err
	case <-done:
		return nil
	}
}

// Shutdown tears down every subsystem in reverse-init order, flushing a
// best-effort snapshot first per §4.3's shutdown export clause.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.vectorStore != nil {
			snap, err := persistence.Dump(ctx, a.vectorStore)
			if err != nil {
				slog.Warn("app: shutdown snapshot dump failed", "err", err)
			} else if err := persistence.Save(persistence.Path(a.cfg.DBPath), snap); err != nil {
				slog.Warn("app: shutdown snapshot save failed", "err", err)
			}
		}

		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// Service exposes the memory service for tests that want to drive
// store_qa/query_qa/merge_knowledge directly without going through MCP.
func (a *App) Service() *memoryservice.Service { return a.svc }
