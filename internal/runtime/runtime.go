// Package runtime assembles the dispatch pipeline into a runnable HTTP
// service and manages its lifecycle. Runtime can be embedded in larger
// applications or run standalone.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tollgate-io/tollgate/internal/audit"
	"github.com/tollgate-io/tollgate/internal/auth"
	"github.com/tollgate-io/tollgate/internal/config"
	"github.com/tollgate-io/tollgate/internal/dispatch"
	"github.com/tollgate-io/tollgate/internal/ratelimit"
	"github.com/tollgate-io/tollgate/internal/server"
)

// Runtime owns an assembled dispatch pipeline and its HTTP server.
type Runtime struct {
	// Injected via options.
	cfg        *config.Config
	log        *slog.Logger
	routes     dispatch.Tree
	userMW     []dispatch.Middleware
	globalAuth auth.Func
	recorder   audit.Recorder

	// Assembled state.
	table   *dispatch.Table
	writer  *dispatch.Writer
	handler http.Handler

	// Lifecycle.
	mu      sync.Mutex
	server  *http.Server
	started time.Time
}

// New creates a runtime from the given options and assembles the pipeline.
// A route tree is required; everything else has defaults.
func New(opts ...Option) (*Runtime, error) {
	rt := &Runtime{log: slog.Default()}

	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if rt.cfg == nil {
		rt.cfg = config.Default()
	}
	if rt.routes == nil {
		return nil, fmt.Errorf("route tree required (use WithRoutes)")
	}

	if err := rt.assemble(); err != nil {
		return nil, err
	}
	return rt, nil
}

// assemble builds the route table, the dispatcher and the middleware
// stack, and mounts them on the outer mux.
func (rt *Runtime) assemble() error {
	table, err := dispatch.BuildTable(rt.routes)
	if err != nil {
		return fmt.Errorf("build route table: %w", err)
	}
	rt.table = table

	if rt.recorder == nil {
		recorder, err := buildRecorder(rt.cfg.Audit)
		if err != nil {
			return fmt.Errorf("build audit recorder: %w", err)
		}
		rt.recorder = recorder
	}

	var limiter *ratelimit.Limiter
	if rt.cfg.RateLimit.Enabled {
		limiter, err = ratelimit.New(ratelimit.Policy{
			RPS:        rt.cfg.RateLimit.RPS,
			Burst:      rt.cfg.RateLimit.Burst,
			MaxClients: rt.cfg.RateLimit.MaxClients,
		})
		if err != nil {
			return fmt.Errorf("build rate limiter: %w", err)
		}
	}

	global := rt.globalAuth
	if global == nil && len(rt.cfg.Auth.Users) > 0 {
		global = auth.Credentials(rt.cfg.Auth.Users)
	}
	engine := auth.NewEngine(global)

	rt.writer = dispatch.NewWriter(rt.log, rt.cfg.Dispatch.Pretty, rt.cfg.Dispatch.Debug)

	dispatcher, err := dispatch.NewDispatcher(dispatch.Config{
		Resolver:    dispatch.NewResolver(table, rt.cfg.Dispatch.MaxDepth),
		Engine:      engine,
		Writer:      rt.writer,
		Limiter:     limiter,
		Recorder:    rt.recorder,
		Logger:      rt.log,
		Passthrough: rt.cfg.Dispatch.Passthrough,
	})
	if err != nil {
		return fmt.Errorf("build dispatcher: %w", err)
	}

	// Pipeline-scoped steps; response hygiene outermost so even fault
	// responses pass through it, then the panic guard, then the deadline.
	chain := dispatch.NewChain(
		server.StripIdentityMiddleware,
		dispatch.Recover(rt.log, rt.writer),
		server.TimeoutMiddleware(rt.cfg.RequestTimeout()),
	)
	if rt.cfg.Dispatch.Compress {
		chain.Use(middleware.Compress(5))
	}
	chain.Use(rt.userMW...)

	// Process-scoped middleware applies to ops routes as well.
	r := chi.NewRouter()
	r.Use(middleware.Heartbeat("/healthz"))
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "tollgate")
	})
	r.Use(server.RequestIDMiddleware)
	r.Use(server.LoggingMiddleware(rt.log))
	r.Get("/__status", rt.statusHandler())
	r.Mount("/", chain.Wrap(dispatcher))

	rt.handler = r
	rt.started = time.Now()
	return nil
}

func buildRecorder(cfg config.AuditConfig) (audit.Recorder, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return audit.NewMemory(cfg.Memory.Size), nil
	case "sqlite":
		return audit.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown audit type %q", cfg.Type)
	}
}

// Handler exposes the assembled handler for tests and embedders that
// manage their own listener.
func (rt *Runtime) Handler() http.Handler {
	return rt.handler
}

// Start binds the HTTP server and begins serving in the background.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.server != nil {
		return fmt.Errorf("already started")
	}
	srv := rt.buildServer()

	go func() {
		if err := rt.serve(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	rt.log.Info("listening",
		slog.Int("port", rt.cfg.Server.Port),
		slog.Bool("tls", rt.cfg.Server.TLS.Enabled()),
		slog.Int("routes", rt.table.Len()),
	)
	return nil
}

// Shutdown stops the server gracefully and closes the audit recorder.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.log.Info("shutting down")

	if rt.server != nil {
		if err := rt.server.Shutdown(ctx); err != nil {
			rt.log.Error("server shutdown", slog.String("error", err.Error()))
			return err
		}
		rt.server = nil
	}

	rt.closeRecorder()

	rt.log.Info("shutdown complete")
	return nil
}

// Run serves until ctx is canceled, then shuts down within grace. It
// returns the first serve or shutdown error; a clean cancellation returns
// nil.
func (rt *Runtime) Run(ctx context.Context, grace time.Duration) error {
	rt.mu.Lock()
	if rt.server != nil {
		rt.mu.Unlock()
		return fmt.Errorf("already started")
	}
	srv := rt.buildServer()
	rt.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rt.log.Info("listening",
			slog.Int("port", rt.cfg.Server.Port),
			slog.Bool("tls", rt.cfg.Server.TLS.Enabled()),
			slog.Int("routes", rt.table.Len()),
		)
		if err := rt.serve(srv); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	rt.mu.Lock()
	rt.server = nil
	rt.closeRecorder()
	rt.mu.Unlock()
	return err
}

func (rt *Runtime) buildServer() *http.Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", rt.cfg.Server.Port),
		Handler:      rt.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	rt.server = srv
	return srv
}

func (rt *Runtime) serve(srv *http.Server) error {
	if tls := rt.cfg.Server.TLS; tls.Enabled() {
		return srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	}
	return srv.ListenAndServe()
}

// closeRecorder is called with mu held.
func (rt *Runtime) closeRecorder() {
	if rt.recorder == nil {
		return
	}
	if err := rt.recorder.Close(); err != nil {
		rt.log.Error("close audit recorder", slog.String("error", err.Error()))
	}
	rt.recorder = nil
}
