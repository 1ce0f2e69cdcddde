// Package dispatch implements the request pipeline: route resolution with
// bounded-depth fallback, the middleware chain, the rate-limit gate, the
// authorization decision, handler invocation, and response envelope
// construction.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tollgate-io/tollgate/internal/audit"
	"github.com/tollgate-io/tollgate/internal/auth"
	"github.com/tollgate-io/tollgate/internal/ratelimit"
	"github.com/tollgate-io/tollgate/internal/server"
)

// Config wires a dispatcher's collaborators.
type Config struct {
	Resolver *Resolver
	Engine   *auth.Engine
	Writer   *Writer
	Limiter  *ratelimit.Limiter // nil disables the rate-limit gate
	Recorder audit.Recorder     // nil disables the audit trail
	Logger   *slog.Logger

	// Passthrough hands handlers the raw *http.Request alongside the
	// reduced view.
	Passthrough bool
}

// Dispatcher runs each request through the pipeline: parse, resolve,
// rate-limit, authorize, invoke, respond. Every failure is converted into
// a JSON envelope; nothing here terminates the process or another
// in-flight request.
type Dispatcher struct {
	resolver    *Resolver
	engine      *auth.Engine
	writer      *Writer
	limiter     *ratelimit.Limiter
	recorder    audit.Recorder
	log         *slog.Logger
	passthrough bool
}

// NewDispatcher creates a dispatcher. Resolver, Engine, and Writer are
// required; Limiter and Recorder are optional.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("dispatcher requires a resolver")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("dispatcher requires an auth engine")
	}
	if cfg.Writer == nil {
		return nil, fmt.Errorf("dispatcher requires a response writer")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		resolver:    cfg.Resolver,
		engine:      cfg.Engine,
		writer:      cfg.Writer,
		limiter:     cfg.Limiter,
		recorder:    cfg.Recorder,
		log:         log,
		passthrough: cfg.Passthrough,
	}, nil
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	ip, err := clientIP(r)
	if err != nil {
		ip = "unknown"
	}

	body, err := parseBody(r)
	if err != nil {
		d.fault(ctx, w, r, start, ip, fmt.Errorf("parse request: %w", err))
		return
	}

	res, ok := d.resolver.Resolve(r.URL.Path)
	if !ok {
		code := d.writer.Write(ctx, w, Fail(http.StatusNotFound, "no handler for path "+r.URL.Path), nil)
		d.record(ctx, r, start, "", code, audit.OutcomeNotFound, ip)
		return
	}
	server.AddLogField(ctx, "route", res.Route)

	if d.limiter != nil {
		dec := d.limiter.Allow(ip)
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
		if !dec.Allowed {
			h.Set("Retry-After", strconv.Itoa(retrySeconds(dec.RetryAfter)))
			code := d.writer.Write(ctx, w, Fail(http.StatusTooManyRequests, "rate limit exceeded"), nil)
			d.record(ctx, r, start, res.Route, code, audit.OutcomeRateLimited, ip)
			return
		}
	}

	allowed, err := d.engine.Decide(ctx, res.Handler.auth, auth.ParseBasic(r))
	if err != nil {
		d.fault(ctx, w, r, start, ip, fmt.Errorf("authorize: %w", err))
		return
	}
	if !allowed {
		code := d.writer.Write(ctx, w, Fail(http.StatusUnauthorized, "unauthorized"), nil)
		d.record(ctx, r, start, res.Route, code, audit.OutcomeUnauthorized, ip)
		return
	}

	req := &Request{Method: r.Method, Args: res.Args, Body: body, RemoteIP: ip}
	if d.passthrough {
		req.Raw = r
	}

	env, opts, err := d.invoke(ctx, res.Handler, req)
	if err != nil {
		server.AddError(ctx, err)
		d.log.LogAttrs(ctx, slog.LevelWarn, "handler failed",
			slog.String("request_id", server.GetRequestID(ctx)),
			slog.String("route", res.Route),
			slog.String("error", err.Error()),
		)
		// The error's string form is the client-visible text; the stack
		// rides along only when debug mode attaches it.
		code := d.writer.Write(ctx, w, Fail(http.StatusInternalServerError, err.Error()), opts)
		d.record(ctx, r, start, res.Route, code, audit.OutcomeHandlerError, ip)
		return
	}

	code := d.writer.Write(ctx, w, env, opts)
	d.record(ctx, r, start, res.Route, code, audit.OutcomeSuccess, ip)
}

// asyncResult carries one callback firing back to the dispatching
// goroutine.
type asyncResult struct {
	err  error
	env  *Envelope
	opts *CallOptions
}

// invoke runs the handler with a recover boundary of its own, so handler
// bugs are reported distinctly from pipeline bugs. Async handlers are
// awaited until their callback fires once or the request context ends.
func (d *Dispatcher) invoke(ctx context.Context, h *Handler, req *Request) (env *Envelope, opts *CallOptions, err error) {
	defer func() {
		if v := recover(); v != nil {
			env = nil
			opts = &CallOptions{Err: fmt.Errorf("%s\n%s", errText(v), debug.Stack())}
			err = errors.New(errText(v))
		}
	}()

	switch {
	case h.sync != nil:
		env, err = h.sync(ctx, req)
		if err != nil {
			return nil, &CallOptions{Err: err}, err
		}
		return env, nil, nil

	case h.async != nil:
		done := make(chan asyncResult, 1)
		var once sync.Once
		cb := func(err error, result *Envelope, o *CallOptions) {
			once.Do(func() {
				done <- asyncResult{err: err, env: result, opts: o}
			})
		}

		h.async(ctx, req, cb)

		select {
		case res := <-done:
			if res.err != nil {
				// Keep any author-supplied overrides on the failure path.
				o := CallOptions{}
				if res.opts != nil {
					o = *res.opts
				}
				if o.Err == nil {
					o.Err = res.err
				}
				return nil, &o, res.err
			}
			return res.env, res.opts, nil
		case <-ctx.Done():
			abandonErr := fmt.Errorf("handler abandoned: %w", ctx.Err())
			return nil, &CallOptions{Err: abandonErr}, abandonErr
		}

	default:
		return nil, nil, errors.New("handler has no function")
	}
}

// fault reports a failure in the pipeline itself, as opposed to a handler
// failure. Logged at error level so framework bugs stand apart from
// handler bugs.
func (d *Dispatcher) fault(ctx context.Context, w http.ResponseWriter, r *http.Request, start time.Time, ip string, err error) {
	server.AddError(ctx, err)
	d.log.LogAttrs(ctx, slog.LevelError, "dispatch failed",
		slog.String("request_id", server.GetRequestID(ctx)),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	code := d.writer.Write(ctx, w, Fail(http.StatusInternalServerError, err.Error()), &CallOptions{Err: err})
	d.record(ctx, r, start, "", code, audit.OutcomeDispatchError, ip)
}

func (d *Dispatcher) record(ctx context.Context, r *http.Request, start time.Time, route string, status int, outcome, client string) {
	if d.recorder == nil {
		return
	}
	id := server.GetRequestID(ctx)
	if id == "" {
		// Keyed even without the request-ID middleware installed.
		id = uuid.New().String()
	}
	rec := audit.Record{
		ID:        id,
		Method:    r.Method,
		Path:      r.URL.Path,
		Route:     route,
		Status:    status,
		Outcome:   outcome,
		Client:    client,
		Duration:  time.Since(start),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.recorder.Record(ctx, rec); err != nil {
		d.log.Warn("audit write failed", slog.String("error", err.Error()))
	}
}

func retrySeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
