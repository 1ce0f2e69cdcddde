package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tollgate-io/tollgate/internal/audit"
	"github.com/tollgate-io/tollgate/internal/auth"
	"github.com/tollgate-io/tollgate/internal/ratelimit"
)

// newTestDispatcher assembles a dispatcher over tree with quiet logging and
// an in-memory audit trail. mutate adjusts the config before construction.
func newTestDispatcher(t *testing.T, tree Tree, mutate func(*Config)) (*Dispatcher, *audit.MemoryRecorder) {
	t.Helper()

	table, err := BuildTable(tree)
	if err != nil {
		t.Fatalf("BuildTable() error = %v", err)
	}

	recorder := audit.NewMemory(32)
	cfg := Config{
		Resolver: NewResolver(table, 1),
		Engine:   auth.NewEngine(nil),
		Writer:   NewWriter(discardLogger(), false, false),
		Recorder: recorder,
		Logger:   discardLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	d, err := NewDispatcher(cfg)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return d, recorder
}

// =============================================================================
// Dispatch Flow Tests
// =============================================================================

func TestDispatcher_SyncSuccess(t *testing.T) {
	d, _ := newTestDispatcher(t, Tree{
		"greet": Sync(func(ctx context.Context, req *Request) (*Envelope, error) {
			return (&Envelope{OK: true}).Set("name", req.Body["name"]), nil
		}),
	}, nil)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/greet?name=a", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if got := rec.Body.String(); got != `{"name":"a","ok":true}` {
		t.Errorf("Body = %s, want {\"name\":\"a\",\"ok\":true}", got)
	}
	checkHeader(t, rec, "Content-Type", "application/json")
}

func TestDispatcher_TrailingSegmentBecomesArg(t *testing.T) {
	var gotArgs []string
	var gotMethod string

	d, _ := newTestDispatcher(t, Tree{
		"users": Sync(func(ctx context.Context, req *Request) (*Envelope, error) {
			gotArgs = req.Args
			gotMethod = req.Method
			return &Envelope{OK: true}, nil
		}),
	}, nil)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/users/42", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if len(gotArgs) != 1 || gotArgs[0] != "42" {
		t.Errorf("Args = %v, want [42]", gotArgs)
	}
	if gotMethod != "GET" {
		t.Errorf("Method = %q, want GET", gotMethod)
	}
}

func TestDispatcher_RepeatedGetIdentical(t *testing.T) {
	d, _ := newTestDispatcher(t, Tree{
		"greet": Sync(func(ctx context.Context, req *Request) (*Envelope, error) {
			return (&Envelope{OK: true}).Set("name", req.Body["name"]), nil
		}),
	}, nil)

	first := httptest.NewRecorder()
	d.ServeHTTP(first, httptest.NewRequest("GET", "/greet?name=a", nil))
	second := httptest.NewRecorder()
	d.ServeHTTP(second, httptest.NewRequest("GET", "/greet?name=a", nil))

	if first.Body.String() != second.Body.String() {
		t.Errorf("Repeated GET bodies differ: %s vs %s", first.Body.String(), second.Body.String())
	}
	if first.Code != second.Code {
		t.Errorf("Repeated GET codes differ: %d vs %d", first.Code, second.Code)
	}
}

func TestDispatcher_NotFound(t *testing.T) {
	d, recorder := newTestDispatcher(t, Tree{"known": Sync(nilHandler)}, nil)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	want := `{"code":404,"error":"no handler for path /missing","ok":false}`
	if got := rec.Body.String(); got != want {
		t.Errorf("Body = %s, want %s", got, want)
	}

	tail, err := recorder.Tail(context.Background(), 1)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(tail) != 1 || tail[0].Outcome != audit.OutcomeNotFound {
		t.Errorf("Audit outcome = %v, want %s", tail, audit.OutcomeNotFound)
	}
}

func TestDispatcher_NotFoundNamesOriginalPath(t *testing.T) {
	d, _ := newTestDispatcher(t, Tree{"known": Sync(nilHandler)}, nil)

	// The error must name the path as it arrived, not the normalized form.
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/missing/", nil))

	if !strings.Contains(rec.Body.String(), "no handler for path /missing/") {
		t.Errorf("Expected original path in error, got: %s", rec.Body.String())
	}
}

// =============================================================================
// Rate Limit Gate Tests
// =============================================================================

func TestDispatcher_RateLimit(t *testing.T) {
	limiter, err := ratelimit.New(ratelimit.Policy{RPS: 1, Burst: 1})
	if err != nil {
		t.Fatalf("ratelimit.New() error = %v", err)
	}

	d, recorder := newTestDispatcher(t, Tree{"ping": Sync(nilHandler)}, func(cfg *Config) {
		cfg.Limiter = limiter
	})

	// First request consumes the burst.
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/ping", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("First request: expected status %d, got %d", http.StatusOK, rec.Code)
	}
	checkHeader(t, rec, "X-RateLimit-Limit", "1")
	checkHeader(t, rec, "X-RateLimit-Remaining", "0")

	// Second request from the same client is denied.
	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/ping", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Second request: expected status %d, got %d", http.StatusTooManyRequests, rec.Code)
	}
	checkHeader(t, rec, "Retry-After", "1")
	if !strings.Contains(rec.Body.String(), "rate limit exceeded") {
		t.Errorf("Expected rate limit error in body, got: %s", rec.Body.String())
	}

	tail, err := recorder.Tail(context.Background(), 1)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(tail) != 1 || tail[0].Outcome != audit.OutcomeRateLimited {
		t.Errorf("Audit outcome = %v, want %s", tail, audit.OutcomeRateLimited)
	}
}

func TestDispatcher_NotFoundWinsOverRateLimit(t *testing.T) {
	limiter, err := ratelimit.New(ratelimit.Policy{RPS: 1, Burst: 1})
	if err != nil {
		t.Fatalf("ratelimit.New() error = %v", err)
	}

	d, _ := newTestDispatcher(t, Tree{"ping": Sync(nilHandler)}, func(cfg *Config) {
		cfg.Limiter = limiter
	})

	// Exhaust the client's bucket.
	d.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ping", nil))

	// An unknown path is still a 404: resolution precedes the gate, and no
	// token is spent on it.
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("Rate limit headers should not be set before the gate runs")
	}
}

// =============================================================================
// Authorization Tests
// =============================================================================

func TestDispatcher_AuthPrecedence(t *testing.T) {
	allow := func(ctx context.Context, user, pass string) (bool, error) { return true, nil }
	deny := func(ctx context.Context, user, pass string) (bool, error) { return false, nil }

	tests := []struct {
		name     string
		global   auth.Func
		handler  *Handler
		wantCode int
	}{
		{
			name:     "global check rejects by default",
			global:   deny,
			handler:  Sync(nilHandler),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "open handler bypasses global check",
			global:   deny,
			handler:  Sync(nilHandler).Open(),
			wantCode: http.StatusOK,
		},
		{
			name:     "handler check overrides global reject",
			global:   deny,
			handler:  Sync(nilHandler).Protect(allow),
			wantCode: http.StatusOK,
		},
		{
			name:     "handler check overrides global allow",
			global:   allow,
			handler:  Sync(nilHandler).Protect(deny),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "no checks defaults to allow",
			global:   nil,
			handler:  Sync(nilHandler),
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDispatcher(t, Tree{"secure": tt.handler}, func(cfg *Config) {
				cfg.Engine = auth.NewEngine(tt.global)
			})

			rec := httptest.NewRecorder()
			d.ServeHTTP(rec, httptest.NewRequest("GET", "/secure", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantCode == http.StatusUnauthorized {
				checkHeader(t, rec, "WWW-Authenticate", "Basic user:pass")
			}
		})
	}
}

func TestDispatcher_CredentialsOverHTTP(t *testing.T) {
	d, _ := newTestDispatcher(t, Tree{"secure": Sync(nilHandler)}, func(cfg *Config) {
		cfg.Engine = auth.NewEngine(auth.Credentials(map[string][]string{
			"admin": {"secret"},
		}))
	})

	t.Run("valid credentials pass", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/secure", nil)
		req.SetBasicAuth("admin", "secret")
		rec := httptest.NewRecorder()
		d.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("Expected status %d, got %d", http.StatusOK, rec.Code)
		}
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/secure", nil)
		req.SetBasicAuth("admin", "wrong")
		rec := httptest.NewRecorder()
		d.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, rec.Code)
		}
	})

	t.Run("missing credentials rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		d.ServeHTTP(rec, httptest.NewRequest("GET", "/secure", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, rec.Code)
		}
	})
}

func TestDispatcher_AuthCheckFailure(t *testing.T) {
	broken := func(ctx context.Context, user, pass string) (bool, error) {
		return false, errors.New("directory unreachable")
	}

	d, recorder := newTestDispatcher(t, Tree{"secure": Sync(nilHandler)}, func(cfg *Config) {
		cfg.Engine = auth.NewEngine(broken)
	})

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/secure", nil))

	// A failing check is a server fault, not a credential rejection.
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authorize:") {
		t.Errorf("Expected authorize error in body, got: %s", rec.Body.String())
	}

	tail, err := recorder.Tail(context.Background(), 1)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(tail) != 1 || tail[0].Outcome != audit.OutcomeDispatchError {
		t.Errorf("Audit outcome = %v, want %s", tail, audit.OutcomeDispatchError)
	}
}

// =============================================================================
// Handler Failure Tests
// =============================================================================

func TestDispatcher_HandlerError(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	d, recorder := newTestDispatcher(t, Tree{
		"fail": Sync(func(ctx context.Context, req *Request) (*Envelope, error) {
			return nil, errors.New("database exploded")
		}),
	}, func(cfg *Config) {
		cfg.Logger = logger
	})

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/fail", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	want := `{"code":500,"error":"database exploded","ok":false}`
	if got := rec.Body.String(); got != want {
		t.Errorf("Body = %s, want %s", got, want)
	}
	if !strings.Contains(buf.String(), "handler failed") {
		t.Errorf("Expected 'handler failed' in log output, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "database exploded") {
		t.Errorf("Expected handler error in log output, got: %s", buf.String())
	}

	tail, err := recorder.Tail(context.Background(), 1)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(tail) != 1 || tail[0].Outcome != audit.OutcomeHandlerError {
		t.Errorf("Audit outcome = %v, want %s", tail, audit.OutcomeHandlerError)
	}
}

func TestDispatcher_HandlerPanic(t *testing.T) {
	d, _ := newTestDispatcher(t, Tree{
		"boom": Sync(func(ctx context.Context, req *Request) (*Envelope, error) {
			panic("kaboom")
		}),
	}, func(cfg *Config) {
		cfg.Writer = NewWriter(discardLogger(), false, true)
	})

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"error":"kaboom"`) {
		t.Errorf("Expected panic text as error, got: %s", body)
	}
	// Debug mode carries the stack in the detail field.
	if !strings.Contains(body, "goroutine") {
		t.Errorf("Expected stack trace in debug detail, got: %s", body)
	}
}

func TestDispatcher_HandlerPanicWithoutDebug(t *testing.T) {
	d, _ := newTestDispatcher(t, Tree{
		"boom": Sync(func(ctx context.Context, req *Request) (*Envelope, error) {
			panic(errors.New("kaboom"))
		}),
	}, nil)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if strings.Contains(rec.Body.String(), "goroutine") {
		t.Errorf("Stack trace must not leak without debug mode, got: %s", rec.Body.String())
	}
}

func TestDispatcher_PanicIsolatedToOneRequest(t *testing.T) {
	d, _ := newTestDispatcher(t, Tree{
		"boom": Sync(func(ctx context.Context, req *Request) (*Envelope, error) {
			panic("kaboom")
		}),
		"fine": Sync(func(ctx context.Context, req *Request) (*Envelope, error) {
			return &Envelope{OK: true}, nil
		}),
	}, nil)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}

	// The panic must not poison later requests.
	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/fine", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Request after panic: expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestDispatcher_MalformedBody(t *testing.T) {
	d, recorder := newTestDispatcher(t, Tree{"greet": Sync(nilHandler)}, nil)

	req := httptest.NewRequest("POST", "/greet", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "parse request:") {
		t.Errorf("Expected parse error in body, got: %s", rec.Body.String())
	}

	tail, err := recorder.Tail(context.Background(), 1)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(tail) != 1 || tail[0].Outcome != audit.OutcomeDispatchError {
		t.Errorf("Audit outcome = %v, want %s", tail, audit.OutcomeDispatchError)
	}
}

// =============================================================================
// Async Handler Tests
// =============================================================================

func TestDispatcher_AsyncSuccess(t *testing.T) {
	d, _ := newTestDispatcher(t, Tree{
		"work": Async(func(ctx context.Context, req *Request, done Callback) {
			go func() {
				time.Sleep(5 * time.Millisecond)
				done(nil, (&Envelope{OK: true}).Set("result", "done"), nil)
			}()
		}),
	}, nil)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/work", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"result":"done"`) {
		t.Errorf("Expected async result in body, got: %s", rec.Body.String())
	}
}

func TestDispatcher_AsyncError(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	d, _ := newTestDispatcher(t, Tree{
		"work": Async(func(ctx context.Context, req *Request, done Callback) {
			done(errors.New("async boom"), nil, nil)
		}),
	}, func(cfg *Config) {
		cfg.Logger = logger
	})

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/work", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "async boom") {
		t.Errorf("Expected callback error in body, got: %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "async boom") {
		t.Errorf("Expected callback error in log output, got: %s", buf.String())
	}
}

func TestDispatcher_AsyncErrorKeepsCallOptions(t *testing.T) {
	d, _ := newTestDispatcher(t, Tree{
		"work": Async(func(ctx context.Context, req *Request, done Callback) {
			done(errors.New("backend down"), nil, &CallOptions{Code: http.StatusServiceUnavailable})
		}),
	}, nil)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/work", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestDispatcher_AsyncCallOptions(t *testing.T) {
	d, _ := newTestDispatcher(t, Tree{
		"work": Async(func(ctx context.Context, req *Request, done Callback) {
			done(nil, &Envelope{OK: true}, &CallOptions{Code: http.StatusAccepted})
		}),
	}, nil)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/work", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected status %d, got %d", http.StatusAccepted, rec.Code)
	}
}

func TestDispatcher_AsyncAbandoned(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	d, _ := newTestDispatcher(t, Tree{
		"work": Async(func(ctx context.Context, req *Request, done Callback) {
			// Never calls done; the request deadline bounds the wait.
		}),
	}, func(cfg *Config) {
		cfg.Logger = logger
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/work", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "handler abandoned") {
		t.Errorf("Expected abandonment error in body, got: %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "handler abandoned") {
		t.Errorf("Expected abandonment error in log output, got: %s", buf.String())
	}
}

func TestDispatcher_AsyncDuplicateCallback(t *testing.T) {
	d, _ := newTestDispatcher(t, Tree{
		"work": Async(func(ctx context.Context, req *Request, done Callback) {
			done(nil, (&Envelope{OK: true}).Set("call", "first"), nil)
			done(errors.New("second call"), nil, nil)
		}),
	}, nil)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest("GET", "/work", nil))

	// Only the first callback counts.
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"call":"first"`) {
		t.Errorf("Expected first callback's result, got: %s", rec.Body.String())
	}
}

// =============================================================================
// Passthrough and Construction Tests
// =============================================================================

func TestDispatcher_Passthrough(t *testing.T) {
	tests := []struct {
		name        string
		passthrough bool
		wantRaw     bool
	}{
		{name: "disabled by default", passthrough: false, wantRaw: false},
		{name: "enabled hands over the raw request", passthrough: true, wantRaw: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotRaw *http.Request
			d, _ := newTestDispatcher(t, Tree{
				"inspect": Sync(func(ctx context.Context, req *Request) (*Envelope, error) {
					gotRaw = req.Raw
					return &Envelope{OK: true}, nil
				}),
			}, func(cfg *Config) {
				cfg.Passthrough = tt.passthrough
			})

			d.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/inspect", nil))

			if (gotRaw != nil) != tt.wantRaw {
				t.Errorf("Raw present = %v, want %v", gotRaw != nil, tt.wantRaw)
			}
		})
	}
}

func TestDispatcher_AuditTrail(t *testing.T) {
	d, recorder := newTestDispatcher(t, Tree{
		"ok": Sync(nilHandler),
		"fail": Sync(func(ctx context.Context, req *Request) (*Envelope, error) {
			return nil, errors.New("boom")
		}),
	}, nil)

	d.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ok", nil))
	d.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/missing", nil))
	d.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/fail", nil))

	tail, err := recorder.Tail(context.Background(), 3)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(tail) != 3 {
		t.Fatalf("Tail() returned %d records, want 3", len(tail))
	}

	// Newest first.
	wantOutcomes := []string{audit.OutcomeHandlerError, audit.OutcomeNotFound, audit.OutcomeSuccess}
	for i, want := range wantOutcomes {
		if tail[i].Outcome != want {
			t.Errorf("tail[%d].Outcome = %q, want %q", i, tail[i].Outcome, want)
		}
	}

	newest := tail[0]
	if newest.Method != "GET" || newest.Path != "/fail" || newest.Route != "/fail" {
		t.Errorf("Record fields = %+v", newest)
	}
	if newest.Status != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", newest.Status, http.StatusInternalServerError)
	}
	if newest.Client != "192.0.2.1" {
		t.Errorf("Client = %q, want 192.0.2.1", newest.Client)
	}
}

func TestNewDispatcher_Validation(t *testing.T) {
	table, err := BuildTable(Tree{"a": Sync(nilHandler)})
	if err != nil {
		t.Fatalf("BuildTable() error = %v", err)
	}
	resolver := NewResolver(table, 1)
	engine := auth.NewEngine(nil)
	writer := NewWriter(discardLogger(), false, false)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing resolver", cfg: Config{Engine: engine, Writer: writer}},
		{name: "missing engine", cfg: Config{Resolver: resolver, Writer: writer}},
		{name: "missing writer", cfg: Config{Resolver: resolver, Engine: engine}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDispatcher(tt.cfg); err == nil {
				t.Error("NewDispatcher() expected error, got nil")
			}
		})
	}
}
