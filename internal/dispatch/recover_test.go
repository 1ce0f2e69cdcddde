package dispatch

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Recover Middleware Tests
// =============================================================================

func TestRecover_PanicBecomesEnvelope(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}))

	wrapped := Recover(logger, NewWriter(discardLogger(), false, false))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("middleware blew up")
		}),
	)

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest("GET", "/anything", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"middleware blew up"`) {
		t.Errorf("Expected panic text in body, got: %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "dispatch failed") {
		t.Errorf("Expected 'dispatch failed' in log output, got: %s", buf.String())
	}
}

func TestRecover_CleanRequestUntouched(t *testing.T) {
	wrapped := Recover(discardLogger(), NewWriter(discardLogger(), false, false))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	)

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected status %d, got %d", http.StatusTeapot, rec.Code)
	}
}

func TestRecover_AbortHandlerPropagates(t *testing.T) {
	wrapped := Recover(discardLogger(), NewWriter(discardLogger(), false, false))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}),
	)

	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Errorf("Expected ErrAbortHandler to propagate, recovered %v", v)
		}
	}()
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	t.Error("Expected panic to propagate")
}

func TestRecover_DebugCarriesStack(t *testing.T) {
	wrapped := Recover(discardLogger(), NewWriter(discardLogger(), false, true))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("with stack")
		}),
	)

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if !strings.Contains(rec.Body.String(), "goroutine") {
		t.Errorf("Expected stack trace in debug detail, got: %s", rec.Body.String())
	}
}
