package dispatch

import (
	"context"

	"github.com/tollgate-io/tollgate/internal/auth"
)

// Callback delivers an asynchronous handler's outcome. Exactly one call is
// honored; later calls are ignored. A non-nil err reports a handler
// failure; otherwise result and opts shape the response.
type Callback func(err error, result *Envelope, opts *CallOptions)

// SyncFunc is a handler that computes its result inline.
type SyncFunc func(ctx context.Context, req *Request) (*Envelope, error)

// AsyncFunc is a handler that signals its result through the callback,
// possibly after the function itself returns.
type AsyncFunc func(ctx context.Context, req *Request, done Callback)

// Handler is a unit of work bound to a route. It is declared sync or async
// at registration; the calling convention is never inferred. Immutable once
// registered in a table.
type Handler struct {
	sync  SyncFunc
	async AsyncFunc
	auth  auth.Override
}

// Sync registers fn as a synchronous handler.
func Sync(fn SyncFunc) *Handler {
	return &Handler{sync: fn}
}

// Async registers fn as an asynchronous handler.
func Async(fn AsyncFunc) *Handler {
	return &Handler{async: fn}
}

// Open disables authentication for this handler regardless of any global
// check. Distinct from leaving the override unset, which inherits the
// global check.
func (h *Handler) Open() *Handler {
	h.auth = auth.Open()
	return h
}

// Protect authenticates this handler with fn instead of the global check.
// A nil fn leaves the override unset, inheriting the global check.
func (h *Handler) Protect(fn auth.Func) *Handler {
	h.auth = auth.With(fn)
	return h
}
