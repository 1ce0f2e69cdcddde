// Package audit records the outcome of dispatched requests to a pluggable
// store for after-the-fact inspection.
package audit

import (
	"context"
	"time"
)

// Outcome labels for Record.Outcome.
const (
	OutcomeSuccess       = "success"
	OutcomeNotFound      = "not_found"
	OutcomeRateLimited   = "rate_limited"
	OutcomeUnauthorized  = "unauthorized"
	OutcomeHandlerError  = "handler_error"
	OutcomeDispatchError = "dispatch_error"
)

// Record captures one dispatched request.
type Record struct {
	ID        string        `db:"id" json:"id"`
	Method    string        `db:"method" json:"method"`
	Path      string        `db:"path" json:"path"`
	Route     string        `db:"route" json:"route,omitempty"`
	Status    int           `db:"status" json:"status"`
	Outcome   string        `db:"outcome" json:"outcome"`
	Client    string        `db:"client" json:"client"`
	Duration  time.Duration `db:"duration_ns" json:"duration_ns"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// Recorder persists dispatch records. Record is called on the request path
// and must be safe for concurrent use; failures are logged by the caller,
// never surfaced to clients.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Tail(ctx context.Context, n int) ([]Record, error)
	Close() error
}
