package dispatch

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/tollgate-io/tollgate/internal/server"
)

// Recover returns the outermost pipeline guard: any panic escaping a
// middleware step or the dispatcher becomes a 500 envelope on the one
// affected request. Handler panics never reach this guard; the dispatcher
// catches those itself so the two failure classes stay distinguishable in
// the logs.
func Recover(log *slog.Logger, writer *Writer) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				ctx := r.Context()
				log.LogAttrs(ctx, slog.LevelError, "dispatch failed",
					slog.String("request_id", server.GetRequestID(ctx)),
					slog.String("path", r.URL.Path),
					slog.String("error", errText(v)),
				)

				err := fmt.Errorf("%s\n%s", errText(v), debug.Stack())
				writer.Write(ctx, w, Fail(http.StatusInternalServerError, errText(v)), &CallOptions{Err: err})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
