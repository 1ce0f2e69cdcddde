package runtime

import (
	"net/http"
	"time"

	"github.com/tollgate-io/tollgate/internal/dispatch"
)

// statusHandler reports uptime, the route count, and the most recent audit
// records. It sits outside the dispatch pipeline so it stays reachable
// when every route is rate limited or closed off.
func (rt *Runtime) statusHandler() http.HandlerFunc {
	// Capture the recorder at assembly time: closeRecorder nils the field
	// under mu during shutdown, and an in-flight status request must not
	// race that write. Tail on a closed recorder just returns an error.
	recorder := rt.recorder

	return func(w http.ResponseWriter, r *http.Request) {
		env := (&dispatch.Envelope{OK: true, Msg: "ok"}).
			Set("uptime", time.Since(rt.started).Round(time.Second).String()).
			Set("routes", rt.table.Len())

		if recorder != nil {
			if tail, err := recorder.Tail(r.Context(), 20); err == nil {
				env.Set("recent", tail)
			}
		}

		rt.writer.Write(r.Context(), w, env, nil)
	}
}
