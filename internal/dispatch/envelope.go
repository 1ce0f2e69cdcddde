package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tollgate-io/tollgate/internal/server"
)

// Envelope is the JSON object written as the body of every response.
// Code and the text fields also drive the HTTP status decision; Extra
// carries handler-defined payload fields and is flattened into the same
// JSON object on marshal.
type Envelope struct {
	OK     bool
	Code   int    // HTTP status when no override applies; 0 means 200
	Error  string // error text, preferred over Msg for the status text
	Msg    string
	Detail string // serialized as "e"; attached only in debug mode
	Extra  map[string]any
}

// Fail builds an error envelope with the given status code and text.
func Fail(code int, text string) *Envelope {
	return &Envelope{OK: false, Code: code, Error: text}
}

// Set attaches a handler-defined payload field and returns the envelope
// for chaining.
func (e *Envelope) Set(key string, value any) *Envelope {
	if e.Extra == nil {
		e.Extra = make(map[string]any)
	}
	e.Extra[key] = value
	return e
}

// MarshalJSON flattens Extra beside the fixed fields. Fixed fields win on
// key collisions. Zero-valued optional fields are omitted so a plain
// success envelope stays minimal.
func (e Envelope) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Extra)+5)
	for k, v := range e.Extra {
		m[k] = v
	}
	m["ok"] = e.OK
	if e.Code != 0 {
		m["code"] = e.Code
	}
	if e.Error != "" {
		m["error"] = e.Error
	}
	if e.Msg != "" {
		m["msg"] = e.Msg
	}
	if e.Detail != "" {
		m["e"] = e.Detail
	}
	return json.Marshal(m)
}

// CallOptions adjust how an envelope is written, taking precedence over
// what the envelope itself carries. Err preserves the underlying failure
// for debug detail and logging; it never reaches the client unless debug
// mode is enabled.
type CallOptions struct {
	Code   int
	Status string
	Err    error
}

// Writer serializes envelopes with a consistent header set and derived
// status. One writer is shared by all requests.
type Writer struct {
	log    *slog.Logger
	pretty bool
	debug  bool
}

// NewWriter creates a response writer. pretty enables indented JSON,
// debug enables the "e" exception-detail field on server faults.
func NewWriter(log *slog.Logger, pretty, debug bool) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{log: log, pretty: pretty, debug: debug}
}

// Write emits env as the response and returns the status code it wrote.
// Status code precedence: opts.Code, then env.Code, then 200. Status text
// precedence: opts.Status, then env.Error, then env.Msg, then "success";
// net/http cannot put custom text on the status line, so it travels in
// the body and the response log instead.
func (wr *Writer) Write(ctx context.Context, w http.ResponseWriter, env *Envelope, opts *CallOptions) int {
	if env == nil {
		env = &Envelope{OK: true}
	}

	code := http.StatusOK
	if env.Code != 0 {
		code = env.Code
	}
	if opts != nil && opts.Code != 0 {
		code = opts.Code
	}

	status := "success"
	if env.Msg != "" {
		status = env.Msg
	}
	if env.Error != "" {
		status = env.Error
	}
	if opts != nil && opts.Status != "" {
		status = opts.Status
	}

	if wr.debug && opts != nil && opts.Err != nil && env.Detail == "" {
		detailed := *env
		detailed.Detail = opts.Err.Error()
		env = &detailed
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	if code == http.StatusUnauthorized {
		h.Set("WWW-Authenticate", "Basic user:pass")
	}

	body, err := wr.marshal(env)
	if err != nil {
		wr.log.Error("encode response", slog.String("error", err.Error()))
		code = http.StatusInternalServerError
		body = []byte(`{"ok":false,"code":500,"error":"response encoding failed"}`)
	}

	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		wr.log.Warn("write response", slog.String("error", err.Error()))
	}

	wr.log.LogAttrs(ctx, slog.LevelInfo, "response sent",
		slog.String("request_id", server.GetRequestID(ctx)),
		slog.Int("code", code),
		slog.String("status", status),
		slog.Int("bytes", len(body)),
	)
	return code
}

func (wr *Writer) marshal(env *Envelope) ([]byte, error) {
	if wr.pretty {
		return json.MarshalIndent(env, "", "  ")
	}
	return json.Marshal(env)
}

// errText renders a caught panic value or error for an envelope's error
// field.
func errText(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(v)
}
