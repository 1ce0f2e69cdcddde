package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Request is the view of an inbound HTTP request handed to handlers:
// method, the positional args consumed during route resolution, the parsed
// body or query payload, and the resolved client address. Raw is set only
// when full-request passthrough is enabled.
type Request struct {
	Method   string
	Args     []string
	Body     map[string]any
	RemoteIP string
	Raw      *http.Request
}

// maxBodyBytes bounds how much of a request body is parsed.
const maxBodyBytes = 1 << 20

// parseBody builds the request payload. GET requests take it from the query
// string; other methods from a JSON or url-encoded body. Unrecognized
// content types yield an empty payload.
func parseBody(r *http.Request) (map[string]any, error) {
	if r.Method == http.MethodGet {
		return flattenValues(r.URL.Query()), nil
	}

	if r.Body == nil {
		return map[string]any{}, nil
	}

	// Read one byte past the cap so an oversize body is rejected outright
	// rather than parsed as a truncated prefix.
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(raw) > maxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", maxBodyBytes)
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	ct := r.Header.Get("Content-Type")
	if ct != "" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil {
			ct = parsed
		}
	}

	switch ct {
	case "application/json", "":
		body := make(map[string]any)
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("parse json body: %w", err)
		}
		return body, nil
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse form body: %w", err)
		}
		return flattenValues(values), nil
	default:
		return map[string]any{}, nil
	}
}

// flattenValues collapses single-valued query/form keys to plain strings,
// keeping slices only where a key repeats.
func flattenValues(values url.Values) map[string]any {
	body := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			body[key] = vals[0]
			continue
		}
		body[key] = vals
	}
	return body
}

// errNoClientAddr reports a request whose remote address cannot be
// determined at all.
var errNoClientAddr = errors.New("no client address")

// clientIP resolves the client address, trusting proxy headers in order:
// X-Forwarded-For (first hop), then X-Real-IP, then the connection's
// remote address.
func clientIP(r *http.Request) (string, error) {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip, nil
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real, nil
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr may already be a bare host in tests or unix sockets.
		if r.RemoteAddr != "" {
			return r.RemoteAddr, nil
		}
		return "", errNoClientAddr
	}
	return host, nil
}
