// Package auth decides whether a request may proceed, combining an optional
// global credential check with per-route overrides.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
)

// Func validates a set of credentials. Implementations may perform I/O
// (external verification) and should honor ctx cancellation. A false return
// means the request is rejected with 401; a non-nil error means the check
// itself failed and the request is rejected as a server fault instead.
type Func func(ctx context.Context, user, pass string) (bool, error)

// Override selects how a single route is authenticated. The zero value
// inherits the global check; Open disables authentication for the route;
// With supplies a route-specific check. "Unset" and "open" are distinct
// states and must never be conflated.
type Override struct {
	mode overrideMode
	fn   Func
}

type overrideMode int

const (
	modeInherit overrideMode = iota
	modeOpen
	modeCustom
)

// Inherit returns the zero override: fall through to the global check.
func Inherit() Override { return Override{} }

// Open returns an override that authorizes unconditionally.
func Open() Override { return Override{mode: modeOpen} }

// With returns an override that delegates to fn for this route only.
// A nil fn is treated as unset so it can never be invoked at decision time.
func With(fn Func) Override {
	if fn == nil {
		return Override{}
	}
	return Override{mode: modeCustom, fn: fn}
}

// Details holds credentials decoded from the Authorization header.
// Transient; discarded after the decision.
type Details struct {
	User    string
	Pass    string
	Present bool
}

// ParseBasic extracts Basic credentials from a request. A missing or
// malformed header yields empty credentials rather than an error; the
// configured checks decide what to do with them.
func ParseBasic(r *http.Request) Details {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Details{}
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "basic") {
		return Details{}
	}

	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return Details{}
	}

	user, pass, found := strings.Cut(string(decoded), ":")
	if !found {
		return Details{User: string(decoded), Present: true}
	}
	return Details{User: user, Pass: pass, Present: true}
}

// Engine applies the authorization precedence for each request.
type Engine struct {
	global Func
}

// NewEngine creates an engine with an optional global check.
// A nil global check authorizes every request that carries no override.
func NewEngine(global Func) *Engine {
	return &Engine{global: global}
}

// Decide evaluates, in order: a route-specific check, an explicit "open"
// override, the global check, and finally default-allow. It returns exactly
// one result; callers must not invoke the handler or write a response
// before it does.
func (e *Engine) Decide(ctx context.Context, ov Override, d Details) (bool, error) {
	switch ov.mode {
	case modeCustom:
		return ov.fn(ctx, d.User, d.Pass)
	case modeOpen:
		return true, nil
	}
	if e.global != nil {
		return e.global(ctx, d.User, d.Pass)
	}
	return true, nil
}

// dummyHash burns a comparison for unknown users so the miss path costs
// the same as a mismatch.
var dummyHash = sha256.Sum256([]byte("tollgate.dummy"))

// Credentials builds a Func from a username to accepted-passwords mapping.
// Comparison is constant-time over hashed values to prevent timing attacks,
// and every candidate for the user is checked even after a match.
func Credentials(users map[string][]string) Func {
	hashed := make(map[string][][sha256.Size]byte, len(users))
	for user, passwords := range users {
		for _, p := range passwords {
			hashed[user] = append(hashed[user], sha256.Sum256([]byte(p)))
		}
	}

	return func(ctx context.Context, user, pass string) (bool, error) {
		supplied := sha256.Sum256([]byte(pass))

		candidates, ok := hashed[user]
		if !ok {
			subtle.ConstantTimeCompare(supplied[:], dummyHash[:])
			return false, nil
		}

		authorized := false
		for _, candidate := range candidates {
			if subtle.ConstantTimeCompare(supplied[:], candidate[:]) == 1 {
				authorized = true
			}
		}
		return authorized, nil
	}
}
