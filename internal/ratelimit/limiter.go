// Package ratelimit gates requests per client key with a token bucket.
// Per-client state lives in a bounded LRU store so an open deployment
// cannot grow it without limit; evicting a client simply forgets its
// bucket.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// DefaultMaxClients bounds the per-client store when the policy does not.
const DefaultMaxClients = 4096

// Policy describes the per-client allotment.
type Policy struct {
	RPS        float64 // sustained tokens per second per client
	Burst      int     // bucket capacity per client
	MaxClients int     // tracked clients before LRU eviction
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int           // bucket capacity, for X-RateLimit-Limit
	Remaining  int           // tokens left after this check
	RetryAfter time.Duration // wait until the next token, set when denied
}

// Limiter admits requests per client key. Admission consumes a token
// atomically, so concurrent checks for one client cannot both pass on the
// same token.
type Limiter struct {
	policy  Policy
	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
}

// New creates a limiter for the given policy.
func New(policy Policy) (*Limiter, error) {
	if policy.RPS <= 0 {
		return nil, fmt.Errorf("rate limit rps must be positive, got %v", policy.RPS)
	}
	if policy.Burst < 1 {
		policy.Burst = 1
	}
	if policy.MaxClients < 1 {
		policy.MaxClients = DefaultMaxClients
	}

	clients, err := lru.New[string, *rate.Limiter](policy.MaxClients)
	if err != nil {
		return nil, fmt.Errorf("create client store: %w", err)
	}
	return &Limiter{policy: policy, clients: clients}, nil
}

// Allow checks and consumes one token for key. Once a client's bucket is
// empty every subsequent check is denied until a token is replenished.
func (l *Limiter) Allow(key string) Decision {
	lim := l.client(key)

	res := lim.Reserve()
	if !res.OK() {
		return Decision{Limit: l.policy.Burst, RetryAfter: l.refillInterval()}
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return Decision{
			Limit:      l.policy.Burst,
			Remaining:  remaining(lim),
			RetryAfter: delay,
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     l.policy.Burst,
		Remaining: remaining(lim),
	}
}

// Clients reports how many client buckets are currently tracked.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clients.Len()
}

// client returns the bucket for key, creating it on first sight. The lock
// covers the lookup-or-insert so two concurrent first requests share one
// bucket.
func (l *Limiter) client(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.clients.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(l.policy.RPS), l.policy.Burst)
	l.clients.Add(key, lim)
	return lim
}

func (l *Limiter) refillInterval() time.Duration {
	return time.Duration(float64(time.Second) / l.policy.RPS)
}

func remaining(lim *rate.Limiter) int {
	tokens := int(lim.Tokens())
	if tokens < 0 {
		return 0
	}
	return tokens
}
