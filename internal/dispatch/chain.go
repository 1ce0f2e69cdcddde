package dispatch

import "net/http"

// Middleware wraps an http.Handler with a pre-processing step. A step
// short-circuits by writing its own response and not calling the wrapped
// handler.
type Middleware func(http.Handler) http.Handler

// Chain is an ordered middleware sequence. Steps run in registration order
// for every request; the sequence is fixed once the chain has been wrapped
// around a final handler.
type Chain struct {
	steps []Middleware
}

// NewChain creates a chain from the given steps, first to run first.
func NewChain(steps ...Middleware) *Chain {
	return &Chain{steps: steps}
}

// Use appends steps to the chain.
func (c *Chain) Use(steps ...Middleware) {
	c.steps = append(c.steps, steps...)
}

// Len reports the number of registered steps.
func (c *Chain) Len() int {
	return len(c.steps)
}

// Wrap composes the chain around final so that the first registered step
// is the outermost handler.
func (c *Chain) Wrap(final http.Handler) http.Handler {
	h := final
	for i := len(c.steps) - 1; i >= 0; i-- {
		h = c.steps[i](h)
	}
	return h
}
