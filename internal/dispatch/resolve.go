package dispatch

import "strings"

// Resolution is a successful route match: the handler, the trailing path
// segments consumed as positional args (in path order), and the table key
// that matched.
type Resolution struct {
	Handler *Handler
	Args    []string
	Route   string
}

// Resolver finds the handler for a request path, tolerating up to maxDepth
// trailing segments beyond a registered route. Resolution proceeds from
// most specific to least specific, so the first hit is the only hit. A
// miss costs up to maxDepth+1 lookups; keep maxDepth small.
type Resolver struct {
	table    *Table
	maxDepth int
}

// NewResolver creates a resolver over table. Negative depths are treated
// as zero (exact matches only).
func NewResolver(table *Table, maxDepth int) *Resolver {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Resolver{table: table, maxDepth: maxDepth}
}

// Resolve matches path against the table. On a miss it strips the last
// segment, prepends it to the args list, and retries, up to maxDepth
// times, stopping once the path has been reduced to the root.
func (r *Resolver) Resolve(path string) (*Resolution, bool) {
	p := normalizePath(path)
	if h, ok := r.table.Lookup(p); ok {
		return &Resolution{Handler: h, Route: p}, true
	}

	var args []string
	for i := 0; i < r.maxDepth; i++ {
		idx := strings.LastIndex(p, "/")
		if idx < 0 || p == "/" {
			break
		}

		args = append([]string{p[idx+1:]}, args...)
		if idx == 0 {
			p = "/"
		} else {
			p = p[:idx]
		}

		if h, ok := r.table.Lookup(p); ok {
			return &Resolution{Handler: h, Args: args, Route: p}, true
		}
	}
	return nil, false
}
