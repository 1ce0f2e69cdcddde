package dispatch

import (
	"fmt"
	"sort"
	"strings"
)

// Tree is the nested registration structure. Each value is either a
// *Handler bound at that key or a nested Tree (map[string]any is accepted
// for literal convenience). Keys may themselves contain slashes; they are
// joined with "/" when the tree is flattened.
type Tree map[string]any

// Table is the flattened route table: normalized path to handler. Built
// once at startup and read-only afterwards, so concurrent lookups need no
// locking.
type Table struct {
	routes map[string]*Handler
}

// BuildTable flattens tree into a table. Duplicate keys are tolerated
// silently; flattening walks keys in sorted order so the winner is
// deterministic. Values that are neither handlers nor nested trees are
// rejected.
func BuildTable(tree Tree) (*Table, error) {
	routes := make(map[string]*Handler)
	if err := flatten("", tree, routes); err != nil {
		return nil, err
	}
	return &Table{routes: routes}, nil
}

func flatten(prefix string, tree map[string]any, routes map[string]*Handler) error {
	keys := make([]string, 0, len(tree))
	for key := range tree {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := joinPath(prefix, key)
		switch v := tree[key].(type) {
		case *Handler:
			routes[normalizePath(path)] = v
		case Tree:
			if err := flatten(path, v, routes); err != nil {
				return err
			}
		case map[string]any:
			if err := flatten(path, v, routes); err != nil {
				return err
			}
		default:
			return fmt.Errorf("route %q: unsupported value %T", normalizePath(path), tree[key])
		}
	}
	return nil
}

// joinPath joins a flattened prefix with a registration key, tolerating
// stray slashes on either side.
func joinPath(prefix, key string) string {
	key = strings.Trim(key, "/")
	if key == "" {
		return prefix
	}
	return prefix + "/" + key
}

// normalizePath ensures a leading slash and strips a single trailing
// slash, leaving the root path untouched.
func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}

// Lookup finds the handler registered at the exact normalized path.
func (t *Table) Lookup(path string) (*Handler, bool) {
	h, ok := t.routes[path]
	return h, ok
}

// Len reports the number of registered routes.
func (t *Table) Len() int {
	return len(t.routes)
}

// Paths returns the registered paths in sorted order.
func (t *Table) Paths() []string {
	paths := make([]string, 0, len(t.routes))
	for p := range t.routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
