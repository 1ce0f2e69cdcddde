package runtime

import (
	"fmt"
	"log/slog"

	"github.com/tollgate-io/tollgate/internal/audit"
	"github.com/tollgate-io/tollgate/internal/auth"
	"github.com/tollgate-io/tollgate/internal/config"
	"github.com/tollgate-io/tollgate/internal/dispatch"
)

// Option configures a Runtime during New.
type Option func(*Runtime) error

// WithConfig supplies a complete configuration, replacing defaults.
func WithConfig(cfg *config.Config) Option {
	return func(rt *Runtime) error {
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		rt.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file, layered with
// environment variables and defaults.
func WithConfigFile(path string) Option {
	return func(rt *Runtime) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		rt.cfg = cfg
		return nil
	}
}

// WithLogger sets the structured logger used by every component.
func WithLogger(log *slog.Logger) Option {
	return func(rt *Runtime) error {
		if log == nil {
			return fmt.Errorf("logger is nil")
		}
		rt.log = log
		return nil
	}
}

// WithRoutes supplies the route tree. Required.
func WithRoutes(tree dispatch.Tree) Option {
	return func(rt *Runtime) error {
		if len(tree) == 0 {
			return fmt.Errorf("route tree is empty")
		}
		rt.routes = tree
		return nil
	}
}

// WithMiddleware appends steps to the dispatch middleware chain, run in
// the order given, after the built-in recovery and timeout steps.
func WithMiddleware(steps ...dispatch.Middleware) Option {
	return func(rt *Runtime) error {
		rt.userMW = append(rt.userMW, steps...)
		return nil
	}
}

// WithGlobalAuth sets the fallback authorization function for handlers
// that neither opt out nor carry their own.
func WithGlobalAuth(fn auth.Func) Option {
	return func(rt *Runtime) error {
		rt.globalAuth = fn
		return nil
	}
}

// WithCredentials installs a global credential-map authorization function
// accepting the given username to passwords pairs.
func WithCredentials(users map[string][]string) Option {
	return func(rt *Runtime) error {
		if len(users) == 0 {
			return fmt.Errorf("credential map is empty")
		}
		rt.globalAuth = auth.Credentials(users)
		return nil
	}
}

// WithRecorder supplies an audit recorder, overriding whatever the
// configuration selects. The runtime takes ownership and closes it on
// shutdown.
func WithRecorder(rec audit.Recorder) Option {
	return func(rt *Runtime) error {
		rt.recorder = rec
		return nil
	}
}
