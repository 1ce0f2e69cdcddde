// Package tollgate provides the public API for embedding the dispatcher.
// This is the stable API for external consumers.
package tollgate

import (
	"github.com/tollgate-io/tollgate/internal/auth"
	"github.com/tollgate-io/tollgate/internal/config"
	"github.com/tollgate-io/tollgate/internal/dispatch"
	"github.com/tollgate-io/tollgate/internal/runtime"
)

// Runtime is the main entry point for running the dispatcher.
// See internal/runtime.Runtime for full documentation.
type Runtime = runtime.Runtime

// Option is a functional option for configuring a Runtime.
type Option = runtime.Option

// Registration types, used to build the route tree passed to WithRoutes.
type (
	// Tree is the nested route registration structure.
	Tree = dispatch.Tree

	// Handler binds a function to a route. Construct with Sync or Async.
	Handler = dispatch.Handler

	// Request is the reduced request view handed to handlers.
	Request = dispatch.Request

	// Envelope is the JSON response body shape.
	Envelope = dispatch.Envelope

	// CallOptions overrides the status code or text of a response.
	CallOptions = dispatch.CallOptions

	// Callback completes an asynchronous handler.
	Callback = dispatch.Callback

	// Middleware wraps the dispatch pipeline.
	Middleware = dispatch.Middleware

	// AuthFunc decides whether a request's credentials are acceptable.
	AuthFunc = auth.Func

	// Config is the immutable startup snapshot accepted by WithConfig.
	Config = config.Config
)

// LoadConfig reads a YAML configuration file and layers environment
// overrides and built-in defaults on top. An empty path skips the file and
// uses environment variables and defaults alone.
var LoadConfig = config.Load

// DefaultConfig returns the built-in defaults.
var DefaultConfig = config.Default

// New creates a new Runtime with the given options.
// Example:
//
//	rt, err := tollgate.New(
//	    tollgate.WithConfigFile("config.yaml"),
//	    tollgate.WithRoutes(tollgate.Tree{
//	        "status": tollgate.Sync(statusFn),
//	    }),
//	)
var New = runtime.New

// Handler constructors
var (
	Sync  = dispatch.Sync
	Async = dispatch.Async
	Fail  = dispatch.Fail
)

// Configuration options
var (
	// Config sources
	WithConfig     = runtime.WithConfig
	WithConfigFile = runtime.WithConfigFile

	// Authentication
	WithGlobalAuth  = runtime.WithGlobalAuth
	WithCredentials = runtime.WithCredentials

	// Pipeline
	WithRoutes     = runtime.WithRoutes
	WithMiddleware = runtime.WithMiddleware

	// Advanced options
	WithLogger   = runtime.WithLogger
	WithRecorder = runtime.WithRecorder
)
