// Package logging provides a minimal logging interface and adapters for CalMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the composition layer and providers use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - CalMeshLogger with session/account context and dispatch helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "text"})
//	mesh, err := calmesh.New(func(o *calmesh.Options) { o.Logger = logger })
package logging
