package unitares

import (
	"log/slog"

	"github.com/CIRWEL/unitares-sub004/internal/config"
)

// resolvedOptions collects every Option's effect before New uses it to
// build the App. Kept unexported so the only public surface is Option
// itself and the With* constructors below.
type resolvedOptions struct {
	configOverride *config.Config
	logger         *slog.Logger
	version        string
}

// Option configures an App at construction, following the same functional-
// options shape the rest of this codebase's constructors use.
type Option func(*resolvedOptions)

// WithConfig bypasses config.Load and uses cfg directly — primarily for
// tests that want deterministic settings without environment variables.
func WithConfig(cfg config.Config) Option {
	return func(o *resolvedOptions) { o.configOverride = &cfg }
}

// WithLogger overrides the default slog.Logger (JSON handler on stdout).
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the MCP handshake and
// startup log line. Defaults to "dev".
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}
