package internal

import (
	"io"

	"github.com/benbjohnson/clock"

	"github.com/starford/folio/internal/remote"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	store   remote.Store
	clock   clock.Clock
	logOut  io.Writer
	version string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithStore replaces the remote store selected by the configuration.
func WithStore(s remote.Store) Option {
	return func(a *application) {
		a.store = s
	}
}

// WithClock sets the clock used by caches, drafts and schedulers.
func WithClock(c clock.Clock) Option {
	return func(a *application) {
		a.clock = c
	}
}

// WithLogOutput redirects the JSON log stream. The MCP command logs to
// stderr because stdout carries the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
