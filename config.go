package relaydb

import (
	"time"

	"github.com/rs/zerolog"
)

// Config bundles everything a Client needs to start: persistence
// location, remote endpoint, and tuning knobs. Build one with functional
// Option values passed to New.
type Config struct {
	AppID           string
	BaseURL         string
	RefreshToken    string
	SyncEnabled     bool
	PersistenceDir  string // "" or ":memory:" for the in-memory store
	ReconnectDelay  time.Duration
	VerboseLogging  bool
	Logger          zerolog.Logger

	DisableCompletedHeuristic bool
	StrictWhereOperators      bool
}

// Option mutates a Config during New.
type Option func(*Config)

// WithBaseURL sets the protocol+host used for the WebSocket URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithRefreshToken sets the auth token sent on init; omit for anonymous
// sessions.
func WithRefreshToken(token string) Option {
	return func(c *Config) { c.RefreshToken = token }
}

// WithSyncDisabled turns off the Sync Engine: transactions apply locally
// and remain pending in the durable log forever.
func WithSyncDisabled() Option {
	return func(c *Config) { c.SyncEnabled = false }
}

// WithPersistenceDir sets the local store's location. Use ":memory:" for
// an ephemeral in-memory store (the default when unset).
func WithPersistenceDir(dir string) Option {
	return func(c *Config) { c.PersistenceDir = dir }
}

// WithReconnectDelay overrides the default single-shot reconnect delay.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Config) { c.ReconnectDelay = d }
}

// WithLogger overrides the default no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithVerboseLogging raises the logger's level to debug.
func WithVerboseLogging() Option {
	return func(c *Config) {
		c.VerboseLogging = true
		c.Logger = c.Logger.Level(zerolog.DebugLevel)
	}
}

// WithStrictWhereOperators makes an unknown where-clause operator an
// error instead of silently degrading to "no constraint".
func WithStrictWhereOperators() Option {
	return func(c *Config) { c.StrictWhereOperators = true }
}

// WithCompletedHeuristicDisabled turns off the legacy "unresolved boolean
// attribute filed as completed" fallback in query-response decoding and
// in inbound transact translation.
func WithCompletedHeuristicDisabled() Option {
	return func(c *Config) { c.DisableCompletedHeuristic = true }
}

func newConfig(appID string, opts []Option) Config {
	cfg := Config{
		AppID:          appID,
		BaseURL:        "https://api.relaydb.example",
		SyncEnabled:    true,
		PersistenceDir: ":memory:",
		ReconnectDelay: 2 * time.Second,
		Logger:         defaultLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
