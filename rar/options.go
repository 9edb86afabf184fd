package rar

import (
	"log/slog"
	"os"
)

const (
	defaultProgressEvery = 1 << 20
	defaultDirPerm       = 0o755
)

type config struct {
	password      string
	logger        *slog.Logger
	progressEvery int64
	dirPerm       os.FileMode
	preserveTimes bool
	maxVolumes    int
}

func newConfig(opts []Option) config {
	cfg := config{
		progressEvery: defaultProgressEvery,
		dirPerm:       defaultDirPerm,
		preserveTimes: true,
		maxVolumes:    1000,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// log returns the logger, falling back to a discard logger if nil.
func (c *config) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Option configures a Lister, Extractor or Streamer.
type Option func(*config)

// WithPassword sets the password for encrypted members.
func WithPassword(password string) Option {
	return func(c *config) {
		c.password = password
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithProgressInterval sets how many bytes are written between progress
// reports. Defaults to 1 MiB.
func WithProgressInterval(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.progressEvery = n
		}
	}
}

// WithDirPerm sets the permissions used for created directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *config) {
		c.dirPerm = mode
	}
}

// WithPreserveTimes controls whether extracted files keep the member
// modification time. Enabled by default.
func WithPreserveTimes(preserve bool) Option {
	return func(c *config) {
		c.preserveTimes = preserve
	}
}

// WithMaxVolumes bounds how many volumes the Lister follows.
func WithMaxVolumes(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxVolumes = n
		}
	}
}
