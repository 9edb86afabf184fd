package stream

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultWindowSize is the size of the decompression window.
	DefaultWindowSize = 1 << 20

	// DefaultReadTimeout bounds a Read waiting for the next window.
	DefaultReadTimeout = 10 * time.Second

	// DefaultSeekTimeout bounds a Seek waiting for the producer.
	DefaultSeekTimeout = 30 * time.Second
)

// Option configures a Session.
type Option func(*Session)

// WithWindowSize sets the window size in bytes. Values < 1 are ignored.
func WithWindowSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithReadTimeout sets how long Read waits for the producer.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.readTimeout = d
	}
}

// WithSeekTimeout sets how long Seek waits for the producer.
func WithSeekTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.seekTimeout = d
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithContext sets the parent context passed to Source.Open. Canceling it
// stops the producer at its next reopen.
func WithContext(ctx context.Context) Option {
	return func(s *Session) {
		if ctx != nil {
			s.parent = ctx
		}
	}
}
