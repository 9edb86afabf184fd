package cache

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithFs sets the filesystem cached files are written to and deleted from.
// Defaults to the store's filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(m *Manager) {
		m.fs = fsys
	}
}

// WithDir sets the default cache directory.
// Defaults to "rarfs" under os.TempDir().
func WithDir(dir string) Option {
	return func(m *Manager) {
		if dir != "" {
			m.dir = dir
		}
	}
}

// WithDirPerm sets the permissions used for created directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(m *Manager) {
		m.dirPerm = mode
	}
}

// WithConfirmer sets the Confirmer consulted for large extractions.
func WithConfirmer(c Confirmer) Option {
	return func(m *Manager) {
		m.confirmer = c
	}
}

// WithSpaceProbe overrides the free space probe.
func WithSpaceProbe(probe SpaceProbe) Option {
	return func(m *Manager) {
		if probe != nil {
			m.probe = probe
		}
	}
}

// WithLargeFileThreshold sets the size above which extractions are
// confirmed. Defaults to DefaultLargeFileThreshold.
func WithLargeFileThreshold(n int64) Option {
	return func(m *Manager) {
		m.largeThreshold = n
	}
}

// WithCancelWindow sets how long a canceled extraction fails fast.
// Defaults to DefaultCancelWindow.
func WithCancelWindow(d time.Duration) Option {
	return func(m *Manager) {
		m.cancelWindow = d
	}
}

// WithNow overrides the clock. Defaults to the store's clock.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithProgress sets a function receiving progress for every extraction.
func WithProgress(fn ProgressFunc) Option {
	return func(m *Manager) {
		m.progress = fn
	}
}

// WithRemoveRetry sets how often a failing delete of a cached file is
// attempted during eviction, and the delay between attempts.
func WithRemoveRetry(attempts uint, delay time.Duration) Option {
	return func(m *Manager) {
		if attempts > 0 {
			m.removeAttempts = attempts
		}
		m.removeDelay = delay
	}
}
