package rarfs

import (
	"log/slog"

	"github.com/spf13/afero"

	"github.com/meigma/rarfs/cache"
	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/stream"
)

// Option configures an FS.
type Option func(*FS) error

// WithLogger sets the logger used by the FS and the components it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FS) error {
		f.logger = logger
		return nil
	}
}

// WithFs sets the filesystem archives and cached copies live on.
// Defaults to the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(f *FS) error {
		f.fs = fsys
		return nil
	}
}

// WithCacheDir sets the directory compressed members are extracted to.
func WithCacheDir(dir string) Option {
	return func(f *FS) error {
		f.cacheDir = dir
		return nil
	}
}

// WithDefaultFlags sets the flags used when an address carries none.
func WithDefaultFlags(flags cache.Flags) Option {
	return func(f *FS) error {
		f.defaultFlags = flags
		return nil
	}
}

// WithPassword sets the password for encrypted members. It only applies to
// the default collaborators.
func WithPassword(password string) Option {
	return func(f *FS) error {
		f.password = password
		return nil
	}
}

// WithLister replaces the archive lister.
func WithLister(l index.Lister) Option {
	return func(f *FS) error {
		f.lister = l
		return nil
	}
}

// WithExtractor replaces the bulk extractor used by the cache manager.
func WithExtractor(x cache.Extractor) Option {
	return func(f *FS) error {
		f.extractor = x
		return nil
	}
}

// WithStreamer replaces the source of streaming decompression.
func WithStreamer(s Streamer) Option {
	return func(f *FS) error {
		f.streamer = s
		return nil
	}
}

// WithConfirmer sets the host callbacks for large extractions.
func WithConfirmer(c cache.Confirmer) Option {
	return func(f *FS) error {
		f.confirmer = c
		return nil
	}
}

// WithSpaceProbe replaces the free-space probe used before extraction.
func WithSpaceProbe(probe cache.SpaceProbe) Option {
	return func(f *FS) error {
		f.probe = probe
		return nil
	}
}

// WithSnapshotDir persists archive listings in dir so they survive
// restarts.
func WithSnapshotDir(dir string) Option {
	return func(f *FS) error {
		f.snapshotDir = dir
		return nil
	}
}

// WithStreamOptions adds options for every stream session.
func WithStreamOptions(opts ...stream.Option) Option {
	return func(f *FS) error {
		f.streamOpts = append(f.streamOpts, opts...)
		return nil
	}
}

// WithCacheOptions adds options for the cache manager. They are applied
// after the FS-level settings.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(f *FS) error {
		f.cacheOpts = append(f.cacheOpts, opts...)
		return nil
	}
}

// WithIndexOptions adds options for the archive index store.
func WithIndexOptions(opts ...index.Option) Option {
	return func(f *FS) error {
		f.indexOpts = append(f.indexOpts, opts...)
		return nil
	}
}
