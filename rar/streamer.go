package rar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/stream"
)

// Streamer opens members for streaming decompression.
type Streamer struct {
	fs  afero.Fs
	cfg config
}

// NewStreamer creates a Streamer reading archives from fsys.
func NewStreamer(fsys afero.Fs, opts ...Option) *Streamer {
	return &Streamer{fs: fsys, cfg: newConfig(opts)}
}

// Stream returns a stream.Source producing the decompressed content of
// entry. Each Open starts decompression from the member's first byte.
func (s *Streamer) Stream(archivePath string, entry index.ArchiveEntry) stream.Source {
	return stream.SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		oa, _, err := s.cfg.seekMember(s.fs, archivePath, entry.Offset, entry.Name)
		if err != nil {
			if errors.Is(err, errMemberNotInArchive) {
				return nil, fmt.Errorf("%w: %s", index.ErrMemberNotFound, entry.Name)
			}
			return nil, volumeErr(err)
		}
		return &memberReader{oa: oa, ctx: ctx}, nil
	})
}

type memberReader struct {
	oa  *openedArchive
	ctx context.Context
}

func (r *memberReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := r.oa.dec.Read(p)
	return n, volumeErr(err)
}

func (r *memberReader) Close() error {
	return r.oa.Close()
}

// volumeErr marks errors caused by a missing volume file.
func volumeErr(err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	if errors.Is(err, fs.ErrNotExist) && !errors.Is(err, stream.ErrVolumeMissing) {
		return fmt.Errorf("%w: %w", stream.ErrVolumeMissing, err)
	}
	return err
}
