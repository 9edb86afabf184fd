package rar

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// fileSink writes extracted files with atomic writes.
//
// Files are written to a temporary file in the destination directory and
// renamed to the final path on commit, so a partial extraction is never
// visible at the final path.
type fileSink struct {
	fs            afero.Fs
	dirPerm       os.FileMode
	preserveTimes bool
}

// create returns a pendingFile that becomes destPath on commit.
func (s *fileSink) create(destPath string, modTime time.Time) (*pendingFile, error) {
	dir := filepath.Dir(destPath)
	if err := s.fs.MkdirAll(dir, s.dirPerm); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(s.fs, dir, ".rarfs-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &pendingFile{sink: s, destPath: destPath, tmp: tmp, modTime: modTime}, nil
}

type pendingFile struct {
	sink     *fileSink
	destPath string
	tmp      afero.File
	modTime  time.Time
}

// Write implements io.Writer.
func (p *pendingFile) Write(b []byte) (int, error) {
	return p.tmp.Write(b)
}

// commit closes the temp file, applies the modification time and renames
// it to the final path.
func (p *pendingFile) commit() error {
	fsys := p.sink.fs
	tmpPath := p.tmp.Name()

	if err := p.tmp.Close(); err != nil {
		_ = fsys.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if p.sink.preserveTimes && !p.modTime.IsZero() {
		if err := fsys.Chtimes(tmpPath, p.modTime, p.modTime); err != nil {
			_ = fsys.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("chtimes: %w", err)
		}
	}
	if err := fsys.Rename(tmpPath, p.destPath); err != nil {
		_ = fsys.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", p.destPath, err)
	}
	return nil
}

// discard closes and removes the temp file.
func (p *pendingFile) discard() {
	tmpPath := p.tmp.Name()
	_ = p.tmp.Close()             //nolint:errcheck // cleaning up
	_ = p.sink.fs.Remove(tmpPath) //nolint:errcheck // cleaning up
}
