package rar

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/meigma/rarfs/index"
)

// Lister lists archives by walking their block headers. It implements
// index.Lister.
type Lister struct {
	fs  afero.Fs
	cfg config
}

var _ index.Lister = (*Lister)(nil)

// NewLister creates a Lister reading volumes from fsys.
func NewLister(fsys afero.Fs, opts ...Option) *Lister {
	return &Lister{fs: fsys, cfg: newConfig(opts)}
}

// List returns the members of the archive whose first volume is
// archivePath. Members split across volumes are merged into one entry with
// one Part per volume. A missing continuation volume ends the walk and
// leaves the affected member with the parts found so far.
func (l *Lister) List(ctx context.Context, archivePath string) ([]index.RawEntry, error) {
	var (
		entries []index.RawEntry
		pending = make(map[string]int) // member name -> entry awaiting its next part
		prev    string
	)

	for n := range l.cfg.maxVolumes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vol := VolumeName(archivePath, n)
		if vol == prev {
			// Listing started from a continuation volume.
			break
		}
		prev = vol
		arc, err := ReadVolume(l.fs, vol)
		if err != nil {
			if n == 0 {
				return nil, err
			}
			if errors.Is(err, fs.ErrNotExist) {
				l.cfg.log().Warn("archive volume missing", "archive", archivePath, "volume", vol)
			} else {
				l.cfg.log().Warn("archive volume unreadable", "archive", archivePath, "volume", vol, "error", err)
			}
			break
		}

		for i := range arc.Files {
			fh := &arc.Files[i]
			part := index.Part{Volume: vol, DataOffset: fh.DataOffset, Size: fh.PackedSize}
			key := string(fh.Name)

			if fh.SplitBefore {
				idx, ok := pending[key]
				if !ok {
					// The member started in a volume we did not read.
					continue
				}
				entries[idx].Parts = append(entries[idx].Parts, part)
				entries[idx].PackedSize += fh.PackedSize
				if !fh.SplitAfter {
					delete(pending, key)
				}
				continue
			}

			entries = append(entries, rawEntry(fh, part))
			if fh.SplitAfter {
				pending[key] = len(entries) - 1
			}
		}

		if !arc.Volume || (!arc.NextVolume && len(pending) == 0) {
			break
		}
	}

	l.cfg.log().Debug("archive headers walked", "archive", archivePath, "entries", len(entries))
	return entries, nil
}

func rawEntry(fh *FileHeader, part index.Part) index.RawEntry {
	e := index.RawEntry{
		Name:       fh.Name,
		UTF8:       fh.UTF8,
		Size:       fh.Size,
		PackedSize: fh.PackedSize,
		Method:     fh.Method,
		Attributes: fh.Attributes,
		HostOS:     fh.HostOS,
		ModTime:    fh.ModTime,
		Offset:     fh.HeaderOffset,
		Solid:      fh.Solid,
		Encrypted:  fh.Encrypted,
	}
	if !fh.Dir {
		e.Parts = []index.Part{part}
	}
	return e
}

// ReadVolume opens one volume on fsys and walks its headers.
func ReadVolume(fsys afero.Fs, path string) (*Archive, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	arc, err := ReadArchive(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return arc, nil
}
