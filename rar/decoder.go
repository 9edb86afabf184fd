package rar

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/nwaples/rardecode/v2"
	"github.com/spf13/afero"

	"github.com/meigma/rarfs/internal/pathutil"
)

// decoder is the part of rardecode's readers used here.
type decoder interface {
	Next() (*rardecode.FileHeader, error)
	io.Reader
}

// openedArchive is a decoder plus whatever must be closed with it.
type openedArchive struct {
	dec     decoder
	closer  io.Closer
	resumed bool
}

func (o *openedArchive) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

func (c *config) decodeOptions(fsys afero.Fs, dir string) []rardecode.Option {
	opts := []rardecode.Option{
		rardecode.FileSystem(afero.NewIOFS(afero.NewBasePathFs(fsys, dir))),
	}
	if c.password != "" {
		opts = append(opts, rardecode.Password(c.password))
	}
	return opts
}

// openArchive opens archivePath for decompression.
//
// When offset points past the main header of a single-volume, non-solid
// archive, the decoder is fed the archive prefix followed by the bytes at
// offset, so the member header at offset is the first one it sees.
func (c *config) openArchive(fsys afero.Fs, archivePath string, offset int64) (*openedArchive, error) {
	abs, err := filepath.Abs(archivePath)
	if err != nil {
		return nil, err
	}
	if _, err := fsys.Stat(abs); err != nil {
		return nil, err
	}
	dir, name := filepath.Split(abs)

	if offset > 0 {
		if oa, ok := c.openSpliced(fsys, abs, dir, offset); ok {
			return oa, nil
		}
	}

	rc, err := rardecode.OpenReader(name, c.decodeOptions(fsys, dir)...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", archivePath, err)
	}
	return &openedArchive{dec: rc, closer: rc}, nil
}

func (c *config) openSpliced(fsys afero.Fs, abs, dir string, offset int64) (*openedArchive, bool) {
	arc, err := ReadVolume(fsys, abs)
	if err != nil || arc.Solid || arc.Volume || offset < arc.PrefixEnd {
		return nil, false
	}
	f, err := fsys.Open(abs)
	if err != nil {
		return nil, false
	}
	info, err := f.Stat()
	if err != nil || offset >= info.Size() {
		_ = f.Close() //nolint:errcheck // falling back to a full scan
		return nil, false
	}

	r := io.MultiReader(
		io.NewSectionReader(f, 0, arc.PrefixEnd),
		io.NewSectionReader(f, offset, info.Size()-offset),
	)
	dec, err := rardecode.NewReader(r, c.decodeOptions(fsys, dir)...)
	if err != nil {
		_ = f.Close() //nolint:errcheck // falling back to a full scan
		return nil, false
	}
	return &openedArchive{dec: dec, closer: f, resumed: true}, true
}

// memberName normalizes a decoder header name the way the lister does.
// Legacy RAR3 names come back as raw OEM bytes; valid UTF-8 passes through.
func memberName(hdr *rardecode.FileHeader) string {
	return pathutil.DecodeName([]byte(hdr.Name), false)
}

// errMemberNotInArchive is returned when the decoder reaches the end of the
// archive without seeing the member.
var errMemberNotInArchive = errors.New("member not in archive")

// seekMember advances the decoder to member. A resumed decoder that does
// not start at member is reopened from the start.
func (c *config) seekMember(fsys afero.Fs, archivePath string, offset int64, member string) (*openedArchive, *rardecode.FileHeader, error) {
	oa, err := c.openArchive(fsys, archivePath, offset)
	if err != nil {
		return nil, nil, err
	}
	for {
		hdr, err := oa.dec.Next()
		if err != nil {
			_ = oa.Close() //nolint:errcheck // reporting the read error
			if oa.resumed {
				c.log().Debug("resume offset unreadable", "archive", archivePath, "member", member, "error", err)
				return c.seekMember(fsys, archivePath, -1, member)
			}
			if errors.Is(err, io.EOF) {
				return nil, nil, fmt.Errorf("%s: %w", member, errMemberNotInArchive)
			}
			return nil, nil, fmt.Errorf("read %s: %w", archivePath, err)
		}
		if memberName(hdr) == member {
			return oa, hdr, nil
		}
		if oa.resumed {
			c.log().Debug("resume offset did not land on member", "archive", archivePath, "member", member, "found", hdr.Name)
			_ = oa.Close() //nolint:errcheck // reopening
			return c.seekMember(fsys, archivePath, -1, member)
		}
	}
}
