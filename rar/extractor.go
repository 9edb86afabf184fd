package rar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/meigma/rarfs/cache"
	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/internal/pathutil"
)

// Extractor decompresses members to disk with rardecode.
type Extractor struct {
	fs   afero.Fs
	cfg  config
	sink *fileSink
}

var _ cache.Extractor = (*Extractor)(nil)

// NewExtractor creates an Extractor reading archives from and writing files
// to fsys.
func NewExtractor(fsys afero.Fs, opts ...Option) *Extractor {
	cfg := newConfig(opts)
	return &Extractor{
		fs:   fsys,
		cfg:  cfg,
		sink: &fileSink{fs: fsys, dirPerm: cfg.dirPerm, preserveTimes: cfg.preserveTimes},
	}
}

// Extract implements cache.Extractor. A single member is written to
// DestDir under its base name; an empty Member extracts the whole archive
// below DestDir.
func (e *Extractor) Extract(ctx context.Context, req cache.ExtractRequest) (cache.ExtractResult, error) {
	if req.Member == "" {
		return e.extractAll(ctx, req)
	}

	oa, hdr, err := e.cfg.seekMember(e.fs, req.Archive, req.Offset, req.Member)
	if err != nil {
		if errors.Is(err, errMemberNotInArchive) {
			return cache.ExtractResult{}, fmt.Errorf("%w: %s", index.ErrMemberNotFound, req.Member)
		}
		return cache.ExtractResult{}, err
	}
	defer oa.Close() //nolint:errcheck // read-only

	destPath := filepath.Join(req.DestDir, pathutil.Base(req.Member))
	total := req.Size
	if total <= 0 && !hdr.UnKnownSize {
		total = hdr.UnPackedSize
	}
	pw := newProgressWriter(ctx, nil, req.Progress, cache.ProgressEvent{
		Stage:      cache.StageExtracting,
		Archive:    req.Archive,
		Member:     req.Member,
		BytesTotal: total,
	}, e.cfg.progressEvery)

	if err := e.writeMember(oa.dec, pw, destPath, hdr.ModificationTime, req.Member); err != nil {
		return cache.ExtractResult{}, err
	}
	e.cfg.log().Debug("extracted member",
		"archive", req.Archive,
		"member", req.Member,
		"path", destPath,
		"bytes", pw.Written(),
		"resumed", oa.resumed)
	return cache.ExtractResult{Path: destPath, Written: pw.Written(), Offset: req.Offset}, nil
}

func (e *Extractor) extractAll(ctx context.Context, req cache.ExtractRequest) (cache.ExtractResult, error) {
	oa, err := e.cfg.openArchive(e.fs, req.Archive, -1)
	if err != nil {
		return cache.ExtractResult{}, err
	}
	defer oa.Close() //nolint:errcheck // read-only

	pw := newProgressWriter(ctx, nil, req.Progress, cache.ProgressEvent{
		Stage:      cache.StageExtracting,
		Archive:    req.Archive,
		BytesTotal: req.Size,
	}, e.cfg.progressEvery)

	for {
		if err := ctx.Err(); err != nil {
			return cache.ExtractResult{}, err
		}
		hdr, err := oa.dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return cache.ExtractResult{}, fmt.Errorf("read %s: %w", req.Archive, err)
		}

		name := memberName(hdr)
		if name == "" || pathutil.IsUnsafe(name) {
			e.cfg.log().Warn("skipping unsafe member path", "archive", req.Archive, "member", hdr.Name)
			continue
		}
		destPath := filepath.Join(req.DestDir, filepath.FromSlash(name))
		if hdr.IsDir {
			if err := e.fs.MkdirAll(destPath, e.cfg.dirPerm); err != nil {
				return cache.ExtractResult{}, fmt.Errorf("create directory %s: %w", destPath, err)
			}
			continue
		}
		if err := e.writeMember(oa.dec, pw, destPath, hdr.ModificationTime, name); err != nil {
			return cache.ExtractResult{}, err
		}
	}
	if !pw.report() {
		return cache.ExtractResult{}, cache.ErrExtractionCanceled
	}
	return cache.ExtractResult{Path: req.DestDir, Written: pw.Written(), Offset: -1}, nil
}

// writeMember copies the decoder's current member to destPath through pw.
func (e *Extractor) writeMember(r io.Reader, pw *progressWriter, destPath string, modTime time.Time, member string) error {
	pf, err := e.sink.create(destPath, modTime)
	if err != nil {
		return err
	}
	pw.retarget(pf, member)
	if _, err := io.Copy(pw, r); err != nil {
		pf.discard()
		if errors.Is(err, cache.ErrExtractionCanceled) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("decompress %s: %w", member, err)
	}
	return pf.commit()
}
