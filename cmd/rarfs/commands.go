package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/meigma/rarfs"
	"github.com/meigma/rarfs/index"
)

const timeLayout = "2006-01-02 15:04:05"

func runLs(ctx context.Context, fsys *rarfs.FS, args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("ls", flag.ContinueOnError)
	fset.SetOutput(stderr)
	recursive := fset.Bool("r", false, "list recursively")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() < 1 || fset.NArg() > 2 {
		return errors.New("usage: rarfs ls [-r] archive [prefix]")
	}
	prefix := ""
	if fset.NArg() == 2 {
		prefix = fset.Arg(1)
	}

	items, err := fsys.GetFilesInRar(ctx, fset.Arg(0), *recursive, prefix)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	for i := range items {
		it := &items[i]
		size, method, mod := "-", "", ""
		if !it.IsDir {
			size = fmt.Sprint(it.Size)
			if it.Size < 0 {
				size = "?"
			}
		}
		if it.Entry != nil && !it.IsDir {
			method = it.Entry.Method.String()
		}
		if !it.ModTime.IsZero() {
			mod = it.ModTime.Format(timeLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t %s\n", size, method, mod, it.Path)
	}
	return tw.Flush()
}

func runStat(ctx context.Context, fsys *rarfs.FS, args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("stat", flag.ContinueOnError)
	fset.SetOutput(stderr)
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return errors.New("usage: rarfs stat archive::member")
	}
	u, err := rarfs.ParseURL(fset.Arg(0))
	if err != nil {
		return err
	}

	info, err := fsys.Stat(fset.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "name:     %s\n", info.Name())
	fmt.Fprintf(stdout, "mode:     %s\n", info.Mode())
	fmt.Fprintf(stdout, "size:     %d\n", info.Size())
	if !info.ModTime().IsZero() {
		fmt.Fprintf(stdout, "modified: %s\n", info.ModTime().Format(time.RFC3339))
	}
	if u.Member == "." || info.Sys() == nil {
		return nil
	}

	entry, err := fsys.GetEntry(ctx, u.Archive, u.Member)
	if err != nil {
		return err
	}
	printEntry(stdout, &entry)
	return nil
}

func printEntry(w io.Writer, e *index.ArchiveEntry) {
	fmt.Fprintf(w, "method:   %s\n", e.Method)
	fmt.Fprintf(w, "packed:   %d\n", e.PackedSize)
	fmt.Fprintf(w, "offset:   %d\n", e.Offset)
	var attrs []string
	if e.Solid {
		attrs = append(attrs, "solid")
	}
	if e.Encrypted {
		attrs = append(attrs, "encrypted")
	}
	if len(attrs) > 0 {
		fmt.Fprintf(w, "flags:    %s\n", strings.Join(attrs, ","))
	}
	for i, p := range e.Parts {
		fmt.Fprintf(w, "part %d:   %s @%d +%d\n", i, p.Volume, p.DataOffset, p.Size)
	}
}

func runCat(ctx context.Context, fsys *rarfs.FS, args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("cat", flag.ContinueOnError)
	fset.SetOutput(stderr)
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return errors.New("usage: rarfs cat archive::member")
	}

	f, err := fsys.OpenContext(ctx, fset.Arg(0))
	if err != nil {
		return err
	}
	if _, err := io.Copy(stdout, f); err != nil {
		_ = f.Close() //nolint:errcheck // reporting the copy error
		return err
	}
	return f.Close()
}

func runExtract(ctx context.Context, fsys *rarfs.FS, args []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	fset := flag.NewFlagSet("extract", flag.ContinueOnError)
	fset.SetOutput(stderr)
	dest := fset.String("dest", ".", "destination directory")
	workers := fset.Int("workers", 2, "archives extracted concurrently")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() == 0 {
		return errors.New("usage: rarfs extract -dest dir archive...")
	}

	archives := fset.Args()
	var outMu sync.Mutex
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(max(*workers, 1))
	for _, archive := range archives {
		target := *dest
		if len(archives) > 1 {
			target = filepath.Join(*dest, archiveStem(archive))
		}
		p.Go(func(ctx context.Context) error {
			start := time.Now()
			if err := fsys.ExtractArchive(ctx, archive, target); err != nil {
				return err
			}
			logger.Debug("extract finished", "archive", archive, "path", target, "duration", time.Since(start))
			outMu.Lock()
			defer outMu.Unlock()
			fmt.Fprintf(stdout, "%s -> %s\n", archive, target)
			return nil
		})
	}
	return p.Wait()
}

// archiveStem strips the volume and .rar suffixes from an archive name.
func archiveStem(archive string) string {
	name := filepath.Base(archive)
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".rar") {
		name = name[:len(name)-len(".rar")]
		lower = lower[:len(lower)-len(".rar")]
	}
	if i := strings.LastIndex(lower, ".part"); i > 0 && strings.Trim(lower[i+len(".part"):], "0123456789") == "" {
		name = name[:i]
	}
	return name
}
