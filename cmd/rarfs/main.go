// Command rarfs lists, reads, extracts and serves RAR archive members.
//
// Usage:
//
//	rarfs [global flags] ls [-r] archive [prefix]
//	rarfs [global flags] stat archive::member
//	rarfs [global flags] cat archive::member[?flags=]
//	rarfs [global flags] extract -dest dir archive...
//	rarfs [global flags] serve [-addr :8080] [-sweep 10m]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/meigma/rarfs"
	"github.com/meigma/rarfs/cache"
)

type config struct {
	cacheDir    string
	snapshotDir string
	password    string
	flags       string
	logFile     string
	logLevel    string
	logMaxSize  int
	progress    bool
}

var errUsage = errors.New("usage: rarfs [flags] ls|stat|cat|extract|serve ...")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "rarfs:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cfg config
	fset := flag.NewFlagSet("rarfs", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.StringVar(&cfg.cacheDir, "cache-dir", "", "directory for extracted members (default: $TMPDIR/rarfs)")
	fset.StringVar(&cfg.snapshotDir, "snapshot-dir", "", "persist archive listings in this directory")
	fset.StringVar(&cfg.password, "password", "", "archive password")
	fset.StringVar(&cfg.flags, "flags", "", "default open flags: overwrite, autodelete, nocache, stream")
	fset.StringVar(&cfg.logFile, "log-file", "", "write logs to a rotating file instead of stderr")
	fset.IntVar(&cfg.logMaxSize, "log-max-size", 50, "log file size in megabytes before rotation")
	fset.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fset.BoolVar(&cfg.progress, "progress", false, "report extraction progress on stderr")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() == 0 {
		return errUsage
	}

	logger, closeLog, err := newLogger(&cfg, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	opts, err := fsOptions(&cfg, logger, stderr)
	if err != nil {
		return err
	}
	fsys, err := rarfs.New(opts...)
	if err != nil {
		return err
	}

	cmd, rest := fset.Arg(0), fset.Args()[1:]
	switch cmd {
	case "ls":
		return runLs(ctx, fsys, rest, stdout, stderr)
	case "stat":
		return runStat(ctx, fsys, rest, stdout, stderr)
	case "cat":
		return runCat(ctx, fsys, rest, stdout, stderr)
	case "extract":
		return runExtract(ctx, fsys, rest, stdout, stderr, logger)
	case "serve":
		return runServe(ctx, fsys, rest, stderr, logger)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func newLogger(cfg *config, stderr io.Writer) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.logLevel)); err != nil {
		return nil, nil, fmt.Errorf("log-level: %w", err)
	}
	hopts := &slog.HandlerOptions{Level: level}

	if cfg.logFile == "" {
		return slog.New(slog.NewTextHandler(stderr, hopts)), func() {}, nil
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.logFile,
		MaxSize:    cfg.logMaxSize,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	closeLog := func() {
		_ = lj.Close() //nolint:errcheck // exiting
	}
	return slog.New(slog.NewJSONHandler(lj, hopts)), closeLog, nil
}

func fsOptions(cfg *config, logger *slog.Logger, stderr io.Writer) ([]rarfs.Option, error) {
	opts := []rarfs.Option{rarfs.WithLogger(logger)}
	if cfg.cacheDir != "" {
		opts = append(opts, rarfs.WithCacheDir(cfg.cacheDir))
	}
	if cfg.snapshotDir != "" {
		opts = append(opts, rarfs.WithSnapshotDir(cfg.snapshotDir))
	}
	if cfg.password != "" {
		opts = append(opts, rarfs.WithPassword(cfg.password))
	}
	if cfg.flags != "" {
		flags, err := cache.ParseFlags(cfg.flags)
		if err != nil {
			return nil, fmt.Errorf("flags: %w", err)
		}
		opts = append(opts, rarfs.WithDefaultFlags(flags))
	}
	if cfg.progress {
		opts = append(opts, rarfs.WithCacheOptions(cache.WithProgress(progressPrinter(stderr))))
	}
	return opts, nil
}

// progressPrinter prints one line per stage change or ten percent step.
func progressPrinter(w io.Writer) cache.ProgressFunc {
	var (
		mu   sync.Mutex
		last = make(map[string]int)
	)
	return func(e cache.ProgressEvent) bool {
		mu.Lock()
		defer mu.Unlock()

		key := e.Archive + "\x00" + e.Member
		step := int(e.Stage)*100 + e.Percent()/10
		if prev, ok := last[key]; ok && prev == step {
			return true
		}
		last[key] = step
		if e.Stage == cache.StageDone {
			delete(last, key)
		}

		name := e.Archive
		if e.Member != "" {
			name = rarfs.Join(e.Archive, e.Member)
		}
		fmt.Fprintf(w, "%-10s %3d%% %s\n", e.Stage, e.Percent(), name)
		return true
	}
}
