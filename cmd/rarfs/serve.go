package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/meigma/rarfs"
	rarhttp "github.com/meigma/rarfs/http"
)

func runServe(ctx context.Context, fsys *rarfs.FS, args []string, stderr io.Writer, logger *slog.Logger) error {
	fset := flag.NewFlagSet("serve", flag.ContinueOnError)
	fset.SetOutput(stderr)
	addr := fset.String("addr", ":8080", "listen address")
	sweep := fset.Duration("sweep", 10*time.Minute, "interval between cache sweeps, 0 to disable")
	if err := fset.Parse(args); err != nil {
		return err
	}

	if *sweep > 0 {
		scheduler, err := startSweeper(ctx, fsys, *sweep, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := scheduler.Shutdown(); err != nil {
				logger.Warn("stopping scheduler failed", "error", err)
			}
		}()
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return err
	}
	return serve(ctx, ln, rarhttp.NewHandler(fsys, rarhttp.WithLogger(logger)), logger)
}

// startSweeper schedules Manager.Sweep every interval.
func startSweeper(ctx context.Context, fsys *rarfs.FS, interval time.Duration, logger *slog.Logger) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			freed, err := fsys.Manager().Sweep(ctx)
			if err != nil {
				logger.Warn("cache sweep failed", "error", err)
			}
			used, files, err := fsys.Manager().Usage()
			if err != nil {
				logger.Warn("measuring cache failed", "error", err)
				return
			}
			logger.Info("cache swept", "freed", freed, "bytes", used, "files", files)
		}),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown() //nolint:errcheck // reporting the job error
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	scheduler.Start()
	return scheduler, nil
}

func serve(ctx context.Context, ln net.Listener, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
