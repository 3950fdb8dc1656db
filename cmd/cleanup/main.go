// Package main deletes completed and failed ThreatLens jobs older than a
// retention period and exits.
//
// Usage:
//
//	cleanup [-days N]
//	cleanup N
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/kiranshivaraju/threatlens/internal/jobs"
	"github.com/kiranshivaraju/threatlens/internal/logging"
	"github.com/kiranshivaraju/threatlens/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(os.Args[1:]); err != nil {
		slog.Error("cleanup failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.LoadMaintenance()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logging.New(cfg.Log, os.Stdout))

	days, err := parseDays(args, cfg.Cleanup.RetentionDays, io.Discard)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	n, err := jobs.NewService(st, nil, nil).DeleteOlderThan(ctx, days)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d jobs older than %d days\n", n, days)
	return nil
}

// parseDays reads the retention period from -days or a single positional
// argument, falling back to def.
func parseDays(args []string, def int, output io.Writer) (int, error) {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	fs.SetOutput(output)
	days := fs.Int("days", def, "delete finished jobs created more than this many days ago")
	if err := fs.Parse(args); err != nil {
		return 0, fmt.Errorf("parse arguments: %w", err)
	}

	switch fs.NArg() {
	case 0:
	case 1:
		n, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			return 0, fmt.Errorf("days must be an integer, got %q", fs.Arg(0))
		}
		*days = n
	default:
		return 0, fmt.Errorf("expected at most one positional argument, got %d", fs.NArg())
	}

	if *days < 0 {
		return 0, fmt.Errorf("days must not be negative, got %d", *days)
	}
	return *days, nil
}
