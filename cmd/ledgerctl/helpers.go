package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"ledgerbook/internal/cli"
	"ledgerbook/internal/config"
	"ledgerbook/internal/core"
	applog "ledgerbook/internal/log"
)

type session struct {
	engine *cli.Engine
	cfg    *config.Config
	close  func()
}

// openSession loads the environment config and opens the store. The
// caller must call close.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := cli.LoadConfig((*config.Config).Validate)
	if err != nil {
		return nil, err
	}
	cli.SetupLoggerTo(cfg, applog.ComponentCLI, os.Stderr)
	res, err := cli.OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &session{
		engine: cli.NewEngine(res.Store, cfg),
		cfg:    cfg,
		close: func() {
			_ = res.Cleanup()
		},
	}, nil
}

// openOutput returns stdout-like w when path is empty or "-".
func openOutput(path string, w io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return w, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, f.Close, nil
}

// parseRangeFlags turns --from/--to into a range; nil when both are empty.
// A bare --to date covers the whole day.
func parseRangeFlags(from, to string, loc *time.Location) (*core.DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	r := core.DateRange{End: time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)}
	if from != "" {
		t, err := time.ParseInLocation("2006-01-02", from, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid --from %q: want YYYY-MM-DD", from)
		}
		r.Start = t
	}
	if to != "" {
		t, err := time.ParseInLocation("2006-01-02", to, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid --to %q: want YYYY-MM-DD", to)
		}
		r.End = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if r.End.Before(r.Start) {
		return nil, fmt.Errorf("--to is before --from")
	}
	return &r, nil
}
