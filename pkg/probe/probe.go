// Package probe runs startup checks and decides whether the process may continue.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const defaultTimeout = 5 * time.Second

// CheckFunc returns nil when the check passes.
type CheckFunc func(ctx context.Context) error

// Probe is a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool          // a failure stops startup
	Timeout  time.Duration // 0 uses the default
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Passed reports whether the check succeeded.
func (r Result) Passed() bool { return r.Error == nil }

// Run executes the probes in order, each under its own timeout.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))
	for i, p := range probes {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := p.Check(checkCtx)
		cancel()

		results[i] = Result{Probe: p, Error: err, Duration: time.Since(start)}
	}
	return results
}

// AnalyzeResults logs a summary and joins the errors of failed critical probes.
func AnalyzeResults(results []Result) error {
	var critical []error

	slog.Info("Startup Checks Summary")
	for _, r := range results {
		status := "PASS"
		if !r.Passed() {
			status = "FAIL"
		}
		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		switch {
		case r.Passed():
			slog.Info(msg)
		case r.Probe.Critical:
			slog.Error(msg, "error", r.Error)
			critical = append(critical, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		default:
			slog.Warn(msg, "error", r.Error)
		}
	}
	return errors.Join(critical...)
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Database checks that the archive database answers.
func Database(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		return nil
	}
}

// FileReadable checks that path is a regular file that can be opened.
func FileReadable(path string) CheckFunc {
	return func(context.Context) error {
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		return f.Close()
	}
}

// DirWritable creates dir if needed and checks that a file can be written into it.
func DirWritable(dir string) CheckFunc {
	return func(context.Context) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return err
		}
		name := f.Name()
		f.Close()
		return os.Remove(filepath.Clean(name))
	}
}
