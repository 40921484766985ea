package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fieldnav/pkg/config"
	"fieldnav/pkg/model"
)

// RequestLogger receives one line per HTTP request. It discards until Init runs.
var RequestLogger = slog.New(slog.DiscardHandler)

var (
	eventLogMu   sync.Mutex
	eventLogPath string
)

// Init wires the server, request and mission event logs. Each file from a previous run is
// kept as <path>.old. An empty path disables that file; the server log still goes to stdout.
// The returned func closes the files.
func Init(cfg *config.LogConfig) (func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	serverFile, err := openLog(cfg.Server.Path)
	if err != nil {
		return nil, fmt.Errorf("server log: %w", err)
	}
	requestFile, err := openLog(cfg.Requests.Path)
	if err != nil {
		if serverFile != nil {
			serverFile.Close()
		}
		return nil, fmt.Errorf("request log: %w", err)
	}
	for _, f := range []*os.File{serverFile, requestFile} {
		if f != nil {
			files = append(files, f)
		}
	}

	level := ParseLevel(cfg.Server.Level)
	server := fanout{
		// The console and the log endpoint never show more than INFO.
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: max(level, slog.LevelInfo)}),
		slog.NewTextHandler(GlobalLogCapture, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}
	if serverFile != nil {
		server = append(server, slog.NewTextHandler(serverFile, &slog.HandlerOptions{
			Level:     level,
			AddSource: level == slog.LevelDebug,
		}))
	}
	slog.SetDefault(slog.New(server))

	RequestLogger = slog.New(slog.DiscardHandler)
	if requestFile != nil {
		RequestLogger = slog.New(slog.NewTextHandler(requestFile, &slog.HandlerOptions{
			Level: ParseLevel(cfg.Requests.Level),
		}))
	}

	if err := rotate(cfg.Events.Path); err != nil {
		closeAll()
		return nil, fmt.Errorf("event log: %w", err)
	}
	SetEventLogPath(cfg.Events.Path)
	EnableTrace = cfg.Trace

	return closeAll, nil
}

// openLog rotates path and opens a fresh file there. It returns nil for an empty path.
func openLog(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	if err := rotate(path); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

func rotate(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.Rename(path, path+".old"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a slog level. Unknown values are INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "TRACE":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

//nolint:gocritic // slog.Handler takes the record by value
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// SetEventLogPath sets the mission event log file. Empty disables it.
func SetEventLogPath(path string) {
	eventLogMu.Lock()
	defer eventLogMu.Unlock()
	eventLogPath = path
}

// LogEvent appends a mission event to the event log and the in-memory event capture.
func LogEvent(event *model.MissionEvent) {
	eventLogMu.Lock()
	defer eventLogMu.Unlock()

	if eventLogPath == "" {
		return
	}
	line := FormatEvent(event)
	_, _ = GlobalEventCapture.Write([]byte(line))

	f, err := os.OpenFile(eventLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("Failed to open event log", "path", eventLogPath, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		slog.Error("Failed to write event log", "path", eventLogPath, "error", err)
	}
}

// FormatEvent renders an event as one log line:
// [2006-01-02 15:04:05] [type] Title (mission) - Summary
func FormatEvent(event *model.MissionEvent) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("[%s] [%s] %s", ts.Format("2006-01-02 15:04:05"), event.Type, event.Title)
	if event.MissionID != "" {
		line += " (" + event.MissionID + ")"
	}
	if event.Summary != "" {
		line += " - " + event.Summary
	}
	return strings.TrimSpace(line)
}
