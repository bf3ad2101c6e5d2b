package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a text logger writing to out.
func New(level string, out io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Shorten time format
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})
	return slog.New(handler)
}

// Init installs the default logger, writing to stderr and, when logFile is
// set, appending to that file too. The returned func closes the file.
func Init(level, logFile string) (*slog.Logger, func() error, error) {
	writers := []io.Writer{os.Stderr}
	closeFn := func() error { return nil }

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, f)
		closeFn = f.Close
	}

	log := New(level, io.MultiWriter(writers...))
	slog.SetDefault(log)
	return log, closeFn, nil
}
