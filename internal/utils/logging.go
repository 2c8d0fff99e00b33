package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// LogOptions configure the process-wide logger of the command line tools.
type LogOptions struct {
	Level   slog.Level
	LogFile string // also log plain text here when set
}

// SetupLogging installs a colored terminal handler and, optionally, a file
// handler as the default slog logger. The returned closer flushes the file.
func SetupLogging(stdout *os.File, opts LogOptions) (io.Closer, error) {
	var handlers []slog.Handler
	handlers = append(handlers, tint.NewHandler(stdout, &tint.Options{
		Level:      opts.Level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(stdout.Fd()),
	}))

	closer := io.Closer(nopCloser{})
	if opts.LogFile != "" {
		if err := EnsureParent(opts.LogFile); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		interceptor := NewLogInterceptor(file)
		handlers = append(handlers, slog.NewTextHandler(interceptor, &slog.HandlerOptions{
			Level: slog.LevelDebug,
			// time is added by the interceptor
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && len(groups) == 0 {
					return slog.Attr{}
				}
				return a
			},
		}))
		closer = closeAll{interceptor, file}
	}

	slog.SetDefault(slog.New(NewMultiLogHandler(handlers...)))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type closeAll []io.Closer

func (c closeAll) Close() error {
	var first error
	for _, closer := range c {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
