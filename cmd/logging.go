package cmd

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jkyin/quotio/internal/core"
)

// setupLogging installs a tint handler on stderr. One -v raises the level
// to debug.
func setupLogging(verbose int) {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(verbose),
		TimeFormat: time.DateTime,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	})
	slog.SetDefault(slog.New(handler))
}

// setupServeLogging mirrors log output into a rotated file under the base
// directory, in addition to stderr. Serve mode runs unattended, stderr
// alone disappears with the desktop shell that spawned it.
func setupServeLogging(verbose int) {
	logPath := core.LogFilePath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		slog.Warn("Failed to create log directory, keeping stderr only", "error", err)
		return
	}

	fileWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}
	multiWriter := io.MultiWriter(os.Stderr, fileWriter)

	handler := tint.NewHandler(multiWriter, &tint.Options{
		Level:      logLevel(verbose),
		TimeFormat: time.DateTime,
		NoColor:    true,
	})
	slog.SetDefault(slog.New(handler))
}

func logLevel(verbose int) slog.Level {
	if verbose > 0 {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
