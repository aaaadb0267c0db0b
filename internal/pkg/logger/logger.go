package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ErrorFile       = "error.log"
	CombinedFile    = "combined.log"
	defaultFilePerm = 0o644
	defaultDirPerm  = 0o755
)

// Options controls where and how much is logged.
type Options struct {
	// Level is a zap level name (debug, info, warn, error).
	Level string
	// Dir receives error.log and combined.log. Empty disables file output.
	Dir string
	// Console mirrors every entry to stdout in a human readable form.
	Console bool
}

// New builds the process logger: JSON lines into <Dir>/error.log (errors only) and
// <Dir>/combined.log (everything at Level), plus a colored console when requested.
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	atomic := zap.NewAtomicLevelAt(level)

	cores := make([]zapcore.Core, 0, 3)
	if opts.Console {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), atomic))
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, defaultDirPerm); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.TimeKey = "timestamp"
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder := zapcore.NewJSONEncoder(fileCfg)

		errorLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.ErrorLevel && atomic.Enabled(l)
		})
		cores = append(cores,
			zapcore.NewCore(encoder, zapcore.AddSync(newFileWriter(filepath.Join(opts.Dir, ErrorFile))), errorLevel),
			zapcore.NewCore(encoder, zapcore.AddSync(newFileWriter(filepath.Join(opts.Dir, CombinedFile))), atomic),
		)
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	_ = zap.RedirectStdLog(logger)
	return logger, nil
}

// fileWriter appends to a log file, reopening it per write so external rotation
// (logrotate copytruncate or move) never leaves the process writing to a stale inode.
type fileWriter struct {
	mu   sync.Mutex
	path string
}

func newFileWriter(path string) *fileWriter {
	return &fileWriter{path: path}
}

func (w *fileWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return 0, err
	}
	n, writeErr := file.Write(p)
	closeErr := file.Close()
	if writeErr != nil {
		return n, writeErr
	}
	return n, closeErr
}

func (w *fileWriter) Sync() error { return nil }
