package logger

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var Log *slog.Logger

// FileOptions controls rotation for "file:" sinks.
type FileOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type asyncWriter struct {
	ch chan []byte
}

func (a *asyncWriter) Write(p []byte) (n int, err error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case a.ch <- cp:
		return len(p), nil
	default:
		// drop if queue full to avoid blocking
		return len(p), nil
	}
}

var (
	mu        sync.Mutex
	logStopCh chan struct{}
	logWG     sync.WaitGroup
)

// ParseLevel maps debug/info/warn/error onto slog levels, defaulting to info.
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

// Init installs the global logger. sink is "stdout", "stderr" or
// "file:<path>"; an empty level or sink falls back to THREADSYNC_LOG_LEVEL
// and THREADSYNC_LOG_SINK.
func Init(level, sink string, fo FileOptions) {
	if strings.TrimSpace(level) == "" {
		level = os.Getenv("THREADSYNC_LOG_LEVEL")
	}
	if strings.TrimSpace(sink) == "" {
		sink = os.Getenv("THREADSYNC_LOG_SINK")
	}

	mu.Lock()
	defer mu.Unlock()
	stopLocked()

	out := openSink(sink, fo)
	logCh := make(chan []byte, 10000)
	logStopCh = make(chan struct{})
	stop := logStopCh
	aw := &asyncWriter{ch: logCh}
	Log = slog.New(slog.NewTextHandler(aw, &slog.HandlerOptions{Level: ParseLevel(level)}))

	logWG.Add(1)
	go func() {
		defer logWG.Done()
		buf := bufio.NewWriterSize(out, 8192)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case b := <-logCh:
				_, _ = buf.Write(b)
			case <-ticker.C:
				_ = buf.Flush()
			case <-stop:
				// drain what is queued before closing
				for {
					select {
					case b := <-logCh:
						_, _ = buf.Write(b)
						continue
					default:
					}
					break
				}
				_ = buf.Flush()
				if c, ok := out.(io.Closer); ok && out != os.Stdout && out != os.Stderr {
					_ = c.Close()
				}
				return
			}
		}
	}()
}

func openSink(sink string, fo FileOptions) io.Writer {
	switch {
	case strings.HasPrefix(sink, "file:"):
		path := strings.TrimPrefix(sink, "file:")
		if path == "" {
			fmt.Fprintln(os.Stderr, "empty log file path, logging to stdout")
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   path,
			MaxSize:    fo.MaxSizeMB,
			MaxBackups: fo.MaxBackups,
			MaxAge:     fo.MaxAgeDays,
		}
	case sink == "stderr":
		return os.Stderr
	default:
		return os.Stdout
	}
}

// UseWriter installs a synchronous logger writing to w. Tests use it to
// capture output.
func UseWriter(w io.Writer, level string) {
	mu.Lock()
	defer mu.Unlock()
	stopLocked()
	Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// Sync flushes any buffered logs and stops the writer goroutine.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	stopLocked()
}

func stopLocked() {
	if logStopCh != nil {
		close(logStopCh)
		logWG.Wait()
		logStopCh = nil
	}
}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}

// LogConfigSummary prints a human-friendly block of startup settings to
// stdout, independent of the configured sink.
func LogConfigSummary(title string, items []string) {
	if len(items) == 0 {
		return
	}
	human := strings.ReplaceAll(title, "_", " ")
	if human != "" {
		human = strings.ToUpper(human[:1]) + human[1:]
	}
	header := "== " + human + " "
	const width = 60
	if len(header) < width {
		header = header + strings.Repeat("=", width-len(header))
	}
	fmt.Fprintln(os.Stdout, header)
	for _, it := range items {
		fmt.Fprintln(os.Stdout, "- "+it)
	}
	fmt.Fprintln(os.Stdout)
}
