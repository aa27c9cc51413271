package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const timeFormat = "2006-01-02 15:04:05"

// Config selects the log sink.
type Config struct {
	// Level is DEBUG, INFO, WARN or ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error" json:"level,omitempty"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json" json:"format,omitempty"`

	// Output is "stdout", "stderr" or a file path. Files are rotated.
	Output string `mapstructure:"output" json:"output,omitempty"`

	// Rotation settings, used only for file outputs.
	MaxSizeMB  int  `mapstructure:"max_size_mb" validate:"min=0" json:"max_size_mb,omitempty"`
	MaxBackups int  `mapstructure:"max_backups" validate:"min=0" json:"max_backups,omitempty"`
	MaxAgeDays int  `mapstructure:"max_age_days" validate:"min=0" json:"max_age_days,omitempty"`
	Compress   bool `mapstructure:"compress" json:"compress,omitempty"`
}

type sink struct {
	out    io.Writer
	closer io.Closer
	json   bool
	labels map[Level]string
}

var (
	currentLevel atomic.Int32
	mu           sync.Mutex
	current      = plainSink(os.Stdout)
)

func init() {
	currentLevel.Store(int32(LevelInfo))
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel.Store(int32(LevelDebug))
	case "INFO":
		currentLevel.Store(int32(LevelInfo))
	case "WARN":
		currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(LevelError))
	}
}

// GetLevel returns the active level.
func GetLevel() Level {
	return Level(currentLevel.Load())
}

// Configure replaces the sink and level. The previous file sink, if any,
// is closed.
func Configure(cfg Config) error {
	var s *sink

	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		s = terminalSink(os.Stdout)
	case "stderr":
		s = terminalSink(os.Stderr)
	default:
		f := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		s = plainSink(f)
		s.closer = f
	}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
	case "json":
		s.json = true
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}

	swap(s)
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	return nil
}

// SetOutput writes uncolored text to w.
func SetOutput(w io.Writer) {
	swap(plainSink(w))
}

// SetJSONOutput writes JSON lines to w.
func SetJSONOutput(w io.Writer) {
	s := plainSink(w)
	s.json = true
	swap(s)
}

// Close flushes and closes a file sink and falls back to stdout.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	var err error
	if current.closer != nil {
		err = current.closer.Close()
	}
	current = plainSink(os.Stdout)
	return err
}

func swap(s *sink) {
	mu.Lock()
	prev := current
	current = s
	mu.Unlock()

	if prev.closer != nil {
		_ = prev.closer.Close()
	}
}

func plainSink(w io.Writer) *sink {
	labels := make(map[Level]string, 4)
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		labels[l] = l.String()
	}
	return &sink{out: w, labels: labels}
}

// terminalSink colors level labels unless color output is disabled
// (NO_COLOR, or stdout is not a terminal).
func terminalSink(f *os.File) *sink {
	s := plainSink(f)
	if color.NoColor {
		return s
	}

	palette := map[Level]*color.Color{
		LevelDebug: color.New(color.FgHiBlack),
		LevelInfo:  color.New(color.FgCyan),
		LevelWarn:  color.New(color.FgYellow),
		LevelError: color.New(color.FgRed, color.Bold),
	}
	for l, c := range palette {
		s.labels[l] = c.Sprint(l.String())
	}
	return s
}

type entry struct {
	Time  string `json:"time"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func log(level Level, format string, v ...any) {
	if level < GetLevel() {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(format, v...)

	mu.Lock()
	defer mu.Unlock()

	if current.json {
		line, _ := json.Marshal(entry{Time: now.Format(time.RFC3339), Level: level.String(), Msg: message})
		_, _ = fmt.Fprintf(current.out, "%s\n", line)
		return
	}
	_, _ = fmt.Fprintf(current.out, "[%s] [%s] %s\n", now.Format(timeFormat), current.labels[level], message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
