// Package logging provides the run logger.
//
// A Logger has two sinks. Diagnostics written with Log go to the output sink
// prefixed with "> " when verbose mode is on, and user-facing text written
// with Echo goes there unless silent mode is on. Every message is also
// recorded in an optional rotating log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// VerbosePrefix starts every diagnostic line on the output sink.
	VerbosePrefix = "> "

	timeLayout = "2006-01-02 15:04:05.000"
)

var (
	// Global run ID for the current execution
	runID     string
	runIDOnce sync.Once
)

// getRunID returns or creates the run ID for this execution
func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// Options configures a Logger.
type Options struct {
	// Out receives verbose diagnostics and echoed output. Defaults to os.Stdout.
	Out io.Writer

	// File is the path of the rotating log file. Empty disables file logging.
	File string

	Verbose bool
	Silent  bool
}

// sink is shared between a logger and the loggers derived from it.
type sink struct {
	out       io.Writer
	file      *lumberjack.Logger
	mu        sync.Mutex
	closeOnce sync.Once
}

// Logger writes diagnostics for one component of a run.
type Logger struct {
	sink      *sink
	zap       *zap.SugaredLogger
	runID     string
	component string
	logPath   string
	verbose   bool
	silent    bool
}

// New creates a logger for component.
func New(component string, opts Options) *Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	s := &sink{out: out}
	base := zap.NewNop()
	if opts.File != "" {
		s.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
		}
		base = zap.New(zapcore.NewCore(newEncoder(), zapcore.AddSync(s.file), zapcore.DebugLevel))
	}

	return &Logger{
		sink:      s,
		zap:       base.Sugar().Named(component).With("run", getRunID()),
		runID:     getRunID(),
		component: component,
		logPath:   opts.File,
		verbose:   opts.Verbose,
		silent:    opts.Silent,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New("nop", Options{Out: io.Discard, Silent: true})
}

// newEncoder formats entries as "[ts] [component] [LEVEL] msg".
func newEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "component",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + t.Format(timeLayout) + "]")
		},
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + l.CapitalString() + "]")
		},
		EncodeName: func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + name + "]")
		},
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// Named returns a logger for another component sharing the same sinks.
func (l *Logger) Named(component string) *Logger {
	child := *l
	child.component = component
	child.zap = l.zap.Named(component)
	return &child
}

// Log records a diagnostic message. In verbose mode it is also written to
// the output sink prefixed with "> ".
func (l *Logger) Log(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	l.zap.Info(message)

	if l.verbose {
		l.write(VerbosePrefix + message)
	}
}

// Echo writes msg to the output sink unless silent mode is on.
func (l *Logger) Echo(msg string) {
	l.zap.Debugw("echo", "bytes", len(msg))

	if !l.silent {
		l.write(msg)
	}
}

// Debugf logs a debug-level message to the log file
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.zap.Debugf(format, v...)
}

// Infof logs an info-level message to the log file
func (l *Logger) Infof(format string, v ...interface{}) {
	l.zap.Infof(format, v...)
}

// Warnf logs a warning-level message to the log file
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.zap.Warnf(format, v...)
}

// Errorf logs an error-level message to the log file
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.zap.Errorf(format, v...)
}

// Verbose reports whether diagnostics reach the output sink.
func (l *Logger) Verbose() bool {
	return l.verbose
}

// Silent reports whether echoed output is suppressed.
func (l *Logger) Silent() bool {
	return l.silent
}

// RunID returns the current run ID
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the path to the log file, empty when file logging is off
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close flushes and closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.sink.closeOnce.Do(func() {
		_ = l.zap.Sync()
		if l.sink.file != nil {
			err = l.sink.file.Close()
		}
	})
	return err
}

func (l *Logger) write(line string) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	fmt.Fprintln(l.sink.out, line)
}

// GetRunID returns the current global run ID
func GetRunID() string {
	return getRunID()
}
