package util

import (
	"fmt"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by the pterm default logger.
// All output goes to stderr by default (pterm's default).

func LogDebug(format string, args ...interface{})   { std.Debug(format, args...) }
func LogInfo(format string, args ...interface{})    { std.Info(format, args...) }
func LogWarning(format string, args ...interface{}) { std.Warning(format, args...) }
func LogError(format string, args ...interface{})   { std.Error(format, args...) }

// LogSuccess is LogInfo with a success prefix, used for user-facing milestones.
func LogSuccess(format string, args ...interface{}) {
	pterm.Success.Println(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}


// ---------------------------------------------------------------------------
// Contextual logger
// ---------------------------------------------------------------------------

// Logger attaches a fixed set of key/value fields to every line it writes.
// The zero value logs without fields.
type Logger struct {
	fields []any
}

var std Logger

// With returns a logger carrying the given key/value pairs, e.g.
// util.With("peer", id).Info("offer sent").
func With(kv ...any) Logger {
	return std.With(kv...)
}

// With returns a copy of l extended with kv.
func (l Logger) With(kv ...any) Logger {
	fields := make([]any, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return Logger{fields: fields}
}

func (l Logger) args() [][]pterm.LoggerArgument {
	if len(l.fields) == 0 {
		return nil
	}
	return [][]pterm.LoggerArgument{pterm.DefaultLogger.Args(l.fields...)}
}

func (l Logger) Debug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...), l.args()...)
}

func (l Logger) Info(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...), l.args()...)
}

func (l Logger) Warning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...), l.args()...)
}

func (l Logger) Error(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...), l.args()...)
}
