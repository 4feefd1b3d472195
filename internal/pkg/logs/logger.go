package logs

import (
	"fmt"
	"io"
	"runtime"

	"github.com/labstack/gommon/log"
)

const defaultHeader = `{"time":"${time_rfc3339_nano}","level":"${level}"}`

// Logger is a JSON logger with structured fields.
//
// It satisfies echo.Logger, so the same instance is used both for HTTP
// request logs and for background checks and simulations.
type Logger struct {
	*log.Logger
	fields []any
}

// NewLogger creates a new logger with the default JSON header.
func NewLogger() *Logger {
	logger := &Logger{Logger: log.New("")}
	logger.SetHeader(defaultHeader)
	return logger
}

// NewWriterLogger creates logger that writes into specified writer.
func NewWriterLogger(w io.Writer, level log.Lvl) *Logger {
	logger := NewLogger()
	logger.SetOutput(w)
	logger.SetLevel(level)
	return logger
}

// With returns logger that appends specified fields to every line.
func (l *Logger) With(args ...any) *Logger {
	fields := make([]any, 0, len(args)+len(l.fields))
	fields = append(fields, args...)
	fields = append(fields, l.fields...)
	return &Logger{Logger: l.Logger, fields: fields}
}

func (l *Logger) Debug(args ...any) {
	l.logj(log.DEBUG, makeLogLine(args...))
}

func (l *Logger) Info(args ...any) {
	l.logj(log.INFO, makeLogLine(args...))
}

func (l *Logger) Warn(args ...any) {
	l.logj(log.WARN, makeLogLine(args...))
}

func (l *Logger) Error(args ...any) {
	l.logj(log.ERROR, makeLogLine(args...))
}

func (l *Logger) Fatal(args ...any) {
	l.logj(log.OFF, makeLogLine(args...))
}

func (l *Logger) Debugf(format string, args ...any) {
	l.logj(log.DEBUG, makeLogLine(fmt.Sprintf(format, args...)))
}

func (l *Logger) Infof(format string, args ...any) {
	l.logj(log.INFO, makeLogLine(fmt.Sprintf(format, args...)))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.logj(log.WARN, makeLogLine(fmt.Sprintf(format, args...)))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.logj(log.ERROR, makeLogLine(fmt.Sprintf(format, args...)))
}

func (l *Logger) Fatalf(format string, args ...any) {
	l.logj(log.OFF, makeLogLine(fmt.Sprintf(format, args...)))
}

func (l *Logger) Debugj(j log.JSON) {
	l.logj(log.DEBUG, j)
}

func (l *Logger) Infoj(j log.JSON) {
	l.logj(log.INFO, j)
}

func (l *Logger) Warnj(j log.JSON) {
	l.logj(log.WARN, j)
}

func (l *Logger) Errorj(j log.JSON) {
	l.logj(log.ERROR, j)
}

func (l *Logger) Fatalj(j log.JSON) {
	l.logj(log.OFF, j)
}

// logj enriches line with caller and logger fields.
//
// Level OFF is used as a marker for fatal lines.
func (l *Logger) logj(level log.Lvl, j log.JSON) {
	_, file, line, _ := runtime.Caller(2)
	j["file"] = fmt.Sprintf("%s:%d", file, line)
	setLogLine(j, l.fields...)
	switch level {
	case log.DEBUG:
		l.Logger.Debugj(j)
	case log.INFO:
		l.Logger.Infoj(j)
	case log.WARN:
		l.Logger.Warnj(j)
	case log.ERROR:
		l.Logger.Errorj(j)
	default:
		l.Logger.Fatalj(j)
	}
}

type LogField struct {
	Name  string
	Value any
}

func Any(name string, value any) LogField {
	return LogField{Name: name, Value: value}
}

func makeLogLine(args ...any) log.JSON {
	j := log.JSON{}
	setLogLine(j, args...)
	return j
}

func setLogLine(j log.JSON, args ...any) {
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
		case string:
			j["message"] = v
		case LogField:
			j[v.Name] = v.Value
		case error:
			j["error"] = v.Error()
		case fmt.Stringer:
			j["message"] = v.String()
		default:
			panic(fmt.Errorf("unsupported type: %T", arg))
		}
	}
}
