// Package debug sets up the console logger used by the command line.
package debug

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

func hackGetCallerSkipFrameCount(e *zerolog.Event) int {
	// skipFrame is unexported, read it through reflection
	v := reflect.ValueOf(e).Elem()
	field := v.FieldByName("skipFrame")

	if field.IsValid() && field.CanAddr() {
		return int(field.Int())
	}

	return 0
}

type CustomTimeHook struct {
	WithColor bool
	Format    string
}

func (t CustomTimeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	if t.Format == "" {
		// millisecond precision with no timezone
		e.Str("time", time.Now().Format("2006-01-02T15:04:05.0000Z"))
	} else {
		e.Str("time", time.Now().Format(t.Format))
	}
}

type CustomCallerHook struct {
	WithColor bool
}

func (c CustomCallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	pc, file, line, ok := runtime.Caller(hackGetCallerSkipFrameCount(e) + 3)
	if !ok {
		return
	}

	pkg, _ := GetPackageAndFuncFromFuncName(runtime.FuncForPC(pc).Name())

	e.Str("caller", FormatCaller(pkg, file, line, c.WithColor))
}

func GetPackageAndFuncFromFuncName(pc string) (pkg, function string) {
	funcName := pc
	lastSlash := strings.LastIndexByte(funcName, '/')
	if lastSlash < 0 {
		lastSlash = 0
	}

	firstDot := strings.IndexByte(funcName[lastSlash:], '.') + lastSlash

	pkg = funcName[:firstDot]
	fname := funcName[firstDot+1:]

	if strings.Contains(pkg, ".(") {
		splt := strings.Split(pkg, ".(")
		pkg = splt[0]
		fname = "(" + splt[1] + "." + fname
	}

	return pkg, fname
}

func FormatCaller(pkg, path string, number int, colorize bool) string {
	p := FileNameOfPath(path)
	if colorize {
		p = color.New(color.Bold).Sprint(p)
		num := color.New(color.FgHiRed, color.Bold).Sprintf("%d", number)
		sep := color.New(color.Faint).Sprint(":")

		return fmt.Sprintf("%s%s%s%s%s", pkg, sep, p, sep, num)
	}

	return fmt.Sprintf("%s:%s:%d", pkg, p, number)
}

func FileNameOfPath(path string) string {
	tot := strings.Split(path, "/")
	if len(tot) > 1 {
		return tot[len(tot)-1]
	}

	return path
}

type loggerOptions struct {
	level     zerolog.Level
	color     bool
	callers   bool
	json      bool
	timestamp string
}

type LoggerOption func(*loggerOptions)

func WithLevel(level zerolog.Level) LoggerOption {
	return func(o *loggerOptions) {
		o.level = level
	}
}

// WithColor forces colour on or off. By default colour follows whether the
// terminal supports it.
func WithColor(enabled bool) LoggerOption {
	return func(o *loggerOptions) {
		o.color = enabled
	}
}

// WithCallers adds the calling package, file and line to every event.
func WithCallers() LoggerOption {
	return func(o *loggerOptions) {
		o.callers = true
	}
}

// WithJSON writes plain json events instead of the console format.
func WithJSON() LoggerOption {
	return func(o *loggerOptions) {
		o.json = true
	}
}

func WithTimeFormat(format string) LoggerOption {
	return func(o *loggerOptions) {
		o.timestamp = format
	}
}

// NewLogger builds the logger the commands write through. Events below the
// level are dropped.
func NewLogger(w io.Writer, opts ...LoggerOption) zerolog.Logger {
	o := &loggerOptions{
		level: zerolog.InfoLevel,
		color: !color.NoColor,
	}
	for _, opt := range opts {
		opt(o)
	}

	out := w
	if !o.json {
		out = zerolog.ConsoleWriter{
			Out:           w,
			NoColor:       !o.color,
			PartsOrder:    []string{"time", "level", "caller", "message"},
			FieldsExclude: []string{"time", "caller"},
			FormatTimestamp: func(i interface{}) string {
				s, _ := i.(string)
				if o.color {
					return color.New(color.Faint).Sprint(s)
				}
				return s
			},
		}
	}

	logger := zerolog.New(out).Level(o.level).Hook(CustomTimeHook{WithColor: o.color, Format: o.timestamp})
	if o.callers {
		logger = logger.Hook(CustomCallerHook{WithColor: o.color && !o.json})
	}
	return logger
}

// WithLogger returns ctx carrying a logger built by NewLogger.
func WithLogger(ctx context.Context, w io.Writer, opts ...LoggerOption) context.Context {
	return NewLogger(w, opts...).WithContext(ctx)
}
