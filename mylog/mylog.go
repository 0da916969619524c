package mylog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelFatal Level = -2
	LevelError       = iota
	LevelInfo
	LevelTrace
	LevelDebug
)

var levelStrings = map[string]Level{
	"FATAL": LevelFatal,
	"ERROR": LevelError,
	"INFO":  LevelInfo,
	"TRACE": LevelTrace,
	"DEBUG": LevelDebug,
}

// Trace sits between Info and Debug, the most verbose level is zerolog's trace level.
var zerologLevels = map[Level]zerolog.Level{
	LevelFatal: zerolog.FatalLevel,
	LevelError: zerolog.ErrorLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelTrace: zerolog.DebugLevel,
	LevelDebug: zerolog.TraceLevel,
}

func init() {
	// Levels are filtered per logger
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}

// MyLog is a leveled logger writing structured entries
type MyLog struct {
	logLevel Level
	zl       zerolog.Logger
}

// ParseLevel gives the level named by s, case insensitive
func ParseLevel(s string) (Level, error) {
	level, ok := levelStrings[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return LevelInfo, fmt.Errorf("invalid log level '%s'", s)
	}
	return level, nil
}

// NewLog return a MyLog writing JSON lines on w
func NewLog(lvl string, w io.Writer) (*MyLog, error) {
	level, err := ParseLevel(lvl)
	if err != nil {
		return nil, err
	}
	return newLog(level, w), nil
}

// NewConsoleLog return a MyLog writing human readable lines on w
func NewConsoleLog(lvl string, w io.Writer) (*MyLog, error) {
	level, err := ParseLevel(lvl)
	if err != nil {
		return nil, err
	}
	return newLog(level, zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}), nil
}

func newLog(level Level, w io.Writer) *MyLog {
	return &MyLog{
		logLevel: level,
		zl:       zerolog.New(w).Level(zerologLevels[level]).With().Timestamp().Logger(),
	}
}

// Nop returns a logger that discards everything
func Nop() *MyLog {
	return &MyLog{logLevel: LevelFatal, zl: zerolog.Nop()}
}

// Component returns a child logger annotated with the component name
func (l *MyLog) Component(name string) *MyLog {
	return l.With("component", name)
}

// With returns a child logger annotated with the given field
func (l *MyLog) With(key, value string) *MyLog {
	if l == nil {
		return nil
	}
	return &MyLog{
		logLevel: l.logLevel,
		zl:       l.zl.With().Str(key, value).Logger(),
	}
}

// Zerolog exposes the underlying logger
func (l *MyLog) Zerolog() zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return l.zl
}

// Fatal prepare the output of FATAL message
func (l *MyLog) Fatal() logcontext {
	return logcontext{mylog: l, lvl: LevelFatal}
}

// Error prepare the output of ERROR message
func (l *MyLog) Error() logcontext {
	return logcontext{mylog: l, lvl: LevelError}
}

// Info prepare the output of INFO message
func (l *MyLog) Info() logcontext {
	return logcontext{mylog: l, lvl: LevelInfo}
}

// Trace prepare the output of TRACE message
func (l *MyLog) Trace() logcontext {
	return logcontext{mylog: l, lvl: LevelTrace}
}

// Debug prepare the output of DEBUG message
func (l *MyLog) Debug() logcontext {
	return logcontext{mylog: l, lvl: LevelDebug}
}

// IsDebug return true if log level is DEBUG
func (l *MyLog) IsDebug() bool {
	if l == nil {
		return false
	}
	return l.logLevel >= LevelDebug
}

// logcontext get the level of current message
type logcontext struct {
	mylog *MyLog
	lvl   Level
	err   error
}

// Err attaches an error to the message
func (c logcontext) Err(err error) logcontext {
	c.err = err
	return c
}

// Printf writes the message when the level is enabled.
// A FATAL message exits the program.
// A nil logger discards the message.
func (c logcontext) Printf(format string, args ...interface{}) {
	if c.mylog == nil {
		return
	}
	e := c.mylog.zl.WithLevel(zerologLevels[c.lvl])
	if e == nil {
		return
	}
	if c.err != nil {
		e = e.Err(c.err)
	}
	e.Msgf(format, args...)
	if c.lvl == LevelFatal {
		os.Exit(1)
	}
}
