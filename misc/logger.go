package misc

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// ShortTimeWriter 在每行日志前追加短时间戳
// 格式：YYYYMMDD-HHMMSS(.mmm)
type ShortTimeWriter struct {
	w         io.Writer
	withMilli bool
}

func NewShortTimeWriter(w io.Writer, withMilli bool) *ShortTimeWriter {
	return &ShortTimeWriter{
		w:         w,
		withMilli: withMilli,
	}
}

func (tw *ShortTimeWriter) Write(p []byte) (int, error) {
	var ts string
	if tw.withMilli {
		ts = time.Now().Format("20060102-150405.000")
	} else {
		ts = time.Now().Format("20060102-150405")
	}
	if _, err := fmt.Fprintf(tw.w, "%s %s", ts, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

const timeFlags = log.Ldate | log.Ltime | log.Lmicroseconds

func NewLog(w io.Writer, tag string, flag int) *log.Logger {
	flag &^= timeFlags

	// 强制使用 Lmsgprefix
	flag |= log.Lmsgprefix

	return log.New(
		NewShortTimeWriter(w, false),
		tag,
		flag,
	)
}

// Level is the verbosity of a Logger.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var levelTags = [...]struct {
	name  string
	color string
}{
	LevelError: {"ERROR", "\033[31m"},
	LevelWarn:  {"WARN ", "\033[33m"},
	LevelInfo:  {"INFO ", "\033[36m"},
	LevelDebug: {"DEBUG", "\033[35m"},
}

// Logger is a leveled front for a *log.Logger built by NewLog.
// A nil *Logger discards everything.
type Logger struct {
	mu    sync.Mutex
	l     *log.Logger
	level Level
	color bool
}

// NewLogger creates a leveled logger writing to w. Colors are enabled
// when w is a terminal, debug level adds milliseconds to the timestamp.
func NewLogger(w io.Writer, tag string, level Level) *Logger {
	color := false
	if f, ok := w.(*os.File); ok {
		color = IsTerminal(f)
	}
	l := NewLog(w, tag, log.LstdFlags|log.Lmsgprefix)
	if level >= LevelDebug {
		l.SetOutput(NewShortTimeWriter(w, true))
	}
	return &Logger{
		l:     l,
		level: level,
		color: color,
	}
}

// Discard returns a logger that drops all messages.
func Discard() *Logger {
	return &Logger{l: log.New(io.Discard, "", 0), level: LevelError}
}

func (lg *Logger) SetLevel(level Level) {
	lg.mu.Lock()
	lg.level = level
	lg.mu.Unlock()
}

func (lg *Logger) Enabled(level Level) bool {
	if lg == nil {
		return false
	}
	lg.mu.Lock()
	defer lg.mu.Unlock()
	return level <= lg.level
}

func (lg *Logger) logf(level Level, format string, v ...interface{}) {
	if !lg.Enabled(level) {
		return
	}
	tag := levelTags[level]
	msg := fmt.Sprintf(format, v...)
	if lg.color {
		lg.l.Printf("%s[%s]\033[0m %s", tag.color, tag.name, msg)
		return
	}
	lg.l.Printf("[%s] %s", tag.name, msg)
}

func (lg *Logger) Errorf(format string, v ...interface{}) { lg.logf(LevelError, format, v...) }
func (lg *Logger) Warnf(format string, v ...interface{})  { lg.logf(LevelWarn, format, v...) }
func (lg *Logger) Infof(format string, v ...interface{})  { lg.logf(LevelInfo, format, v...) }
func (lg *Logger) Debugf(format string, v ...interface{}) { lg.logf(LevelDebug, format, v...) }
