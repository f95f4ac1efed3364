// Package logging provides the leveled, field-structured logger used
// throughout the daemon, with logfmt output for machine consumption
// and a colorized human format on terminals.
package logging

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

func ParseLevel(s string) (Level, error) {
	for _, l := range []Level{Debug, Info, Warn, Error} {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, errors.Errorf("invalid log level %q", s)
}

// Entry is one log event handed to an Outlet.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
	Fields  map[string]interface{}
}

// Outlet formats and writes entries. Implementations need not be
// safe for concurrent use; the Logger serializes writes.
type Outlet interface {
	WriteEntry(e Entry) error
}

// Logger fans entries above its level out to its outlet. Field
// methods return derived loggers sharing the outlet and mutex, so a
// logger may be copied freely across goroutines.
type Logger struct {
	mu     *sync.Mutex
	outlet Outlet
	level  Level
	fields map[string]interface{}
}

func NewLogger(outlet Outlet, level Level) *Logger {
	return &Logger{mu: &sync.Mutex{}, outlet: outlet, level: level}
}

// NewTestLogger writes human-formatted entries through t's logging so
// output interleaves with test failures.
func NewTestLogger(t interface{ Log(args ...interface{}) }) *Logger {
	return NewLogger(&testOutlet{t: t}, Debug)
}

type testOutlet struct {
	t interface{ Log(args ...interface{}) }
}

func (o *testOutlet) WriteEntry(e Entry) error {
	var buf []byte
	buf = appendHuman(buf, e, false)
	o.t.Log(string(buf))
	return nil
}

func (l *Logger) forkWith(field string, val interface{}) *Logger {
	child := &Logger{mu: l.mu, outlet: l.outlet, level: l.level}
	child.fields = make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		child.fields[k] = v
	}
	child.fields[field] = val
	return child
}

func (l *Logger) WithField(field string, val interface{}) *Logger {
	return l.forkWith(field, val)
}

func (l *Logger) WithError(err error) *Logger {
	val := interface{}(nil)
	if err != nil {
		val = err.Error()
	}
	return l.forkWith("err", val)
}

func (l *Logger) log(level Level, msg string) {
	if level < l.level {
		return
	}
	e := Entry{Time: time.Now(), Level: level, Message: msg, Fields: l.fields}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.outlet.WriteEntry(e); err != nil {
		// the outlet is the only place errors could go
		_ = err
	}
}

func (l *Logger) Debug(msg string) { l.log(Debug, msg) }
func (l *Logger) Info(msg string)  { l.log(Info, msg) }
func (l *Logger) Warn(msg string)  { l.log(Warn, msg) }
func (l *Logger) Error(msg string) { l.log(Error, msg) }

type contextKey int

const contextKeyLogger contextKey = 0

func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger, l)
}

// FromCtx returns the context's logger, or a discarding one so call
// sites never need a nil check.
func FromCtx(ctx context.Context) *Logger {
	if l, ok := ctx.Value(contextKeyLogger).(*Logger); ok {
		return l
	}
	return NewLogger(discardOutlet{}, Error)
}

type discardOutlet struct{}

func (discardOutlet) WriteEntry(Entry) error { return nil }

// NewStderrOutlet picks the human format when stderr is a terminal
// and logfmt otherwise.
func NewStderrOutlet() Outlet {
	if stderrIsTTY() {
		return NewHumanOutlet(os.Stderr, true)
	}
	return NewLogfmtOutlet(os.Stderr)
}
