// Package tdslog provides the driver's structured logging, split into
// the three categories the FSM and its surrounding layers actually
// produce events for: connection lifecycle, wire protocol detail, and
// transaction bookkeeping. Grounded on pkg/log.Logger (category/level
// split, text/JSON Format, CategoryLogger), trimmed to this driver's
// fixed category set and without the teacher's async writer — a
// driver has no request volume that would need one, so the simpler
// synchronous path is kept instead of the complexity of a buffered
// channel and drop counters.
package tdslog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a logging severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

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
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level string, defaulting to LevelInfo on failure.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR", "ERR":
		return LevelError, nil
	case "OFF", "NONE":
		return LevelOff, nil
	default:
		return LevelInfo, fmt.Errorf("tdslog: unknown level %q", s)
	}
}

// Category identifies which part of the driver produced a log entry.
type Category string

const (
	// CategoryConnection covers dial, PRELOGIN, TLS negotiation, LOGIN7,
	// FSM state transitions, and teardown.
	CategoryConnection Category = "connection"
	// CategoryProtocol covers packet framing and token-stream decoding.
	CategoryProtocol Category = "protocol"
	// CategoryTransaction covers the transaction descriptor stack:
	// begin/commit/rollback and the ENVCHANGE acks for each.
	CategoryTransaction Category = "transaction"
)

// Format selects the rendering of log entries.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Config configures a Logger.
type Config struct {
	DefaultLevel   Level
	CategoryLevels map[Category]Level
	Output         io.Writer
	Format         Format
}

// DefaultConfig returns a logger configuration writing INFO-and-above
// text lines to stderr.
func DefaultConfig() Config {
	return Config{DefaultLevel: LevelInfo, Output: os.Stderr, Format: FormatText}
}

// Logger is the driver's structured logger, one independently leveled
// sink per Category.
type Logger struct {
	mu     sync.RWMutex
	levels map[Category]Level
	output io.Writer
	format Format
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	l := &Logger{
		levels: make(map[Category]Level),
		output: cfg.Output,
		format: cfg.Format,
	}
	for _, cat := range []Category{CategoryConnection, CategoryProtocol, CategoryTransaction} {
		l.levels[cat] = cfg.DefaultLevel
	}
	for cat, lvl := range cfg.CategoryLevels {
		l.levels[cat] = lvl
	}
	return l
}

// SetLevel sets the level for one category.
func (l *Logger) SetLevel(cat Category, level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels[cat] = level
}

// entry is one log line's fields.
type entry struct {
	Time     time.Time
	Level    Level
	Category Category
	Message  string
	Err      error
	Fields   map[string]interface{}
}

func (l *Logger) log(level Level, cat Category, msg string, err error, fields []interface{}) {
	l.mu.RLock()
	catLevel, ok := l.levels[cat]
	format := l.format
	out := l.output
	l.mu.RUnlock()
	if !ok {
		catLevel = LevelInfo
	}
	if level < catLevel {
		return
	}

	e := entry{Time: time.Now(), Level: level, Category: cat, Message: msg, Err: err}
	if len(fields) > 0 {
		e.Fields = make(map[string]interface{}, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			if key, ok := fields[i].(string); ok {
				e.Fields[key] = fields[i+1]
			}
		}
	}

	switch format {
	case FormatJSON:
		writeJSON(out, e)
	default:
		writeText(out, e)
	}
}

func writeText(w io.Writer, e entry) {
	var b strings.Builder
	b.WriteString(e.Time.Format("2006-01-02 15:04:05.000"))
	b.WriteString(" ")
	fmt.Fprintf(&b, "%-5s", e.Level.String())
	b.WriteString(" [")
	b.WriteString(string(e.Category))
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, " error=%q", e.Err.Error())
	}
	for k, v := range e.Fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	b.WriteString("\n")
	io.WriteString(w, b.String())
}

func writeJSON(w io.Writer, e entry) {
	var b strings.Builder
	b.WriteString("{")
	fmt.Fprintf(&b, "\"time\":%q,\"level\":%q,\"category\":%q,\"message\":%q",
		e.Time.Format(time.RFC3339Nano), e.Level.String(), e.Category, e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ",\"error\":%q", e.Err.Error())
	}
	for k, v := range e.Fields {
		fmt.Fprintf(&b, ",%q:%q", k, fmt.Sprintf("%v", v))
	}
	b.WriteString("}\n")
	io.WriteString(w, b.String())
}

// CategoryLogger is a Logger bound to one Category.
type CategoryLogger struct {
	logger *Logger
	cat    Category
}

func (l *Logger) Connection() *CategoryLogger  { return &CategoryLogger{l, CategoryConnection} }
func (l *Logger) Protocol() *CategoryLogger    { return &CategoryLogger{l, CategoryProtocol} }
func (l *Logger) Transaction() *CategoryLogger { return &CategoryLogger{l, CategoryTransaction} }

func (cl *CategoryLogger) Debug(msg string, fields ...interface{}) {
	cl.logger.log(LevelDebug, cl.cat, msg, nil, fields)
}

func (cl *CategoryLogger) Info(msg string, fields ...interface{}) {
	cl.logger.log(LevelInfo, cl.cat, msg, nil, fields)
}

func (cl *CategoryLogger) Warn(msg string, fields ...interface{}) {
	cl.logger.log(LevelWarn, cl.cat, msg, nil, fields)
}

func (cl *CategoryLogger) Error(msg string, err error, fields ...interface{}) {
	cl.logger.log(LevelError, cl.cat, msg, err, fields)
}

var (
	defaultLogger     *Logger
	defaultLoggerOnce sync.Once
)

// Default returns the process-wide default Logger, built lazily from
// DefaultConfig the first time it's needed (e.g. by a Config with no
// Logger set).
func Default() *Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = New(DefaultConfig())
	})
	return defaultLogger
}
