// Structured logging for the stdio shepherd
//
// Standard output carries protocol rows, so every logger writes to
// stderr (and optionally a rotating file), never to stdout.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package log is the diagnostic stream: leveled, prefixed per component,
// with structured fields rendered as text or JSON.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{DEBUG: "DEBUG", INFO: "INFO", WARN: "WARN", ERROR: "ERROR"}

var levelColors = [...]string{
	DEBUG: "\x1b[36m",
	INFO:  "\x1b[32m",
	WARN:  "\x1b[33m",
	ERROR: "\x1b[31m",
}

const ansiReset = "\x1b[0m"

func (l LogLevel) String() string {
	if l < DEBUG || l > ERROR {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel parses a level name; unknown names give INFO.
func ParseLevel(s string) LogLevel {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "WARNING" {
		return WARN
	}
	for lvl, n := range levelNames {
		if n == name {
			return LogLevel(lvl)
		}
	}
	return INFO
}

// OutputFormat specifies the output format for log messages
type OutputFormat int

const (
	FormatText OutputFormat = iota
	FormatJSON
)

// ParseFormat parses "text" or "json"; anything else is text.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Fields is a map of structured logging fields
type Fields map[string]interface{}

// output is the destination shared by a root logger and every logger
// derived from it, so lines from different components never interleave
// and a writer change reaches all of them.
type output struct {
	mu       sync.Mutex
	w        io.Writer
	format   OutputFormat
	colorize bool
	caller   bool
}

// Logger writes leveled diagnostic lines for one component
type Logger struct {
	out    *output
	prefix string

	levelMu sync.Mutex
	level   LogLevel
}

// New creates a root logger writing to stderr at INFO.
func New(prefix string) *Logger {
	return &Logger{
		out:    &output{w: os.Stderr, colorize: os.Getenv("NO_COLOR") == ""},
		prefix: prefix,
		level:  INFO,
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	l := New("discard")
	l.out.w = io.Discard
	l.level = ERROR + 1
	return l
}

func (l *Logger) SetLevel(level LogLevel) {
	l.levelMu.Lock()
	l.level = level
	l.levelMu.Unlock()
}

func (l *Logger) GetLevel() LogLevel {
	l.levelMu.Lock()
	defer l.levelMu.Unlock()
	return l.level
}

// SetWriter redirects this logger and every logger sharing its output.
func (l *Logger) SetWriter(w io.Writer) {
	l.out.mu.Lock()
	l.out.w = w
	l.out.mu.Unlock()
}

func (l *Logger) SetColorize(enable bool) {
	l.out.mu.Lock()
	l.out.colorize = enable
	l.out.mu.Unlock()
}

func (l *Logger) SetFormat(format OutputFormat) {
	l.out.mu.Lock()
	l.out.format = format
	l.out.mu.Unlock()
}

// SetCaller adds file:line of the logging call to each line.
func (l *Logger) SetCaller(enable bool) {
	l.out.mu.Lock()
	l.out.caller = enable
	l.out.mu.Unlock()
}

// WithPrefix returns a logger for a sub-component. It shares the output
// and starts at the parent's level.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{out: l.out, prefix: prefix, level: l.GetLevel()}
}

func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{logger: l, fields: fields}
}

func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.write(DEBUG, msg, args, nil) }
func (l *Logger) Info(msg string, args ...interface{})  { l.write(INFO, msg, args, nil) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.write(WARN, msg, args, nil) }
func (l *Logger) Error(msg string, args ...interface{}) { l.write(ERROR, msg, args, nil) }

// callerDepth skips write and the Logger or Entry method.
const callerDepth = 2

func (l *Logger) write(level LogLevel, msg string, args []interface{}, fields Fields) {
	if level < l.GetLevel() {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	o := l.out
	o.mu.Lock()
	defer o.mu.Unlock()

	rec := record{level: level, logger: l.prefix, msg: msg, fields: fields}
	if o.caller {
		if _, file, line, ok := runtime.Caller(callerDepth); ok {
			rec.caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}
	if o.format == FormatJSON {
		io.WriteString(o.w, rec.json())
	} else {
		io.WriteString(o.w, rec.text(o.colorize))
	}
}

type record struct {
	level  LogLevel
	logger string
	msg    string
	caller string
	fields Fields
}

func (r record) text(colorize bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%-5s] ", time.Now().Format("2006-01-02 15:04:05.000"), r.level)
	if colorize {
		sb.WriteString(levelColors[r.level])
		sb.WriteString(r.logger)
		sb.WriteString(ansiReset)
	} else {
		sb.WriteString(r.logger)
	}
	sb.WriteString(": ")
	sb.WriteString(r.msg)
	if r.caller != "" {
		fmt.Fprintf(&sb, " (%s)", r.caller)
	}
	if len(r.fields) > 0 {
		keys := make([]string, 0, len(r.fields))
		for k := range r.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, r.fields[k])
		}
		sb.WriteString("}")
	}
	sb.WriteByte('\n')
	return sb.String()
}

// JSONLogEntry is one line of JSON output.
type JSONLogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (r record) json() string {
	entry := JSONLogEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Level:     r.level.String(),
		Logger:    r.logger,
		Message:   r.msg,
		Caller:    r.caller,
	}
	if len(r.fields) > 0 {
		entry.Fields = r.fields
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":"ERROR","message":"unencodable log entry: %v"}`+"\n", err)
	}
	return string(data) + "\n"
}

// Entry is a pending log line carrying fields
type Entry struct {
	logger *Logger
	fields Fields
}

// WithField returns a copy of the entry with one more field.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.WithFields(Fields{key: value})
}

// WithFields returns a copy of the entry with fields merged in.
func (e *Entry) WithFields(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

func (e *Entry) WithError(err error) *Entry {
	return e.WithField("error", err.Error())
}

func (e *Entry) Debug(msg string, args ...interface{}) { e.logger.write(DEBUG, msg, args, e.fields) }
func (e *Entry) Info(msg string, args ...interface{})  { e.logger.write(INFO, msg, args, e.fields) }
func (e *Entry) Warn(msg string, args ...interface{})  { e.logger.write(WARN, msg, args, e.fields) }
func (e *Entry) Error(msg string, args ...interface{}) { e.logger.write(ERROR, msg, args, e.fields) }

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// SetDefaultLogger sets the root logger that GetLogger derives from
func SetDefaultLogger(logger *Logger) {
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// GetLogger returns a component logger derived from the root logger
func GetLogger(prefix string) *Logger {
	defaultMu.Lock()
	if defaultLogger == nil {
		defaultLogger = New("shepherd")
		ConfigureFromEnv(defaultLogger)
	}
	root := defaultLogger
	defaultMu.Unlock()
	return root.WithPrefix(prefix)
}

// ConfigureFromEnv applies environment overrides:
//   - SHEPHERD_LOG_LEVEL: DEBUG, INFO, WARN, ERROR
//   - SHEPHERD_LOG_FORMAT: text, json
//   - SHEPHERD_LOG_CALLER: any non-empty value enables caller info
//   - NO_COLOR: any non-empty value disables colors
func ConfigureFromEnv(l *Logger) {
	if v := os.Getenv("SHEPHERD_LOG_LEVEL"); v != "" {
		l.SetLevel(ParseLevel(v))
	}
	if v := os.Getenv("SHEPHERD_LOG_FORMAT"); v != "" {
		l.SetFormat(ParseFormat(v))
	}
	if os.Getenv("SHEPHERD_LOG_CALLER") != "" {
		l.SetCaller(true)
	}
	if os.Getenv("NO_COLOR") != "" {
		l.SetColorize(false)
	}
}
