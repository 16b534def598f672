/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

type PathFormat int

type Logger = logrus.Logger

const (
	PathFormatShortRelative PathFormat = iota
	PathFormatFilenameOnly
	PathFormatFullPath
)

const defaultTimestampFormat = "2006-01-02 15:04:05.000"

var (
	defaultLevel     = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}
	consoleLogFormat = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	consoleOutputMu  sync.RWMutex
)

var consoleOutput io.Writer = os.Stdout

// ConfigureConsoleLogFormat switches loggers created afterwards between the
// colored text layout and JSON lines.
func ConfigureConsoleLogFormat(format string) {
	s := strings.ToLower(strings.TrimSpace(format))
	if s == "json" {
		consoleLogFormat = "json"
	} else {
		consoleLogFormat = "text"
	}
}

// SetOutput redirects every registered logger. Tests use it to capture logs.
func SetOutput(w io.Writer) {
	consoleOutputMu.Lock()
	consoleOutput = w
	consoleOutputMu.Unlock()
	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	for _, lg := range loggerRegistry {
		lg.SetOutput(w)
	}
}

func output() io.Writer {
	consoleOutputMu.RLock()
	defer consoleOutputMu.RUnlock()
	return consoleOutput
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func RegisterLogger(name string, l *logrus.Logger) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	loggerRegistry[name] = l
}

// GetRegisteredLogger returns the logger registered under name.
func GetRegisteredLogger(name string) (*logrus.Logger, bool) {
	loggerRegistryMu.RLock()
	defer loggerRegistryMu.RUnlock()
	l, ok := loggerRegistry[name]
	return l, ok
}

func SetAllLoggersLevel(lvl logrus.Level) {
	loggerRegistryMu.RLock()
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
	loggerRegistryMu.RUnlock()
	logrus.SetLevel(lvl)
	defaultLevel = lvl
}

func SetLoggerLevel(name string, lvlStr string) bool {
	lvl := ParseLogLevel(lvlStr)
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(lvl)
	return true
}

func ConfigureLogLevel(levelStr string) {
	SetAllLoggersLevel(ParseLogLevel(levelStr))
}

// NewLogger creates and registers a named logger. Calling it twice with the
// same name returns the registered instance.
func NewLogger(name string) *logrus.Logger {
	if l, ok := GetRegisteredLogger(name); ok {
		return l
	}
	l := logrus.New()
	l.SetOutput(output())
	l.SetLevel(defaultLevel)
	l.SetReportCaller(true)
	if consoleLogFormat == "json" {
		l.SetFormatter(&JSONLogFormatter{
			LoggerName:      name,
			TimestampFormat: defaultTimestampFormat,
			PathFmt:         PathFormatShortRelative,
		})
	} else {
		l.SetFormatter(&Log4jColorFormatter{
			LoggerName:      name,
			TimestampFormat: defaultTimestampFormat,
			PathFmt:         PathFormatShortRelative,
			NameWidth:       10,
			CallerWidth:     25,
		})
	}
	RegisterLogger(name, l)
	return l
}

// Log4jColorFormatter renders "ts LEVEL pid --- [main] name caller : msg k=v".
type Log4jColorFormatter struct {
	LoggerName      string
	TimestampFormat string
	PathFmt         PathFormat
	NameWidth       int
	CallerWidth     int
}

var (
	faint       = color.New(color.Faint).SprintFunc()
	magenta     = color.New(color.FgMagenta).SprintFunc()
	cyan        = color.New(color.FgCyan).SprintFunc()
	levelColors = map[logrus.Level]*color.Color{
		logrus.TraceLevel: color.New(color.Faint),
		logrus.DebugLevel: color.New(color.FgBlue),
		logrus.InfoLevel:  color.New(color.FgGreen),
		logrus.WarnLevel:  color.New(color.FgYellow),
		logrus.ErrorLevel: color.New(color.FgRed),
		logrus.FatalLevel: color.New(color.FgRed, color.Bold),
		logrus.PanicLevel: color.New(color.FgRed, color.Bold),
	}
)

func (f *Log4jColorFormatter) tsFormat() string {
	if f.TimestampFormat != "" {
		return f.TimestampFormat
	}
	return defaultTimestampFormat
}

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	ts := entry.Time.Format(f.tsFormat())
	lvl := fmt.Sprintf("%7s", strings.ToUpper(entry.Level.String()))
	if c, ok := levelColors[entry.Level]; ok {
		lvl = c.Sprint(lvl)
	}
	pid := magenta(fmt.Sprintf("%-6d", os.Getpid()))
	name := cyan(padLeftRunes(limitRunes(f.LoggerName, f.NameWidth), f.NameWidth))
	caller := ""
	if entry.Caller != nil {
		fileLine := formatCaller(entry.Caller.File, entry.Caller.Line, f.PathFmt)
		if f.CallerWidth > 0 {
			fileLine = padLeftRunes(limitTail(fileLine, f.CallerWidth), f.CallerWidth)
		}
		caller = faint(" " + fileLine)
	}
	line := fmt.Sprintf("%s %s %s --- %s %s%s %s %s%s\n",
		ts, lvl, pid, magenta("[main]"), name, caller, faint(":"), entry.Message, formatFields(entry.Data))
	return []byte(line), nil
}

// JSONLogFormatter renders one JSON object per entry.
type JSONLogFormatter struct {
	LoggerName      string
	TimestampFormat string
	PathFmt         PathFormat
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	type jsonLogRecord struct {
		Time    string                 `json:"time"`
		Level   string                 `json:"level"`
		Logger  string                 `json:"logger"`
		Caller  string                 `json:"caller,omitempty"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields,omitempty"`
	}
	rec := jsonLogRecord{
		Time:    entry.Time.Format(tsFormat),
		Level:   strings.ToLower(entry.Level.String()),
		Logger:  f.LoggerName,
		Message: entry.Message,
	}
	if entry.Caller != nil {
		rec.Caller = formatCaller(entry.Caller.File, entry.Caller.Line, f.PathFmt)
	}
	if len(entry.Data) > 0 {
		rec.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			rec.Fields[k] = v
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func formatCaller(file string, line int, pf PathFormat) string {
	switch pf {
	case PathFormatFilenameOnly:
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	case PathFormatFullPath:
		return fmt.Sprintf("%s:%d", file, line)
	default:
		dir := filepath.Base(filepath.Dir(file))
		return fmt.Sprintf("%s/%s:%d", dir, filepath.Base(file), line)
	}
}

func formatFields(data logrus.Fields) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", faint(k), data[k])
	}
	return b.String()
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

// limitTail keeps the last n runes so the file name survives truncation.
func limitTail(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func padLeftRunes(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return strings.Repeat(" ", width-n) + s
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}

func EnvDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return def
		}
		return n
	}
	return def
}

func EnvDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return def
		}
		return d
	}
	return def
}
