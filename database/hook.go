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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

// QueryLogEnv overrides the query log switch at runtime: "0" or empty
// disables it, "1" logs failures only, "2" logs every statement.
const QueryLogEnv = "HUMMER_QUERY_LOG"

var querySilentMode atomic.Bool

// EnableQuerySilent mutes every query hook and command monitor.
func EnableQuerySilent(b bool) {
	querySilentMode.Store(b)
}

// Statement kinds used to pick a color. Mongo command names are folded into
// the same kinds.
const (
	opSelect = "SELECT"
	opInsert = "INSERT"
	opUpdate = "UPDATE"
	opDelete = "DELETE"
	opOther  = "OTHER"
)

func opColor(op string) *color.Color {
	switch op {
	case opSelect:
		return color.New(color.FgGreen)
	case opInsert:
		return color.New(color.FgBlue)
	case opUpdate:
		return color.New(color.FgYellow)
	case opDelete:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgRed)
	}
}

func opBackground(op string) *color.Color {
	switch op {
	case opSelect:
		return color.New(color.BgGreen, color.FgHiWhite)
	case opInsert:
		return color.New(color.BgBlue, color.FgHiWhite)
	case opUpdate:
		return color.New(color.BgYellow, color.FgHiWhite)
	case opDelete:
		return color.New(color.BgMagenta, color.FgHiWhite)
	default:
		return color.New(color.BgRed, color.FgHiWhite)
	}
}

// writeQueryLine prints one aligned log line: time, tag, duration, the
// statement colored by kind and, on failure, the error type and message.
func writeQueryLine(w io.Writer, tag string, dur time.Duration, op, text string, err error) {
	args := []interface{}{
		time.Now().Format("2006-01-02 15:04:05.000"),
		color.New(color.FgCyan).Sprintf("%15s", tag),
		fmt.Sprintf("%17s", dur.Round(time.Microsecond)),
		"  ", opColor(op).Sprint(text),
	}
	if err != nil {
		typ := reflect.TypeOf(err).String()
		args = append(args, "\t", color.New(color.BgRed).Sprintf(" %s ", typ+": "+err.Error()))
	}
	_, _ = fmt.Fprintln(w, args...)
}

// queryLogSwitch resolves the enabled and verbose flags, letting the
// environment override the configured values.
func queryLogSwitch(envName string, enabled, verbose bool) (bool, bool) {
	if env, ok := os.LookupEnv(envName); ok {
		env = strings.TrimSpace(env)
		return env != "" && env != "0", env == "2"
	}
	return enabled, verbose
}

// QueryHook prints SQL statements executed through bun.
type QueryHook struct {
	envName string
	enabled bool
	verbose bool
	writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook returns a hook writing to w, or stdout when w is nil.
func NewQueryHook(enabled, verbose bool, w io.Writer) *QueryHook {
	if w == nil {
		w = os.Stdout
	}
	return &QueryHook{envName: QueryLogEnv, enabled: enabled, verbose: verbose, writer: w}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if querySilentMode.Load() {
		return
	}
	enabled, verbose := queryLogSwitch(h.envName, h.enabled, h.verbose)
	if !enabled {
		return
	}
	if !verbose {
		switch {
		case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
			return
		}
	}
	writeQueryLine(h.writer, "[BUN]", time.Since(event.StartTime), sqlOperation(event.Operation()), event.Query, event.Err)
}

func sqlOperation(op string) string {
	switch op {
	case opSelect, opInsert, opUpdate, opDelete:
		return op
	}
	return opOther
}

// SlowQueryHook warns through the logger when a statement runs longer than
// the threshold.
type SlowQueryHook struct {
	threshold time.Duration
	logger    Logger
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

func NewSlowQueryHook(threshold time.Duration, logger Logger) *SlowQueryHook {
	if logger == nil {
		logger = GetLogger()
	}
	return &SlowQueryHook{threshold: threshold, logger: logger}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if querySilentMode.Load() || event.Err != nil {
		return
	}
	warnSlow(h.logger, h.threshold, time.Since(event.StartTime), sqlOperation(event.Operation()), event.Query)
}

func warnSlow(logger Logger, threshold, dur time.Duration, op, text string) {
	if threshold <= 0 || dur <= threshold {
		return
	}
	logger.Warn("Slow query detected",
		"duration", dur,
		"slow_threshold", threshold,
		"query", opBackground(op).Sprint(text),
	)
}
