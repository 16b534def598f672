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
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/event"
)

const maxLoggedCommand = 1024

// CommandMonitor logs MongoDB commands the way QueryHook logs SQL and warns
// about slow commands.
type CommandMonitor struct {
	envName   string
	enabled   bool
	verbose   bool
	writer    io.Writer
	threshold time.Duration
	logger    Logger
	started   sync.Map
}

// NewCommandMonitor returns a monitor writing to w, or stdout when w is nil.
func NewCommandMonitor(enabled, verbose bool, threshold time.Duration, w io.Writer, logger Logger) *CommandMonitor {
	if w == nil {
		w = os.Stdout
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &CommandMonitor{
		envName:   QueryLogEnv,
		enabled:   enabled,
		verbose:   verbose,
		writer:    w,
		threshold: threshold,
		logger:    logger,
	}
}

// Monitor returns the driver hook.
func (m *CommandMonitor) Monitor() *event.CommandMonitor {
	return &event.CommandMonitor{
		Started:   m.commandStarted,
		Succeeded: m.commandSucceeded,
		Failed:    m.commandFailed,
	}
}

func (m *CommandMonitor) commandStarted(_ context.Context, evt *event.CommandStartedEvent) {
	if querySilentMode.Load() {
		return
	}
	text := evt.Command.String()
	if len(text) > maxLoggedCommand {
		text = text[:maxLoggedCommand] + "..."
	}
	m.started.Store(evt.RequestID, text)
}

func (m *CommandMonitor) commandSucceeded(_ context.Context, evt *event.CommandSucceededEvent) {
	text, ok := m.take(evt.RequestID)
	if !ok {
		return
	}
	op := mongoOperation(evt.CommandName)
	if enabled, verbose := queryLogSwitch(m.envName, m.enabled, m.verbose); enabled && verbose {
		writeQueryLine(m.writer, "[MONGO]", evt.Duration, op, text, nil)
	}
	warnSlow(m.logger, m.threshold, evt.Duration, op, text)
}

func (m *CommandMonitor) commandFailed(_ context.Context, evt *event.CommandFailedEvent) {
	text, ok := m.take(evt.RequestID)
	if !ok {
		return
	}
	if enabled, _ := queryLogSwitch(m.envName, m.enabled, m.verbose); enabled {
		writeQueryLine(m.writer, "[MONGO]", evt.Duration, mongoOperation(evt.CommandName), text, errors.New(evt.Failure))
	}
}

func (m *CommandMonitor) take(requestID int64) (string, bool) {
	v, ok := m.started.LoadAndDelete(requestID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// mongoOperation folds a command name into a statement kind.
func mongoOperation(command string) string {
	switch command {
	case "find", "aggregate", "count", "distinct", "getMore":
		return opSelect
	case "insert":
		return opInsert
	case "update", "findAndModify":
		return opUpdate
	case "delete":
		return opDelete
	}
	return opOther
}

// PoolStats tracks the driver connection pool from pool events so the
// manager can report DBStats for MongoDB.
type PoolStats struct {
	maxOpen     int
	open        atomic.Int64
	inUse       atomic.Int64
	checkouts   atomic.Int64
	waitNanos   atomic.Int64
	idleClosed  atomic.Int64
	staleClosed atomic.Int64
	cleared     atomic.Int64
}

func NewPoolStats(maxOpen int) *PoolStats {
	return &PoolStats{maxOpen: maxOpen}
}

// Monitor returns the driver hook.
func (p *PoolStats) Monitor() *event.PoolMonitor {
	return &event.PoolMonitor{Event: p.handle}
}

func (p *PoolStats) handle(evt *event.PoolEvent) {
	switch evt.Type {
	case event.ConnectionCreated:
		p.open.Add(1)
	case event.ConnectionClosed:
		p.open.Add(-1)
		switch evt.Reason {
		case event.ReasonIdle:
			p.idleClosed.Add(1)
		case event.ReasonStale:
			p.staleClosed.Add(1)
		}
	case event.GetSucceeded:
		p.inUse.Add(1)
		p.checkouts.Add(1)
		p.waitNanos.Add(int64(evt.Duration))
	case event.ConnectionReturned:
		p.inUse.Add(-1)
	case event.PoolCleared:
		p.cleared.Add(1)
	}
}

// Snapshot returns the current counters.
func (p *PoolStats) Snapshot() *DBStats {
	open := int(p.open.Load())
	inUse := int(p.inUse.Load())
	idle := open - inUse
	if idle < 0 {
		idle = 0
	}
	return &DBStats{
		MaxOpenConns:      p.maxOpen,
		OpenConns:         open,
		InUse:             inUse,
		Idle:              idle,
		WaitCount:         p.checkouts.Load(),
		WaitDuration:      time.Duration(p.waitNanos.Load()),
		MaxIdleTimeClosed: p.idleClosed.Load(),
		MaxLifetimeClosed: p.staleClosed.Load(),
		PoolCleared:       p.cleared.Load(),
	}
}
