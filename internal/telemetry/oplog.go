// Package telemetry instruments wire-protocol operations: every call logs
// its start, duration and outcome through logrus and mirrors the same
// events into a golang.org/x/net/trace event log so they show up in a
// debug server's /debug/events and /debug/requests pages.
package telemetry

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/trace"

	"github.com/go-adbhost/adbhost/internal/atomicbool"
)

// Log is a per-component event log, e.g. one per *adb.HostClient or one per
// *adb.Device.
type Log struct {
	component string
	logger    *logrus.Logger
	events    trace.EventLog
}

// New creates a Log for component, named title for the trace event log UI.
func New(logger *logrus.Logger, component, title string) *Log {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Log{
		component: component,
		logger:    logger,
		events:    trace.NewEventLog(component, title),
	}
}

// Finish releases the underlying trace event log. Call when the owning
// component is done (a HostClient or Device closing).
func (l *Log) Finish() {
	l.events.Finish()
}

// Start begins logging operation, returning an Entry that must be finished
// via Finish (after SetError and SetResult, where they apply).
func (l *Log) Start(operation string, fields logrus.Fields) *Entry {
	e := &Entry{
		log:       l,
		operation: operation,
		fields:    fields,
		start:     time.Now(),
	}
	l.logger.WithFields(e.logFields()).Debugf("%s: starting %s", l.component, operation)
	l.events.Printf("%s: starting", operation)
	return e
}

// Entry tracks one in-flight operation.
type Entry struct {
	log       *Log
	operation string
	fields    logrus.Fields
	start     time.Time
	err       error
	result    interface{}
	finished  atomicbool.Bool
}

// SetError records the operation's terminal error, if any. Safe to call
// multiple times; the last call wins.
func (e *Entry) SetError(err error) *Entry {
	e.err = err
	return e
}

// SetResult records a human-readable summary of the operation's result,
// logged when Finish is called. Not required for every operation.
func (e *Entry) SetResult(result interface{}) *Entry {
	e.result = result
	return e
}

// Finish logs the operation's outcome and duration. It is a no-op if
// called more than once on the same Entry.
func (e *Entry) Finish() {
	if !e.finished.CompareAndSwap(false, true) {
		return
	}

	durationMillis := time.Since(e.start).Seconds() * 1000

	fields := e.logFields()
	fields["duration_ms"] = durationMillis
	if e.result != nil {
		fields["result"] = e.result
	}

	if e.err != nil {
		fields["err"] = e.err.Error()
		e.log.logger.WithFields(fields).Errorf("%s: %s failed", e.log.component, e.operation)
		e.log.events.Errorf("%s: failed: %s (%.2fms)", e.operation, e.err, durationMillis)
		return
	}

	e.log.logger.WithFields(fields).Debugf("%s: %s finished", e.log.component, e.operation)
	e.log.events.Printf("%s: finished (%.2fms)", e.operation, durationMillis)
}

func (e *Entry) logFields() logrus.Fields {
	fields := logrus.Fields{"operation": e.operation}
	for k, v := range e.fields {
		fields[k] = v
	}
	return fields
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s(%v)", e.operation, e.fields)
}
