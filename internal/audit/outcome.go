// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package audit records the outcome of every side effect the bot performs on
// behalf of a decision: invites, notifications, ledger writes. Best-effort
// effects that fail do not abort the workflow; they are reported here with
// an explicit status instead.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the result class of a side effect.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartial        Status = "partial"
	StatusFailedNonFatal Status = "failed_nonfatal"
	StatusFailed         Status = "failed"
)

// Event names what happened.
type Event string

const (
	EventSubmitted     Event = "submitted"
	EventApproved      Event = "approved"
	EventRejectPrompt  Event = "reject_prompted"
	EventRejected      Event = "rejected"
	EventStale         Event = "stale"
	EventApprovalError Event = "approval_error"
	EventOwnerNotified Event = "owner_notified"
	EventOwnerApproved Event = "owner_approved"
	EventOwnerRejected Event = "owner_rejected"
	EventLedgerWrite   Event = "ledger_write"
	EventClassified    Event = "classified"
	EventAnnounced     Event = "chat_announced"
)

// Outcome is one recorded side effect.
type Outcome struct {
	ID        string    `json:"id"`
	Event     Event     `json:"event"`
	Status    Status    `json:"status"`
	SubjectID int64     `json:"subject_id,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// New creates an outcome stamped with a fresh id and the current time.
func New(event Event, status Status, subjectID int64) Outcome {
	return Outcome{
		ID:        uuid.NewString(),
		Event:     event,
		Status:    status,
		SubjectID: subjectID,
		At:        time.Now().UTC(),
	}
}

// WithActor sets the person who triggered the effect.
func (o Outcome) WithActor(actor string) Outcome {
	o.Actor = actor
	return o
}

// WithDetail sets a free-text detail.
func (o Outcome) WithDetail(detail string) Outcome {
	o.Detail = detail
	return o
}

// WithError records err, if any.
func (o Outcome) WithError(err error) Outcome {
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

// Sink receives outcomes. Implementations must not block the caller on
// failure; they log and drop instead.
type Sink interface {
	Record(ctx context.Context, o Outcome)
}

// LogSink writes outcomes to the default slog logger.
type LogSink struct{}

// Record logs o at a level derived from its status.
func (LogSink) Record(ctx context.Context, o Outcome) {
	level := slog.LevelInfo
	switch o.Status {
	case StatusPartial, StatusFailedNonFatal:
		level = slog.LevelWarn
	case StatusFailed:
		level = slog.LevelError
	}

	attrs := []any{
		"outcome_id", o.ID,
		"event", o.Event,
		"status", o.Status,
		"subject_id", o.SubjectID,
	}
	if o.Actor != "" {
		attrs = append(attrs, "actor", o.Actor)
	}
	if o.Detail != "" {
		attrs = append(attrs, "detail", o.Detail)
	}
	if o.Error != "" {
		attrs = append(attrs, "error", o.Error)
	}
	slog.Log(ctx, level, "outcome", attrs...)
}

// Multi fans an outcome out to several sinks.
type Multi []Sink

// Record forwards o to every non-nil sink.
func (m Multi) Record(ctx context.Context, o Outcome) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, o)
		}
	}
}

// Memory keeps outcomes in memory for tests.
type Memory struct {
	mu       sync.Mutex
	outcomes []Outcome
}

// Record appends o.
func (m *Memory) Record(_ context.Context, o Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
}

// Outcomes returns the recorded outcomes, optionally filtered by event.
func (m *Memory) Outcomes(event Event) []Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Outcome
	for _, o := range m.outcomes {
		if event == "" || o.Event == event {
			out = append(out, o)
		}
	}
	return out
}
