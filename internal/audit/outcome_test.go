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

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// TestNew verifies ids and timestamps are filled in.
func TestNew(t *testing.T) {
	a := New(EventApproved, StatusSuccess, 42)
	b := New(EventApproved, StatusSuccess, 42)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids = %q, %q; want distinct non-empty", a.ID, b.ID)
	}
	if a.At.IsZero() {
		t.Error("At should be set")
	}

	o := a.WithActor("Admin").WithDetail("invite sent").WithError(errors.New("boom"))
	if o.Actor != "Admin" || o.Detail != "invite sent" || o.Error != "boom" {
		t.Errorf("outcome = %+v", o)
	}
	if a.Actor != "" {
		t.Error("With* must not mutate the receiver")
	}
	if New(EventStale, StatusSuccess, 1).WithError(nil).Error != "" {
		t.Error("nil error should leave Error empty")
	}
}

// TestLogSink_Levels verifies that failed outcomes are logged above info.
func TestLogSink_Levels(t *testing.T) {
	tests := []struct {
		status Status
		level  string
	}{
		{StatusSuccess, "INFO"},
		{StatusPartial, "WARN"},
		{StatusFailedNonFatal, "WARN"},
		{StatusFailed, "ERROR"},
	}

	prev := slog.Default()
	defer slog.SetDefault(prev)

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))

			LogSink{}.Record(context.Background(), New(EventLedgerWrite, tt.status, 7))

			var rec map[string]any
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("log line is not JSON: %v", err)
			}
			if rec["level"] != tt.level {
				t.Errorf("level = %v, want %s", rec["level"], tt.level)
			}
			if rec["event"] != string(EventLedgerWrite) {
				t.Errorf("event = %v", rec["event"])
			}
		})
	}
}

// TestMulti verifies fan-out and nil tolerance.
func TestMulti(t *testing.T) {
	a, b := &Memory{}, &Memory{}
	Multi{a, nil, b}.Record(context.Background(), New(EventRejected, StatusSuccess, 3))

	if len(a.Outcomes("")) != 1 || len(b.Outcomes(EventRejected)) != 1 {
		t.Error("every sink should receive the outcome")
	}
	if len(a.Outcomes(EventApproved)) != 0 {
		t.Error("event filter should exclude other events")
	}
}

// TestOutcome_JSON verifies the published field names.
func TestOutcome_JSON(t *testing.T) {
	body, err := json.Marshal(New(EventOwnerApproved, StatusPartial, 9).WithActor("Owner"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{`"event":"owner_approved"`, `"status":"partial"`, `"subject_id":9`, `"actor":"Owner"`} {
		if !strings.Contains(string(body), field) {
			t.Errorf("JSON %s missing %s", body, field)
		}
	}
}
