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

package models

import "testing"

// TestParseApprovalPayload verifies both admin and roommate payload formats.
func TestParseApprovalPayload(t *testing.T) {
	tests := []struct {
		data      string
		want      ApprovalPayload
		wantError bool
	}{
		{data: "approve_42", want: ApprovalPayload{Action: ActionApprove, SubjectID: 42}},
		{data: "reject_7", want: ApprovalPayload{Action: ActionReject, SubjectID: 7}},
		{data: "approve_roommate_99", want: ApprovalPayload{Action: ActionApprove, Roommate: true, SubjectID: 99}},
		{data: "reject_roommate_5", want: ApprovalPayload{Action: ActionReject, Roommate: true, SubjectID: 5}},
		{data: "ban_42", wantError: true},
		{data: "approve_abc", wantError: true},
		{data: "approve_owner_1", wantError: true},
		{data: "intake:role:owner", wantError: true},
		{data: "", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := ParseApprovalPayload(tt.data)
			if tt.wantError {
				if err == nil {
					t.Errorf("expected error for %q, got %+v", tt.data, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("payload = %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.data {
				t.Errorf("String() = %q, want %q", got.String(), tt.data)
			}
		})
	}
}

func TestParseRoleAndDocumentType(t *testing.T) {
	if r, ok := ParseRole("owner"); !ok || r != RoleOwner {
		t.Errorf("ParseRole(owner) = %q, %v", r, ok)
	}
	if r, ok := ParseRole(RoleRoommate.Label()); !ok || r != RoleRoommate {
		t.Errorf("ParseRole(label) = %q, %v", r, ok)
	}
	if _, ok := ParseRole("I am the owner of everything"); ok {
		t.Error("free text must not decode to a role")
	}

	if d, ok := ParseDocumentType("  договір інвестування "); !ok || d != DocInvestmentContract {
		t.Errorf("ParseDocumentType(label) = %q, %v", d, ok)
	}
	if d, ok := ParseDocumentType("ownership"); !ok || d != DocOwnershipExtract {
		t.Errorf("ParseDocumentType(ownership) = %q, %v", d, ok)
	}
	if _, ok := ParseDocumentType("passport"); ok {
		t.Error("unknown document type must not decode")
	}
}

func TestDocumentRecordComplete(t *testing.T) {
	full := DocumentRecord{ApartmentID: "12", Area: "34", Type: DocInvestmentContract}
	if !full.Complete() {
		t.Error("expected complete record")
	}
	missing := []DocumentRecord{
		{Area: "34", Type: DocInvestmentContract},
		{ApartmentID: "12", Area: "  ", Type: DocInvestmentContract},
		{ApartmentID: "12", Area: "34"},
	}
	for i, rec := range missing {
		if rec.Complete() {
			t.Errorf("record %d should be incomplete: %+v", i, rec)
		}
	}
}
