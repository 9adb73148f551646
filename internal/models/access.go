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

// Package models defines the data structures shared across the access bot.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the requester's relation to the apartment.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleRoommate Role = "roommate"
)

// Label returns the localized button label for the role.
func (r Role) Label() string {
	switch r {
	case RoleOwner:
		return "🏠 Я власник"
	case RoleRoommate:
		return "👥 Я співмешканець"
	default:
		return string(r)
	}
}

// ParseRole decodes a role from a button payload value or its exact label.
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	for _, r := range []Role{RoleOwner, RoleRoommate} {
		if s == string(r) || s == r.Label() {
			return r, true
		}
	}
	return "", false
}

// DocumentType is one of the two accepted ownership document categories.
type DocumentType string

const (
	DocInvestmentContract DocumentType = "investment"
	DocOwnershipExtract   DocumentType = "ownership"
)

// DocumentTypes lists the accepted categories in prompt order.
var DocumentTypes = []DocumentType{DocInvestmentContract, DocOwnershipExtract}

// Label returns the localized label, which is also the value the
// classifier is asked to return.
func (d DocumentType) Label() string {
	switch d {
	case DocInvestmentContract:
		return "Договір інвестування"
	case DocOwnershipExtract:
		return "Витяг про право власності"
	default:
		return string(d)
	}
}

// ParseDocumentType decodes a document type from a payload value or exact label
// (case-insensitive, surrounding space ignored).
func ParseDocumentType(s string) (DocumentType, bool) {
	s = strings.TrimSpace(s)
	for _, d := range DocumentTypes {
		if s == string(d) || strings.EqualFold(s, d.Label()) {
			return d, true
		}
	}
	return "", false
}

// MediaKind tells how the uploaded document arrived.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
)

// MediaRef points to a file already stored on the chat platform.
type MediaRef struct {
	Kind     MediaKind `json:"kind"`
	FileID   string    `json:"file_id"`
	MimeType string    `json:"mime_type,omitempty"`
	FileName string    `json:"file_name,omitempty"`
}

// Requester is the person going through the intake conversation.
type Requester struct {
	SubjectID   int64  `json:"subject_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name,omitempty"`
	Username    string `json:"username,omitempty"`
	PhoneRaw    string `json:"phone_raw"`
	PhoneNormal string `json:"phone_normal"`
	Role        Role   `json:"role"`
}

// DisplayName joins first and last name.
func (r Requester) DisplayName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// Handle renders the username with its marker, or a placeholder.
func (r Requester) Handle() string {
	if r.Username == "" {
		return "—"
	}
	return "@" + r.Username
}

// DocumentRecord holds the apartment data taken from the uploaded document.
type DocumentRecord struct {
	ApartmentID string       `json:"apartment_id"`
	Area        string       `json:"area"`
	Type        DocumentType `json:"type"`
	Media       MediaRef     `json:"media"`
}

// Complete reports whether apartment id, area and type are all present.
func (d DocumentRecord) Complete() bool {
	return strings.TrimSpace(d.ApartmentID) != "" &&
		strings.TrimSpace(d.Area) != "" &&
		d.Type != ""
}

// PendingRequest is an owner request waiting for an administrator.
type PendingRequest struct {
	ID          string         `json:"id"`
	Requester   Requester      `json:"requester"`
	Document    DocumentRecord `json:"document"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// OwnerRecord is a projection of one ledger row.
type OwnerRecord struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Username    string `json:"username,omitempty"`
	ApartmentID string `json:"apartment_id"`
	SubjectID   int64  `json:"subject_id,omitempty"`
}

// RoommateApprovalRequest is a roommate request waiting for the apartment owner.
type RoommateApprovalRequest struct {
	ID          string      `json:"id"`
	Roommate    Requester   `json:"roommate"`
	Owner       OwnerRecord `json:"owner"`
	ApartmentID string      `json:"apartment_id"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Action is the decision carried by an approval button.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ApprovalPayload is the decoded callback data of an approval button.
type ApprovalPayload struct {
	Action    Action
	Roommate  bool
	SubjectID int64
}

// String encodes the payload as `<action>_<id>` or `<action>_roommate_<id>`.
func (p ApprovalPayload) String() string {
	if p.Roommate {
		return fmt.Sprintf("%s_roommate_%d", p.Action, p.SubjectID)
	}
	return fmt.Sprintf("%s_%d", p.Action, p.SubjectID)
}
