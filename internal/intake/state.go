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

package intake

import "github.com/bcem/accessbot/internal/models"

// state is the step a conversation is at. Each variant carries only the
// data collected so far.
type state interface {
	name() string
}

// awaitPhone waits for the requester's own contact.
type awaitPhone struct{}

// awaitRole waits for the owner/roommate choice.
type awaitRole struct {
	requester models.Requester
}

// awaitOwnerLookup waits for the owner's phone or username (roommates only).
type awaitOwnerLookup struct {
	requester models.Requester
}

// awaitDocument waits for a photo or file of the ownership document.
type awaitDocument struct {
	requester models.Requester
}

// awaitApartment waits for the apartment number typed by hand.
type awaitApartment struct {
	requester models.Requester
	media     models.MediaRef
}

// awaitArea waits for the apartment area.
type awaitArea struct {
	requester models.Requester
	media     models.MediaRef
	apartment string
}

// awaitDocType waits for one of the document type buttons.
type awaitDocType struct {
	requester models.Requester
	media     models.MediaRef
	apartment string
	area      string
}

// awaitConfirm shows the collected data and waits for yes or no.
type awaitConfirm struct {
	requester models.Requester
	document  models.DocumentRecord
}

func (awaitPhone) name() string       { return "phone" }
func (awaitRole) name() string        { return "role" }
func (awaitOwnerLookup) name() string { return "owner_lookup" }
func (awaitDocument) name() string    { return "document" }
func (awaitApartment) name() string   { return "apartment_id" }
func (awaitArea) name() string        { return "area" }
func (awaitDocType) name() string     { return "doc_type" }
func (awaitConfirm) name() string     { return "confirm" }
