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

// Package pending holds requests that are waiting for a human decision:
// owner requests waiting for an administrator, roommate requests waiting for
// the apartment owner, and rejection dialogs waiting for a reason reply.
//
// State is process-local; a restart drops everything in flight.
package pending

import (
	"sync"

	"github.com/bcem/accessbot/internal/models"
)

// DialogKey identifies the admin message a rejection reason must reply to.
type DialogKey struct {
	ChatID    int64
	MessageID int64
}

// Store is the in-memory table of in-flight requests. All methods are safe
// for concurrent use. Callers that check, act and remove must hold the
// subject lock from LockRequest or LockRoommate for the whole sequence.
type Store struct {
	mu        sync.Mutex
	requests  map[int64]models.PendingRequest
	roommates map[int64]models.RoommateApprovalRequest
	dialogs   map[DialogKey]int64

	locks *keyedMutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		requests:  make(map[int64]models.PendingRequest),
		roommates: make(map[int64]models.RoommateApprovalRequest),
		dialogs:   make(map[DialogKey]int64),
		locks:     newKeyedMutex(),
	}
}

// PutRequest stores r under its subject id, replacing any earlier entry.
func (s *Store) PutRequest(r models.PendingRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.Requester.SubjectID] = r
}

// Request returns the pending owner request of subjectID.
func (s *Store) Request(subjectID int64) (models.PendingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[subjectID]
	return r, ok
}

// RemoveRequest deletes the pending owner request and reports whether it existed.
func (s *Store) RemoveRequest(subjectID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.requests[subjectID]
	delete(s.requests, subjectID)
	return ok
}

// PutRoommate stores r under the roommate's subject id.
func (s *Store) PutRoommate(r models.RoommateApprovalRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roommates[r.Roommate.SubjectID] = r
}

// Roommate returns the pending roommate request of subjectID.
func (s *Store) Roommate(subjectID int64) (models.RoommateApprovalRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roommates[subjectID]
	return r, ok
}

// RemoveRoommate deletes the pending roommate request and reports whether it existed.
func (s *Store) RemoveRoommate(subjectID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.roommates[subjectID]
	delete(s.roommates, subjectID)
	return ok
}

// OpenDialog records that a reply to key carries the rejection reason for subjectID.
func (s *Store) OpenDialog(key DialogKey, subjectID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialogs[key] = subjectID
}

// Dialog returns the subject awaiting a rejection reason on key.
func (s *Store) Dialog(key DialogKey) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.dialogs[key]
	return id, ok
}

// CloseDialog forgets the rejection dialog on key.
func (s *Store) CloseDialog(key DialogKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dialogs, key)
}

// Counts reports the number of entries in each table.
func (s *Store) Counts() (requests, roommates, dialogs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests), len(s.roommates), len(s.dialogs)
}

// LockRequest serializes decisions on the owner request of subjectID.
// The returned function releases the lock.
func (s *Store) LockRequest(subjectID int64) func() {
	return s.locks.lock(lockKey{track: trackAdmin, id: subjectID})
}

// LockRoommate serializes decisions on the roommate request of subjectID.
func (s *Store) LockRoommate(subjectID int64) func() {
	return s.locks.lock(lockKey{track: trackOwner, id: subjectID})
}
