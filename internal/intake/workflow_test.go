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

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/bcem/accessbot/internal/approval"
	"github.com/bcem/accessbot/internal/audit"
	"github.com/bcem/accessbot/internal/classifier"
	"github.com/bcem/accessbot/internal/models"
	"github.com/bcem/accessbot/internal/pending"
	"github.com/bcem/accessbot/internal/telegram"
	"github.com/bcem/accessbot/internal/telegram/telegramtest"
)

const (
	userID    int64 = 555
	adminChat int64 = -1001
	ownerID   int64 = 777
)

// fakeModel answers every classification with reply.
type fakeModel struct {
	reply string
	got   []*schema.Message
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = input
	return &schema.Message{Role: schema.Assistant, Content: f.reply}, nil
}

// fakeOwners resolves owners from a fixed table.
type fakeOwners struct {
	owners map[string]models.OwnerRecord
	err    error
}

func (f *fakeOwners) FindOwner(_ context.Context, search string) (models.OwnerRecord, bool, error) {
	if f.err != nil {
		return models.OwnerRecord{}, false, f.err
	}
	o, ok := f.owners[search]
	return o, ok, nil
}

// blockingOwners holds FindOwner until release is closed.
type blockingOwners struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingOwners) FindOwner(ctx context.Context, _ string) (models.OwnerRecord, bool, error) {
	close(b.entered)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return models.OwnerRecord{}, false, nil
}

type nopLedger struct{}

func (nopLedger) AppendApproved(context.Context, models.PendingRequest, string, string) error {
	return nil
}

func (nopLedger) AppendRoommate(context.Context, models.Requester, models.OwnerRecord, string) error {
	return nil
}

type harness struct {
	wf     *Workflow
	bot    *telegramtest.Bot
	store  *pending.Store
	model  *fakeModel
	owners *fakeOwners
}

func newHarness(t *testing.T, reply string) *harness {
	t.Helper()
	h := &harness{
		bot:    telegramtest.New(),
		store:  pending.NewStore(),
		owners: &fakeOwners{owners: map[string]models.OwnerRecord{}},
	}
	var cls *classifier.Classifier
	if reply != "" {
		h.model = &fakeModel{reply: reply}
		cls = classifier.New(h.model)
	} else {
		cls = classifier.New(nil)
	}
	coord := approval.NewCoordinator(approval.Config{AdminChatID: adminChat, PrivateChatID: -1002},
		h.bot, nopLedger{}, h.store, &audit.Memory{})
	h.wf = New(h.bot, h.owners, cls, coord)
	return h
}

func (h *harness) say(t *testing.T, m *telegram.Message) {
	t.Helper()
	if m.From == nil {
		m.From = &telegram.User{ID: userID, FirstName: "Olena", Username: "olena"}
	}
	m.Chat = telegram.Chat{ID: userID, Type: telegram.ChatPrivate}
	if err := h.wf.HandleMessage(context.Background(), m); err != nil {
		t.Fatalf("HandleMessage(%q): %v", m.Text, err)
	}
}

func (h *harness) text(t *testing.T, s string) {
	t.Helper()
	h.say(t, &telegram.Message{Text: s})
}

func (h *harness) press(t *testing.T, field, value string) error {
	t.Helper()
	cq := &telegram.CallbackQuery{
		ID:      "cb",
		From:    telegram.User{ID: userID, FirstName: "Olena", Username: "olena"},
		Message: &telegram.Message{MessageID: 1, Chat: telegram.Chat{ID: userID}},
		Data:    CallbackPrefix + field + ":" + value,
	}
	handled, err := h.wf.HandleCallback(context.Background(), cq)
	if !handled {
		t.Fatalf("callback %s not handled", cq.Data)
	}
	return err
}

func (h *harness) last() string {
	return h.bot.Last(userID).Text
}

// startAsOwner walks through /start, contact and the owner role.
func (h *harness) startAsOwner(t *testing.T) {
	t.Helper()
	h.text(t, "/start")
	h.say(t, &telegram.Message{Contact: &telegram.Contact{PhoneNumber: "0501234567", UserID: userID}})
	if got := h.last(); got != msgChooseRole {
		t.Fatalf("after contact: %q", got)
	}
	if err := h.press(t, fieldRole, string(models.RoleOwner)); err != nil {
		t.Fatal(err)
	}
	if got := h.last(); got != msgOwnerDocument {
		t.Fatalf("after role: %q", got)
	}
}

func pngPhoto(h *harness) *telegram.Message {
	h.bot.Files["photo-big"] = &telegram.Download{Data: []byte{0x89, 'P', 'N', 'G'}, MimeType: "image/png"}
	return &telegram.Message{Photo: []telegram.PhotoSize{{FileID: "photo-small"}, {FileID: "photo-big"}}}
}

// TestOwnerFlow_FileAttachmentManualEntry covers an owner sending a PDF and
// typing the data by hand.
func TestOwnerFlow_FileAttachmentManualEntry(t *testing.T) {
	h := newHarness(t, `{"apartment_number":"1","area":"2","document_type":"Договір інвестування"}`)
	h.startAsOwner(t)

	h.say(t, &telegram.Message{Document: &telegram.Document{FileID: "doc-1", FileName: "extract.pdf", MimeType: "application/pdf"}})
	if got := h.last(); got != msgNotRecognized {
		t.Fatalf("after PDF: %q", got)
	}
	if n := len(h.bot.Calls("downloadFile")); n != 0 {
		t.Errorf("PDF should not be downloaded for classification, got %d downloads", n)
	}

	h.text(t, "12")
	h.text(t, "34")
	if got := h.last(); got != msgAskDocType {
		t.Fatalf("after area: %q", got)
	}
	if err := h.press(t, fieldDocType, string(models.DocOwnershipExtract)); err != nil {
		t.Fatal(err)
	}
	if got := h.last(); !strings.Contains(got, "Квартира: 12") {
		t.Fatalf("confirmation = %q", got)
	}
	if err := h.press(t, fieldConfirm, string(AnswerYes)); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	posted := h.bot.Last(adminChat)
	if posted.Method != "sendDocument" || posted.FileID != "doc-1" {
		t.Errorf("admin notification = %s %s, want sendDocument doc-1", posted.Method, posted.FileID)
	}
	req, ok := h.store.Request(userID)
	if !ok {
		t.Fatal("request should be pending")
	}
	if req.Requester.PhoneNormal != "380501234567" || req.Document.Area != "34" || req.Document.Type != models.DocOwnershipExtract {
		t.Errorf("pending request = %+v", req)
	}
	if h.wf.active(userID) {
		t.Error("conversation should end after submission")
	}
}

// TestOwnerFlow_ClassifiedPhoto verifies a complete classification goes
// straight to confirmation and the processing message is removed.
func TestOwnerFlow_ClassifiedPhoto(t *testing.T) {
	h := newHarness(t, `{"apartment_number":"123","area":"45.6","document_type":"Договір інвестування"}`)
	h.startAsOwner(t)

	h.say(t, pngPhoto(h))

	if got := h.last(); got != confirmText(models.DocumentRecord{ApartmentID: "123", Area: "45.6", Type: models.DocInvestmentContract}) {
		t.Fatalf("after photo: %q", got)
	}

	var processingID int64
	for _, c := range h.bot.SentTo(userID) {
		if c.Text == msgProcessing {
			processingID = c.MessageID
		}
	}
	deleted := h.bot.Calls("deleteMessage")
	if processingID == 0 || len(deleted) != 1 || deleted[0].MessageID != processingID {
		t.Errorf("processing message %d, deletions %+v", processingID, deleted)
	}

	var imageURL string
	for _, p := range h.model.got[0].MultiContent {
		if p.ImageURL != nil {
			imageURL = p.ImageURL.URL
		}
	}
	if !strings.HasPrefix(imageURL, "data:image/png;base64,") {
		t.Errorf("image URL = %.40q", imageURL)
	}

	if err := h.press(t, fieldConfirm, string(AnswerYes)); err != nil {
		t.Fatal(err)
	}
	if posted := h.bot.Last(adminChat); posted.Method != "sendPhoto" || posted.FileID != "photo-big" {
		t.Errorf("admin notification = %s %s, want sendPhoto of the largest size", posted.Method, posted.FileID)
	}
}

// TestOwnerFlow_IncompleteClassification verifies a missing field falls back
// to manual entry.
func TestOwnerFlow_IncompleteClassification(t *testing.T) {
	h := newHarness(t, `{"apartment_number":"123","area":null,"document_type":"Договір інвестування"}`)
	h.startAsOwner(t)

	h.say(t, pngPhoto(h))
	if got := h.last(); got != msgNotRecognized {
		t.Errorf("after photo: %q", got)
	}
}

// TestOwnerFlow_ConfirmNoRestartsManualEntry verifies classifier values are
// discarded when the requester rejects them.
func TestOwnerFlow_ConfirmNoRestartsManualEntry(t *testing.T) {
	h := newHarness(t, `{"apartment_number":"123","area":"45.6","document_type":"Договір інвестування"}`)
	h.startAsOwner(t)
	h.say(t, pngPhoto(h))

	if err := h.press(t, fieldConfirm, string(AnswerNo)); err != nil {
		t.Fatal(err)
	}
	if got := h.last(); got != msgAskApartment {
		t.Fatalf("after no: %q", got)
	}

	h.text(t, "15")
	h.text(t, "40")
	h.text(t, models.DocOwnershipExtract.Label())
	if got := h.last(); !strings.Contains(got, "Квартира: 15") || strings.Contains(got, "123") {
		t.Fatalf("confirmation = %q", got)
	}

	// typing the label works like the button
	h.text(t, AnswerYes.Label())
	req, ok := h.store.Request(userID)
	if !ok || req.Document.ApartmentID != "15" || req.Document.Media.FileID != "photo-big" {
		t.Errorf("pending request = %+v, %v", req, ok)
	}
}

// TestPhone_Validation verifies only the sender's own contact is accepted.
func TestPhone_Validation(t *testing.T) {
	h := newHarness(t, "")
	h.text(t, "/start")

	h.text(t, "0501234567")
	if got := h.last(); got != msgNeedContact {
		t.Errorf("typed phone: %q", got)
	}

	h.say(t, &telegram.Message{Contact: &telegram.Contact{PhoneNumber: "0671112233", UserID: 999}})
	if got := h.last(); got != msgForeignContact {
		t.Errorf("foreign contact: %q", got)
	}

	h.say(t, &telegram.Message{Contact: &telegram.Contact{PhoneNumber: "+380501234567", UserID: userID}})
	if got := h.last(); got != msgChooseRole {
		t.Errorf("own contact: %q", got)
	}
}

// TestRole_Validation verifies free text is not accepted as a role.
func TestRole_Validation(t *testing.T) {
	h := newHarness(t, "")
	h.text(t, "/start")
	h.say(t, &telegram.Message{Contact: &telegram.Contact{PhoneNumber: "0501234567", UserID: userID}})

	h.text(t, "я власник квартири")
	if got := h.last(); got != msgChooseRole {
		t.Errorf("free text: %q", got)
	}
	if err := h.press(t, fieldConfirm, string(AnswerYes)); err != nil {
		t.Fatal(err)
	}
	if got := h.last(); got != msgChooseRole {
		t.Errorf("wrong button: %q", got)
	}

	h.text(t, models.RoleRoommate.Label())
	if got := h.last(); got != msgAskOwner {
		t.Errorf("roommate label: %q", got)
	}
}

// TestRoommateFlow_OwnerLookup verifies the terminal outcomes of the lookup.
func TestRoommateFlow_OwnerLookup(t *testing.T) {
	tests := []struct {
		name      string
		search    string
		owners    map[string]models.OwnerRecord
		lookupErr error
		want      string
		asked     bool
	}{
		{
			name:   "not found",
			search: "@nobody",
			want:   msgOwnerNotFound,
		},
		{
			name:   "owner without telegram id",
			search: "0501234567",
			owners: map[string]models.OwnerRecord{"0501234567": {Name: "Petro", ApartmentID: "12"}},
			want:   msgOwnerNoID,
		},
		{
			name:      "ledger unavailable",
			search:    "@petro",
			lookupErr: errors.New("sheets 503"),
			want:      msgLedgerDown,
		},
		{
			name:   "owner asked",
			search: "@petro",
			owners: map[string]models.OwnerRecord{"@petro": {Name: "Petro", ApartmentID: "12", SubjectID: ownerID}},
			want:   msgOwnerAsked,
			asked:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "")
			if tt.owners != nil {
				h.owners.owners = tt.owners
			}
			h.owners.err = tt.lookupErr

			h.text(t, "/start")
			h.say(t, &telegram.Message{Contact: &telegram.Contact{PhoneNumber: "0671112233", UserID: userID}})
			if err := h.press(t, fieldRole, string(models.RoleRoommate)); err != nil {
				t.Fatal(err)
			}
			h.text(t, tt.search)

			if got := h.last(); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
			if h.wf.active(userID) {
				t.Error("owner lookup always ends the conversation")
			}
			_, asked := h.store.Roommate(userID)
			if asked != tt.asked {
				t.Errorf("roommate request pending = %v, want %v", asked, tt.asked)
			}
			if tt.asked && len(h.bot.SentTo(ownerID)) != 1 {
				t.Error("owner should receive the request")
			}
		})
	}
}

// TestCancel verifies /cancel ends the conversation from any step.
func TestCancel(t *testing.T) {
	h := newHarness(t, "")
	h.startAsOwner(t)

	h.text(t, "/cancel")
	if got := h.last(); got != msgCancelled {
		t.Errorf("cancel reply = %q", got)
	}
	if h.wf.active(userID) {
		t.Error("conversation should be gone")
	}

	h.text(t, "12")
	if got := h.last(); got != msgNoConversation {
		t.Errorf("text after cancel = %q", got)
	}
}

// TestStart_Resets verifies /start discards collected data.
func TestStart_Resets(t *testing.T) {
	h := newHarness(t, "")
	h.startAsOwner(t)

	h.text(t, "/start")
	h.text(t, "12")
	if got := h.last(); got != msgNeedContact {
		t.Errorf("after restart = %q, want contact prompt", got)
	}
}

// TestStart_DuringOwnerLookup verifies a /start arriving while the owner
// lookup is in flight begins a new conversation that the finishing lookup
// does not remove.
func TestStart_DuringOwnerLookup(t *testing.T) {
	h := newHarness(t, "")
	owners := &blockingOwners{entered: make(chan struct{}), release: make(chan struct{})}
	h.wf.owners = owners
	t.Cleanup(func() {
		select {
		case <-owners.release:
		default:
			close(owners.release)
		}
	})

	h.text(t, "/start")
	h.say(t, &telegram.Message{Contact: &telegram.Contact{PhoneNumber: "0501234567", UserID: userID}})
	if err := h.press(t, fieldRole, string(models.RoleRoommate)); err != nil {
		t.Fatal(err)
	}
	if got := h.last(); got != msgAskOwner {
		t.Fatalf("after role: %q", got)
	}

	from := &telegram.User{ID: userID, FirstName: "Olena", Username: "olena"}
	chat := telegram.Chat{ID: userID, Type: telegram.ChatPrivate}
	lookupDone := make(chan error, 1)
	go func() {
		lookupDone <- h.wf.HandleMessage(context.Background(), &telegram.Message{From: from, Chat: chat, Text: "@owner"})
	}()
	<-owners.entered

	startDone := make(chan error, 1)
	go func() {
		startDone <- h.wf.HandleMessage(context.Background(), &telegram.Message{From: from, Chat: chat, Text: "/start"})
	}()
	select {
	case err := <-startDone:
		if err != nil {
			t.Fatalf("/start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("/start waited for the running owner lookup")
	}

	close(owners.release)
	if err := <-lookupDone; err != nil {
		t.Fatalf("lookup: %v", err)
	}

	if !h.wf.active(userID) {
		t.Fatal("finished lookup removed the new conversation")
	}
	h.say(t, &telegram.Message{Contact: &telegram.Contact{PhoneNumber: "0501234567", UserID: userID}})
	if got := h.last(); got != msgChooseRole {
		t.Errorf("contact after restart = %q, want role prompt", got)
	}
}

// TestSubmitFailure_KeepsConfirmation verifies the requester can retry after
// the admin chat was unreachable.
func TestSubmitFailure_KeepsConfirmation(t *testing.T) {
	h := newHarness(t, "")
	h.startAsOwner(t)
	h.say(t, pngPhoto(h))
	h.text(t, "12")
	h.text(t, "34")
	if err := h.press(t, fieldDocType, string(models.DocInvestmentContract)); err != nil {
		t.Fatal(err)
	}

	h.bot.SendErr[adminChat] = errors.New("chat not found")
	if err := h.press(t, fieldConfirm, string(AnswerYes)); err == nil {
		t.Fatal("expected the admin failure to propagate")
	}
	if got := h.last(); got != msgSubmitFailed {
		t.Errorf("reply = %q", got)
	}
	if !h.wf.active(userID) {
		t.Fatal("conversation should stay at confirmation")
	}

	delete(h.bot.SendErr, adminChat)
	if err := h.press(t, fieldConfirm, string(AnswerYes)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if h.bot.Last(adminChat).Method != "sendPhoto" {
		t.Error("retry should reach the admin chat")
	}
}

// TestHandleCallback_ForeignPayload verifies approval payloads are left alone.
func TestHandleCallback_ForeignPayload(t *testing.T) {
	h := newHarness(t, "")
	handled, err := h.wf.HandleCallback(context.Background(), &telegram.CallbackQuery{Data: "approve_1"})
	if handled || err != nil {
		t.Errorf("handled = %v, err = %v", handled, err)
	}
}
