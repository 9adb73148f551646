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

// Package intake drives the private-chat conversation that collects a
// requester's phone, role and ownership document, and hands the finished
// request to the approval side.
package intake

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/bcem/accessbot/internal/classifier"
	"github.com/bcem/accessbot/internal/models"
	"github.com/bcem/accessbot/internal/phone"
	"github.com/bcem/accessbot/internal/telegram"
)

// Bot is the part of the Bot API the workflow uses.
type Bot interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup telegram.Markup) (*telegram.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	DownloadFile(ctx context.Context, fileID string) (*telegram.Download, error)
}

// OwnerFinder looks an apartment owner up in the ledger.
type OwnerFinder interface {
	FindOwner(ctx context.Context, search string) (models.OwnerRecord, bool, error)
}

// Classifier extracts document fields from an image.
type Classifier interface {
	Enabled() bool
	Classify(ctx context.Context, in classifier.Input) *classifier.Result
}

// Submitter receives finished requests.
type Submitter interface {
	Submit(ctx context.Context, r models.Requester, doc models.DocumentRecord) error
	RequestOwnerApproval(ctx context.Context, roommate models.Requester, owner models.OwnerRecord) error
}

// conversation is one requester's progress, serialized by mu.
type conversation struct {
	mu    sync.Mutex
	state state
}

// Workflow holds every active conversation.
type Workflow struct {
	bot        Bot
	owners     OwnerFinder
	classifier Classifier
	submitter  Submitter

	mu            sync.Mutex
	conversations map[int64]*conversation
}

// New creates a workflow.
func New(bot Bot, owners OwnerFinder, cls Classifier, submitter Submitter) *Workflow {
	return &Workflow{
		bot:           bot,
		owners:        owners,
		classifier:    cls,
		submitter:     submitter,
		conversations: make(map[int64]*conversation),
	}
}

// input is a message or button press from the requester.
type input struct {
	chatID  int64
	from    telegram.User
	msg     *telegram.Message
	choice  *choice
	text    string
	command string
}

// HandleMessage processes a private-chat message. The only error returned is
// a failure to hand a finished request to the administrators.
func (w *Workflow) HandleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.From == nil {
		return nil
	}
	in := input{
		chatID:  msg.Chat.ID,
		from:    *msg.From,
		msg:     msg,
		text:    strings.TrimSpace(msg.Text),
		command: msg.Command(),
	}
	return w.dispatch(ctx, in)
}

// HandleCallback processes an intake button press. It reports false when the
// payload does not belong to the workflow.
func (w *Workflow) HandleCallback(ctx context.Context, cq *telegram.CallbackQuery) (bool, error) {
	ch, ok := parseCallback(cq.Data)
	if !ok {
		return false, nil
	}
	chatID := cq.From.ID
	if cq.Message != nil {
		chatID = cq.Message.Chat.ID
	}
	return true, w.dispatch(ctx, input{chatID: chatID, from: cq.From, choice: &ch})
}

func (w *Workflow) dispatch(ctx context.Context, in input) error {
	switch in.command {
	case "start":
		conv := &conversation{state: awaitPhone{}}
		conv.mu.Lock()
		defer conv.mu.Unlock()
		w.begin(in.from.ID, conv)
		w.send(ctx, in.chatID, msgWelcome, telegram.ContactKeyboard(msgShareContact))
		return nil
	case "cancel":
		w.drop(in.from.ID)
		w.send(ctx, in.chatID, msgCancelled, telegram.RemoveKeyboard())
		return nil
	case "help":
		w.send(ctx, in.chatID, msgHelp, nil)
		return nil
	}

	conv := w.lock(in.from.ID)
	if conv == nil {
		if in.choice == nil {
			w.send(ctx, in.chatID, msgNoConversation, nil)
		}
		return nil
	}
	defer conv.mu.Unlock()

	next, err := w.step(ctx, conv.state, in)
	if next == nil {
		w.end(in.from.ID, conv)
		conv.state = nil
	} else {
		if next.name() != conv.state.name() {
			slog.Debug("intake transition", "subject_id", in.from.ID, "from", conv.state.name(), "to", next.name())
		}
		conv.state = next
	}
	return err
}

// step runs the handler of the current state and returns the next state;
// nil ends the conversation.
func (w *Workflow) step(ctx context.Context, st state, in input) (state, error) {
	switch s := st.(type) {
	case awaitPhone:
		return w.onPhone(ctx, s, in), nil
	case awaitRole:
		return w.onRole(ctx, s, in), nil
	case awaitOwnerLookup:
		return w.onOwnerLookup(ctx, s, in), nil
	case awaitDocument:
		return w.onDocument(ctx, s, in), nil
	case awaitApartment:
		return w.onApartment(ctx, s, in), nil
	case awaitArea:
		return w.onArea(ctx, s, in), nil
	case awaitDocType:
		return w.onDocType(ctx, s, in), nil
	case awaitConfirm:
		return w.onConfirm(ctx, s, in)
	default:
		return nil, errors.New("unknown intake state")
	}
}

func (w *Workflow) onPhone(ctx context.Context, s awaitPhone, in input) state {
	if in.msg == nil || in.msg.Contact == nil {
		w.send(ctx, in.chatID, msgNeedContact, telegram.ContactKeyboard(msgShareContact))
		return s
	}
	c := in.msg.Contact
	if c.UserID != in.from.ID {
		w.send(ctx, in.chatID, msgForeignContact, telegram.ContactKeyboard(msgShareContact))
		return s
	}

	r := models.Requester{
		SubjectID:   in.from.ID,
		FirstName:   in.from.FirstName,
		LastName:    in.from.LastName,
		Username:    in.from.Username,
		PhoneRaw:    c.PhoneNumber,
		PhoneNormal: phone.Normalize(c.PhoneNumber),
	}
	if r.PhoneNormal == "" {
		slog.Info("contact phone outside the national numbering plan", "subject_id", r.SubjectID)
	}

	w.send(ctx, in.chatID, msgContactOK, telegram.RemoveKeyboard())
	w.send(ctx, in.chatID, msgChooseRole, roleKeyboard())
	return awaitRole{requester: r}
}

func (w *Workflow) onRole(ctx context.Context, s awaitRole, in input) state {
	role, ok := decode(in, fieldRole, models.ParseRole)
	if !ok {
		w.send(ctx, in.chatID, msgChooseRole, roleKeyboard())
		return s
	}

	r := s.requester
	r.Role = role
	if role == models.RoleRoommate {
		w.send(ctx, in.chatID, msgAskOwner, nil)
		return awaitOwnerLookup{requester: r}
	}
	w.send(ctx, in.chatID, msgOwnerDocument, nil)
	return awaitDocument{requester: r}
}

func (w *Workflow) onOwnerLookup(ctx context.Context, s awaitOwnerLookup, in input) state {
	if in.text == "" {
		w.send(ctx, in.chatID, msgAskOwner, nil)
		return s
	}

	owner, found, err := w.owners.FindOwner(ctx, in.text)
	switch {
	case err != nil:
		slog.Error("owner lookup failed", "subject_id", in.from.ID, "error", err)
		w.send(ctx, in.chatID, msgLedgerDown, nil)
		return nil
	case !found:
		w.send(ctx, in.chatID, msgOwnerNotFound, nil)
		return nil
	case owner.SubjectID == 0:
		w.send(ctx, in.chatID, msgOwnerNoID, nil)
		return nil
	}

	if err := w.submitter.RequestOwnerApproval(ctx, s.requester, owner); err != nil {
		slog.Error("failed to ask owner", "subject_id", in.from.ID, "owner_id", owner.SubjectID, "error", err)
		w.send(ctx, in.chatID, msgOwnerUnreached, nil)
		return nil
	}
	w.send(ctx, in.chatID, msgOwnerAsked, nil)
	return nil
}

func (w *Workflow) onDocument(ctx context.Context, s awaitDocument, in input) state {
	media, ok := mediaOf(in.msg)
	if !ok {
		w.send(ctx, in.chatID, msgNeedDocument, nil)
		return s
	}

	var processingID int64
	if m, err := w.bot.SendMessage(ctx, in.chatID, msgProcessing, nil); err == nil {
		processingID = m.MessageID
	}

	res := w.classify(ctx, media)

	if processingID != 0 {
		if err := w.bot.DeleteMessage(ctx, in.chatID, processingID); err != nil {
			slog.Debug("failed to delete processing message", "chat_id", in.chatID, "error", err)
		}
	}

	if doc, ok := res.Document(media); ok {
		w.send(ctx, in.chatID, confirmText(doc), confirmKeyboard())
		return awaitConfirm{requester: s.requester, document: doc}
	}

	w.send(ctx, in.chatID, msgNotRecognized, nil)
	return awaitApartment{requester: s.requester, media: media}
}

// classify downloads an image attachment and runs the classifier on it.
// Non-image files and any failure yield nil.
func (w *Workflow) classify(ctx context.Context, media models.MediaRef) *classifier.Result {
	if w.classifier == nil || !w.classifier.Enabled() {
		return nil
	}
	if media.Kind == models.MediaDocument && !strings.HasPrefix(media.MimeType, "image/") {
		return nil
	}

	dl, err := w.bot.DownloadFile(ctx, media.FileID)
	if err != nil {
		slog.Warn("failed to download document", "file_id", media.FileID, "error", err)
		return nil
	}
	mime := dl.MimeType
	if !strings.HasPrefix(mime, "image/") {
		mime = media.MimeType
	}
	return w.classifier.Classify(ctx, classifier.Input{Data: dl.Data, MimeType: mime})
}

func (w *Workflow) onApartment(ctx context.Context, s awaitApartment, in input) state {
	if in.text == "" || in.command != "" {
		w.send(ctx, in.chatID, msgNeedText+"\n"+msgAskApartment, nil)
		return s
	}
	w.send(ctx, in.chatID, msgAskArea, nil)
	return awaitArea{requester: s.requester, media: s.media, apartment: in.text}
}

func (w *Workflow) onArea(ctx context.Context, s awaitArea, in input) state {
	if in.text == "" || in.command != "" {
		w.send(ctx, in.chatID, msgNeedText+"\n"+msgAskArea, nil)
		return s
	}
	w.send(ctx, in.chatID, msgAskDocType, docTypeKeyboard())
	return awaitDocType{requester: s.requester, media: s.media, apartment: s.apartment, area: in.text}
}

func (w *Workflow) onDocType(ctx context.Context, s awaitDocType, in input) state {
	dt, ok := decode(in, fieldDocType, models.ParseDocumentType)
	if !ok {
		w.send(ctx, in.chatID, msgUseButtons, docTypeKeyboard())
		return s
	}

	doc := models.DocumentRecord{
		ApartmentID: s.apartment,
		Area:        s.area,
		Type:        dt,
		Media:       s.media,
	}
	w.send(ctx, in.chatID, confirmText(doc), confirmKeyboard())
	return awaitConfirm{requester: s.requester, document: doc}
}

func (w *Workflow) onConfirm(ctx context.Context, s awaitConfirm, in input) (state, error) {
	answer, ok := decode(in, fieldConfirm, parseAnswer)
	if !ok {
		w.send(ctx, in.chatID, msgUseButtons, confirmKeyboard())
		return s, nil
	}

	if answer == AnswerNo {
		w.send(ctx, in.chatID, msgAskApartment, nil)
		return awaitApartment{requester: s.requester, media: s.document.Media}, nil
	}

	if err := w.submitter.Submit(ctx, s.requester, s.document); err != nil {
		w.send(ctx, in.chatID, msgSubmitFailed, confirmKeyboard())
		return s, err
	}
	return nil, nil
}

// decode reads a fixed choice from a button of the given field, or from
// text equal to one of the labels.
func decode[T any](in input, field string, parse func(string) (T, bool)) (T, bool) {
	if in.choice != nil {
		if in.choice.field != field {
			var zero T
			return zero, false
		}
		return parse(in.choice.value)
	}
	return parse(in.text)
}

// mediaOf extracts the document reference from a photo or file message.
func mediaOf(m *telegram.Message) (models.MediaRef, bool) {
	if m == nil {
		return models.MediaRef{}, false
	}
	if p := m.LargestPhoto(); p != nil {
		return models.MediaRef{Kind: models.MediaPhoto, FileID: p.FileID, MimeType: "image/jpeg"}, true
	}
	if d := m.Document; d != nil {
		return models.MediaRef{Kind: models.MediaDocument, FileID: d.FileID, MimeType: d.MimeType, FileName: d.FileName}, true
	}
	return models.MediaRef{}, false
}

// begin installs conv as the subject's conversation, replacing any other.
// A replaced conversation still running a step finishes on its own copy.
func (w *Workflow) begin(subjectID int64, conv *conversation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conversations[subjectID] = conv
}

func (w *Workflow) current(subjectID int64) *conversation {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conversations[subjectID]
}

// lock returns the subject's conversation with its mutex held, or nil when
// there is none. A conversation ended or replaced while waiting is skipped.
func (w *Workflow) lock(subjectID int64) *conversation {
	for {
		conv := w.current(subjectID)
		if conv == nil {
			return nil
		}
		conv.mu.Lock()
		if w.current(subjectID) == conv {
			return conv
		}
		conv.mu.Unlock()
	}
}

// end removes conv if it is still the subject's conversation.
func (w *Workflow) end(subjectID int64, conv *conversation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conversations[subjectID] == conv {
		delete(w.conversations, subjectID)
	}
}

// drop removes whatever conversation the subject has.
func (w *Workflow) drop(subjectID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.conversations, subjectID)
}

// active reports whether the subject has a conversation in progress.
func (w *Workflow) active(subjectID int64) bool {
	return w.current(subjectID) != nil
}

func (w *Workflow) send(ctx context.Context, chatID int64, text string, markup telegram.Markup) {
	if _, err := w.bot.SendMessage(ctx, chatID, text, markup); err != nil {
		slog.Warn("failed to send intake message", "chat_id", chatID, "error", err)
	}
}
