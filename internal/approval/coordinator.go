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

// Package approval runs the two decision protocols that follow a submitted
// request: administrators approve or reject owner requests in the admin
// chat, and apartment owners approve or reject roommates in a private chat.
// Approval invites the subject to the private group and records them in the
// ledger; admin rejection waits for a reason given as a reply.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/accessbot/internal/audit"
	"github.com/bcem/accessbot/internal/models"
	"github.com/bcem/accessbot/internal/pending"
	"github.com/bcem/accessbot/internal/telegram"
)

// Bot is the part of the Bot API the coordinator uses.
type Bot interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup telegram.Markup) (*telegram.Message, error)
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string, markup telegram.Markup) (*telegram.Message, error)
	SendDocument(ctx context.Context, chatID int64, fileID, caption string, markup telegram.Markup) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	EditMessageCaption(ctx context.Context, chatID, messageID int64, caption string, markup *telegram.InlineKeyboardMarkup) error
	CreateChatInviteLink(ctx context.Context, chatID int64, name string, memberLimit int) (*telegram.ChatInviteLink, error)
}

// Ledger records approved occupants.
type Ledger interface {
	AppendApproved(ctx context.Context, req models.PendingRequest, approver, sheet string) error
	AppendRoommate(ctx context.Context, roommate models.Requester, owner models.OwnerRecord, apartmentID string) error
}

// Config holds the chats and sheet the coordinator addresses.
type Config struct {
	AdminChatID   int64
	PrivateChatID int64
	SheetName     string
}

// Coordinator performs submission and the decision side effects.
type Coordinator struct {
	cfg    Config
	bot    Bot
	ledger Ledger
	store  *pending.Store
	sink   audit.Sink
	now    func() time.Time
}

// NewCoordinator wires a coordinator. A nil sink logs outcomes via slog.
func NewCoordinator(cfg Config, bot Bot, ledger Ledger, store *pending.Store, sink audit.Sink) *Coordinator {
	if sink == nil {
		sink = audit.LogSink{}
	}
	return &Coordinator{
		cfg:    cfg,
		bot:    bot,
		ledger: ledger,
		store:  store,
		sink:   sink,
		now:    time.Now,
	}
}

// Submit stores an owner request and posts it to the admin chat. A failure
// to reach the admin chat is returned; the stored request then stays
// orphaned and is reported stale if anyone acts on it.
func (c *Coordinator) Submit(ctx context.Context, r models.Requester, doc models.DocumentRecord) error {
	req := models.PendingRequest{
		ID:          uuid.NewString(),
		Requester:   r,
		Document:    doc,
		SubmittedAt: c.now().UTC(),
	}
	c.store.PutRequest(req)

	card := adminCard(req)
	kb := decisionKeyboard(r.SubjectID, false)

	var err error
	switch doc.Media.Kind {
	case models.MediaPhoto:
		_, err = c.bot.SendPhoto(ctx, c.cfg.AdminChatID, doc.Media.FileID, card, kb)
	case models.MediaDocument:
		_, err = c.bot.SendDocument(ctx, c.cfg.AdminChatID, doc.Media.FileID, card, kb)
	default:
		_, err = c.bot.SendMessage(ctx, c.cfg.AdminChatID, card, kb)
	}
	if err != nil {
		c.sink.Record(ctx, audit.New(audit.EventSubmitted, audit.StatusFailed, r.SubjectID).WithError(err))
		return fmt.Errorf("post request %s to admin chat: %w", req.ID, err)
	}

	status := audit.StatusSuccess
	if _, err := c.bot.SendMessage(ctx, r.SubjectID, msgSubmitted, nil); err != nil {
		slog.Warn("failed to confirm submission", "subject_id", r.SubjectID, "error", err)
		status = audit.StatusPartial
	}
	c.sink.Record(ctx, audit.New(audit.EventSubmitted, status, r.SubjectID).WithDetail(req.ID))
	return nil
}

// RequestOwnerApproval stores a roommate request and asks the owner to
// decide. If the owner cannot be reached the request is dropped and the
// error returned.
func (c *Coordinator) RequestOwnerApproval(ctx context.Context, roommate models.Requester, owner models.OwnerRecord) error {
	req := models.RoommateApprovalRequest{
		ID:          uuid.NewString(),
		Roommate:    roommate,
		Owner:       owner,
		ApartmentID: owner.ApartmentID,
		CreatedAt:   c.now().UTC(),
	}

	unlock := c.store.LockRoommate(roommate.SubjectID)
	defer unlock()
	c.store.PutRoommate(req)

	text := fmt.Sprintf(msgOwnerRequest, roommateCard(roommate), owner.ApartmentID)
	if _, err := c.bot.SendMessage(ctx, owner.SubjectID, text, decisionKeyboard(roommate.SubjectID, true)); err != nil {
		c.store.RemoveRoommate(roommate.SubjectID)
		c.sink.Record(ctx, audit.New(audit.EventOwnerNotified, audit.StatusFailed, roommate.SubjectID).WithError(err))
		return fmt.Errorf("notify owner %d: %w", owner.SubjectID, err)
	}

	c.sink.Record(ctx, audit.New(audit.EventOwnerNotified, audit.StatusSuccess, roommate.SubjectID).
		WithDetail(fmt.Sprintf("owner %d, apartment %s", owner.SubjectID, owner.ApartmentID)))
	return nil
}

// HandleCallback applies an approve or reject button press. It returns a
// short text for the callback answer, or "".
func (c *Coordinator) HandleCallback(ctx context.Context, cq *telegram.CallbackQuery, p models.ApprovalPayload) string {
	if cq.Message == nil {
		return ""
	}
	if p.Roommate {
		return c.onRoommateAction(ctx, cq, p)
	}
	return c.onAdminAction(ctx, cq, p)
}

func (c *Coordinator) onAdminAction(ctx context.Context, cq *telegram.CallbackQuery, p models.ApprovalPayload) string {
	msg := cq.Message
	actor := actorName(cq.From)

	unlock := c.store.LockRequest(p.SubjectID)
	defer unlock()

	req, ok := c.store.Request(p.SubjectID)
	if !ok {
		c.edit(ctx, msg.Chat.ID, msg.MessageID, msg.HasMedia(), withNotice(body(msg), noticeStale), nil)
		c.sink.Record(ctx, audit.New(audit.EventStale, audit.StatusSuccess, p.SubjectID).
			WithActor(actor).WithDetail(string(p.Action)))
		return noticeStale
	}

	media := req.Document.Media.FileID != ""
	switch p.Action {
	case models.ActionApprove:
		c.approve(ctx, msg, req, actor, media)
	case models.ActionReject:
		c.store.OpenDialog(pending.DialogKey{ChatID: msg.Chat.ID, MessageID: msg.MessageID}, p.SubjectID)
		c.edit(ctx, msg.Chat.ID, msg.MessageID, media,
			withNotice(adminCard(req), fmt.Sprintf(noticeRejectPrompt, actor)), nil)
		c.sink.Record(ctx, audit.New(audit.EventRejectPrompt, audit.StatusSuccess, p.SubjectID).WithActor(actor))
	}
	return ""
}

// approve runs the approval side effects in order: invite, notify, ledger,
// admin notice. The request is removed only when the subject has the link.
func (c *Coordinator) approve(ctx context.Context, msg *telegram.Message, req models.PendingRequest, actor string, media bool) {
	subject := req.Requester.SubjectID

	fail := func(step string, err error) {
		slog.Error("approval failed", "subject_id", subject, "step", step, "error", err)
		c.edit(ctx, msg.Chat.ID, msg.MessageID, media,
			withNotice(adminCard(req), fmt.Sprintf(noticeApproveFailed, step, err)),
			decisionKeyboard(subject, false))
		if _, err := c.bot.SendMessage(ctx, subject, msgApproveError, nil); err != nil {
			slog.Warn("failed to notify subject of approval error", "subject_id", subject, "error", err)
		}
		c.sink.Record(ctx, audit.New(audit.EventApprovalError, audit.StatusFailed, subject).
			WithActor(actor).WithDetail(step).WithError(err))
	}

	link, err := c.bot.CreateChatInviteLink(ctx, c.cfg.PrivateChatID, inviteName(req.Document.ApartmentID, req.Requester), 1)
	if err != nil {
		fail("invite", err)
		return
	}
	if _, err := c.bot.SendMessage(ctx, subject, fmt.Sprintf(msgApproved, link.InviteLink), nil); err != nil {
		fail("notify", err)
		return
	}

	c.recordLedger(ctx, subject, actor, c.ledger.AppendApproved(ctx, req, actor, c.cfg.SheetName))

	c.edit(ctx, msg.Chat.ID, msg.MessageID, media, withNotice(adminCard(req), fmt.Sprintf(noticeApproved, actor)), nil)
	c.store.RemoveRequest(subject)
	c.sink.Record(ctx, audit.New(audit.EventApproved, audit.StatusSuccess, subject).
		WithActor(actor).WithDetail(req.Document.ApartmentID))
}

// HandleRejectionReason consumes a reply to a rejection prompt. It reports
// false when the reply does not answer an open rejection dialog or carries no
// text; a textless reply leaves the dialog open.
func (c *Coordinator) HandleRejectionReason(ctx context.Context, msg *telegram.Message) bool {
	if msg.ReplyToMessage == nil || msg.From == nil {
		return false
	}
	key := pending.DialogKey{ChatID: msg.Chat.ID, MessageID: msg.ReplyToMessage.MessageID}
	subject, ok := c.store.Dialog(key)
	if !ok {
		return false
	}

	reason := strings.TrimSpace(msg.Text)
	if reason == "" {
		reason = strings.TrimSpace(msg.Caption)
	}
	if reason == "" {
		if _, err := c.bot.SendMessage(ctx, msg.Chat.ID, msgReasonNeedText, nil); err != nil {
			slog.Warn("failed to ask for a text reason", "chat_id", msg.Chat.ID, "error", err)
		}
		return false
	}
	actor := actorName(*msg.From)

	unlock := c.store.LockRequest(subject)
	defer unlock()

	req, ok := c.store.Request(subject)
	if !ok {
		c.store.CloseDialog(key)
		if _, err := c.bot.SendMessage(ctx, msg.Chat.ID, msgReasonStale, nil); err != nil {
			slog.Warn("failed to report stale rejection", "chat_id", msg.Chat.ID, "error", err)
		}
		c.sink.Record(ctx, audit.New(audit.EventStale, audit.StatusSuccess, subject).
			WithActor(actor).WithDetail("rejection reason"))
		return true
	}

	status := audit.StatusSuccess
	if _, err := c.bot.SendMessage(ctx, subject, fmt.Sprintf(msgRejected, reason), nil); err != nil {
		slog.Warn("failed to notify subject of rejection", "subject_id", subject, "error", err)
		status = audit.StatusPartial
	}

	media := req.Document.Media.FileID != ""
	c.edit(ctx, key.ChatID, key.MessageID, media,
		withNotice(adminCard(req), fmt.Sprintf(noticeRejected, actor, reason)), nil)
	if _, err := c.bot.SendMessage(ctx, msg.Chat.ID, msgReasonRecorded, nil); err != nil {
		slog.Warn("failed to confirm rejection", "chat_id", msg.Chat.ID, "error", err)
	}

	c.store.RemoveRequest(subject)
	c.store.CloseDialog(key)
	c.sink.Record(ctx, audit.New(audit.EventRejected, status, subject).WithActor(actor).WithDetail(reason))
	return true
}

func (c *Coordinator) onRoommateAction(ctx context.Context, cq *telegram.CallbackQuery, p models.ApprovalPayload) string {
	msg := cq.Message
	actor := actorName(cq.From)

	unlock := c.store.LockRoommate(p.SubjectID)
	defer unlock()

	req, ok := c.store.Roommate(p.SubjectID)
	if !ok {
		c.edit(ctx, msg.Chat.ID, msg.MessageID, false, withNotice(body(msg), noticeStale), nil)
		c.sink.Record(ctx, audit.New(audit.EventStale, audit.StatusSuccess, p.SubjectID).
			WithActor(actor).WithDetail("roommate " + string(p.Action)))
		return noticeStale
	}
	if cq.From.ID != req.Owner.SubjectID {
		return noticeNotYourRequest
	}

	roommate := req.Roommate
	card := fmt.Sprintf(msgOwnerRequest, roommateCard(roommate), req.ApartmentID)

	if p.Action == models.ActionReject {
		status := audit.StatusSuccess
		if _, err := c.bot.SendMessage(ctx, roommate.SubjectID, msgRoommateRejected, nil); err != nil {
			slog.Warn("failed to notify roommate of rejection", "subject_id", roommate.SubjectID, "error", err)
			status = audit.StatusPartial
		}
		c.edit(ctx, msg.Chat.ID, msg.MessageID, false,
			withNotice(card, fmt.Sprintf(noticeOwnerRejected, roommate.DisplayName())), nil)
		c.store.RemoveRoommate(roommate.SubjectID)
		c.sink.Record(ctx, audit.New(audit.EventOwnerRejected, status, roommate.SubjectID).WithActor(actor))
		return ""
	}

	fail := func(step string, err error) {
		slog.Error("roommate approval failed", "subject_id", roommate.SubjectID, "step", step, "error", err)
		c.edit(ctx, msg.Chat.ID, msg.MessageID, false,
			withNotice(card, fmt.Sprintf(noticeApproveFailed, step, err)),
			decisionKeyboard(roommate.SubjectID, true))
		if _, err := c.bot.SendMessage(ctx, roommate.SubjectID, msgApproveError, nil); err != nil {
			slog.Warn("failed to notify roommate of approval error", "subject_id", roommate.SubjectID, "error", err)
		}
		c.sink.Record(ctx, audit.New(audit.EventApprovalError, audit.StatusFailed, roommate.SubjectID).
			WithActor(actor).WithDetail("roommate " + step).WithError(err))
	}

	link, err := c.bot.CreateChatInviteLink(ctx, c.cfg.PrivateChatID, inviteName(req.ApartmentID, roommate), 1)
	if err != nil {
		fail("invite", err)
		return ""
	}
	if _, err := c.bot.SendMessage(ctx, roommate.SubjectID, fmt.Sprintf(msgRoommateApproved, link.InviteLink), nil); err != nil {
		fail("notify", err)
		return ""
	}

	c.recordLedger(ctx, roommate.SubjectID, actor, c.ledger.AppendRoommate(ctx, roommate, req.Owner, req.ApartmentID))

	c.edit(ctx, msg.Chat.ID, msg.MessageID, false,
		withNotice(card, fmt.Sprintf(noticeOwnerApproved, roommate.DisplayName())), nil)
	c.store.RemoveRoommate(roommate.SubjectID)
	c.sink.Record(ctx, audit.New(audit.EventOwnerApproved, audit.StatusSuccess, roommate.SubjectID).
		WithActor(actor).WithDetail(req.ApartmentID))
	return ""
}

// recordLedger reports a ledger write. Failures never block the decision.
func (c *Coordinator) recordLedger(ctx context.Context, subject int64, actor string, err error) {
	status := audit.StatusSuccess
	if err != nil {
		status = audit.StatusFailedNonFatal
	}
	c.sink.Record(ctx, audit.New(audit.EventLedgerWrite, status, subject).WithActor(actor).WithError(err))
}

// edit replaces the body of a decision message. Failures are logged only.
func (c *Coordinator) edit(ctx context.Context, chatID, messageID int64, media bool, text string, kb *telegram.InlineKeyboardMarkup) {
	var err error
	if media {
		err = c.bot.EditMessageCaption(ctx, chatID, messageID, text, kb)
	} else {
		err = c.bot.EditMessageText(ctx, chatID, messageID, text, kb)
	}
	if err != nil {
		slog.Warn("failed to edit decision message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

// body is the visible text of a message, caption included.
func body(m *telegram.Message) string {
	if m.HasMedia() {
		return m.Caption
	}
	return m.Text
}
