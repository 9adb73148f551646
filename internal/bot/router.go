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

// Package bot routes Telegram updates to the intake workflow, the approval
// coordinator and the chat-membership observer.
package bot

import (
	"context"
	"log/slog"

	"github.com/bcem/accessbot/internal/models"
	"github.com/bcem/accessbot/internal/telegram"
)

// Bot is the part of the Bot API the router and observer call directly.
type Bot interface {
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	SendMarkdown(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
}

// Deduper claims update ids so redelivered updates are handled once.
type Deduper interface {
	IsNew(ctx context.Context, updateID int64) (bool, error)
}

// Intake is the private-chat conversation.
type Intake interface {
	HandleMessage(ctx context.Context, msg *telegram.Message) error
	HandleCallback(ctx context.Context, cq *telegram.CallbackQuery) (bool, error)
}

// Approvals resolves admin and owner decisions.
type Approvals interface {
	HandleCallback(ctx context.Context, cq *telegram.CallbackQuery, p models.ApprovalPayload) string
	HandleRejectionReason(ctx context.Context, msg *telegram.Message) bool
}

// Router dispatches one update at a time to the component that owns it.
type Router struct {
	bot         Bot
	dedup       Deduper
	intake      Intake
	approvals   Approvals
	observer    *Observer
	adminChatID int64
}

// NewRouter creates an update router. dedup may be nil.
func NewRouter(bot Bot, dedup Deduper, intake Intake, approvals Approvals, observer *Observer, adminChatID int64) *Router {
	return &Router{
		bot:         bot,
		dedup:       dedup,
		intake:      intake,
		approvals:   approvals,
		observer:    observer,
		adminChatID: adminChatID,
	}
}

// Dispatch handles one update. Errors are logged; nothing is returned to the
// transport so a failing update is never redelivered in a loop.
func (r *Router) Dispatch(ctx context.Context, u telegram.Update) {
	if r.dedup != nil {
		isNew, err := r.dedup.IsNew(ctx, u.UpdateID)
		if err != nil {
			// Process anyway; a duplicate is better than a lost update.
			slog.Warn("dedup check failed", "update_id", u.UpdateID, "error", err)
		} else if !isNew {
			slog.Debug("skipping duplicate update", "update_id", u.UpdateID)
			return
		}
	}

	switch {
	case u.CallbackQuery != nil:
		r.onCallback(ctx, u.UpdateID, u.CallbackQuery)
	case u.MyChatMember != nil:
		if r.observer != nil {
			r.observer.Observe(ctx, u.MyChatMember)
		}
	case u.Message != nil:
		r.onMessage(ctx, u.UpdateID, u.Message)
	}
}

func (r *Router) onMessage(ctx context.Context, updateID int64, msg *telegram.Message) {
	switch {
	case msg.Chat.Type == telegram.ChatPrivate:
		if err := r.intake.HandleMessage(ctx, msg); err != nil {
			slog.Error("unhandled update error",
				"update_id", updateID,
				"chat_id", msg.Chat.ID,
				"error", err,
			)
		}
	case msg.Chat.ID == r.adminChatID && msg.ReplyToMessage != nil:
		r.approvals.HandleRejectionReason(ctx, msg)
	}
}

func (r *Router) onCallback(ctx context.Context, updateID int64, cq *telegram.CallbackQuery) {
	var toast string
	defer func() {
		if err := r.bot.AnswerCallbackQuery(ctx, cq.ID, toast); err != nil {
			slog.Warn("failed to answer callback query", "update_id", updateID, "error", err)
		}
	}()

	handled, err := r.intake.HandleCallback(ctx, cq)
	if err != nil {
		slog.Error("unhandled update error", "update_id", updateID, "subject_id", cq.From.ID, "error", err)
	}
	if handled {
		return
	}

	p, err := models.ParseApprovalPayload(cq.Data)
	if err != nil {
		slog.Debug("ignoring unknown callback payload", "update_id", updateID, "error", err)
		return
	}
	// Admin decisions are only taken from the admin chat.
	if !p.Roommate && (cq.Message == nil || cq.Message.Chat.ID != r.adminChatID) {
		slog.Warn("admin decision outside the admin chat", "update_id", updateID, "user_id", cq.From.ID)
		return
	}
	toast = r.approvals.HandleCallback(ctx, cq, p)
}
