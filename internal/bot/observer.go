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

package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bcem/accessbot/internal/audit"
	"github.com/bcem/accessbot/internal/telegram"
)

const msgChatInfo = "✅ Бота додано до цього чату (%s).\n\n" +
	"📋 Інформація про чат:\n" +
	"Назва: %s\n" +
	"Chat ID: `%d`\n" +
	"Тип: %s\n\n" +
	"Вкажіть цей Chat ID у конфігурації (.env)."

// Observer announces chat metadata when the bot joins a group or channel, so
// operators can copy the chat id into the configuration.
type Observer struct {
	bot  Bot
	sink audit.Sink
}

// NewObserver creates a membership observer.
func NewObserver(bot Bot, sink audit.Sink) *Observer {
	if sink == nil {
		sink = audit.LogSink{}
	}
	return &Observer{bot: bot, sink: sink}
}

// Observe handles a my_chat_member update. It is best effort: failures are
// logged and recorded, never returned.
func (o *Observer) Observe(ctx context.Context, m *telegram.ChatMemberUpdated) {
	if !joined(m) {
		return
	}
	chat := m.Chat
	slog.Info("bot added to chat",
		"chat_id", chat.ID,
		"chat_type", chat.Type,
		"title", chat.Title,
		"status", m.NewChatMember.Status,
	)

	text := fmt.Sprintf(msgChatInfo, chat.Type, telegram.EscapeMarkdown(chat.Title), chat.ID, chat.Type)
	if _, err := o.bot.SendMarkdown(ctx, chat.ID, text); err != nil {
		slog.Error("failed to announce chat info", "chat_id", chat.ID, "error", err)
		o.sink.Record(ctx, audit.New(audit.EventAnnounced, audit.StatusFailedNonFatal, 0).
			WithDetail(fmt.Sprintf("chat %d", chat.ID)).WithError(err))
		return
	}
	o.sink.Record(ctx, audit.New(audit.EventAnnounced, audit.StatusSuccess, 0).
		WithDetail(fmt.Sprintf("chat %d", chat.ID)))
}

// joined reports a transition from outside a group or channel into it.
func joined(m *telegram.ChatMemberUpdated) bool {
	switch m.Chat.Type {
	case telegram.ChatGroup, telegram.ChatSupergroup, telegram.ChatChannel:
	default:
		return false
	}
	switch m.OldChatMember.Status {
	case telegram.MemberLeft, telegram.MemberKicked:
	default:
		return false
	}
	switch m.NewChatMember.Status {
	case telegram.MemberMember, telegram.MemberAdministrator:
		return true
	}
	return false
}
