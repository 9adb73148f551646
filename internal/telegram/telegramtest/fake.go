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

// Package telegramtest provides a recording fake of the Bot API client for
// workflow tests.
package telegramtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/bcem/accessbot/internal/telegram"
)

// Call is one recorded Bot API call.
type Call struct {
	Method    string
	ChatID    int64
	MessageID int64
	Text      string
	FileID    string
	Markup    any
}

// Bot records outgoing calls and returns canned results.
type Bot struct {
	mu     sync.Mutex
	nextID int64
	calls  []Call

	// Files maps file ids to downloadable content.
	Files map[string]*telegram.Download
	// InviteErr, when set, fails CreateChatInviteLink.
	InviteErr error
	// SendErr fails any send to the given chat id.
	SendErr map[int64]error
}

// New returns an empty fake.
func New() *Bot {
	return &Bot{
		nextID:  100,
		Files:   make(map[string]*telegram.Download),
		SendErr: make(map[int64]error),
	}
}

func (b *Bot) record(c Call) (*telegram.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.SendErr[c.ChatID]; err != nil && c.MessageID == 0 {
		return nil, err
	}
	if c.MessageID == 0 {
		b.nextID++
		c.MessageID = b.nextID
	}
	b.calls = append(b.calls, c)
	return &telegram.Message{MessageID: c.MessageID, Chat: telegram.Chat{ID: c.ChatID}, Text: c.Text}, nil
}

// SendMessage records a text message.
func (b *Bot) SendMessage(_ context.Context, chatID int64, text string, markup telegram.Markup) (*telegram.Message, error) {
	return b.record(Call{Method: "sendMessage", ChatID: chatID, Text: text, Markup: markup})
}

// SendMarkdown records a markdown text message.
func (b *Bot) SendMarkdown(_ context.Context, chatID int64, text string) (*telegram.Message, error) {
	return b.record(Call{Method: "sendMessage", ChatID: chatID, Text: text})
}

// SendPhoto records a photo message.
func (b *Bot) SendPhoto(_ context.Context, chatID int64, fileID, caption string, markup telegram.Markup) (*telegram.Message, error) {
	return b.record(Call{Method: "sendPhoto", ChatID: chatID, FileID: fileID, Text: caption, Markup: markup})
}

// SendDocument records a document message.
func (b *Bot) SendDocument(_ context.Context, chatID int64, fileID, caption string, markup telegram.Markup) (*telegram.Message, error) {
	return b.record(Call{Method: "sendDocument", ChatID: chatID, FileID: fileID, Text: caption, Markup: markup})
}

// EditMessageText records a text edit.
func (b *Bot) EditMessageText(_ context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error {
	_, err := b.record(Call{Method: "editMessageText", ChatID: chatID, MessageID: messageID, Text: text, Markup: inline(markup)})
	return err
}

// EditMessageCaption records a caption edit.
func (b *Bot) EditMessageCaption(_ context.Context, chatID, messageID int64, caption string, markup *telegram.InlineKeyboardMarkup) error {
	_, err := b.record(Call{Method: "editMessageCaption", ChatID: chatID, MessageID: messageID, Text: caption, Markup: inline(markup)})
	return err
}

// inline keeps a nil keyboard comparable to nil.
func inline(m *telegram.InlineKeyboardMarkup) any {
	if m == nil {
		return nil
	}
	return m
}

// DeleteMessage records a deletion.
func (b *Bot) DeleteMessage(_ context.Context, chatID, messageID int64) error {
	_, err := b.record(Call{Method: "deleteMessage", ChatID: chatID, MessageID: messageID})
	return err
}

// AnswerCallbackQuery records a callback answer.
func (b *Bot) AnswerCallbackQuery(_ context.Context, callbackID, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Method: "answerCallbackQuery", Text: text, FileID: callbackID})
	return nil
}

// CreateChatInviteLink returns a numbered link or InviteErr.
func (b *Bot) CreateChatInviteLink(_ context.Context, chatID int64, name string, memberLimit int) (*telegram.ChatInviteLink, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.InviteErr != nil {
		return nil, b.InviteErr
	}
	b.nextID++
	link := fmt.Sprintf("https://t.me/+invite%d", b.nextID)
	b.calls = append(b.calls, Call{Method: "createChatInviteLink", ChatID: chatID, Text: link})
	return &telegram.ChatInviteLink{InviteLink: link, Name: name, MemberLimit: memberLimit}, nil
}

// DownloadFile returns the registered file content.
func (b *Bot) DownloadFile(_ context.Context, fileID string) (*telegram.Download, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Method: "downloadFile", FileID: fileID})
	dl, ok := b.Files[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	return dl, nil
}

// Calls returns the recorded calls, optionally filtered by method.
func (b *Bot) Calls(method string) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Call
	for _, c := range b.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// SentTo returns the send calls addressed to chatID.
func (b *Bot) SentTo(chatID int64) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Call
	for _, c := range b.calls {
		switch c.Method {
		case "sendMessage", "sendPhoto", "sendDocument":
			if c.ChatID == chatID {
				out = append(out, c)
			}
		}
	}
	return out
}

// Last returns the most recent send to chatID, or a zero Call.
func (b *Bot) Last(chatID int64) Call {
	sent := b.SentTo(chatID)
	if len(sent) == 0 {
		return Call{}
	}
	return sent[len(sent)-1]
}

// Reset forgets recorded calls.
func (b *Bot) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}
