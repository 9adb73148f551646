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

package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newTestServer serves Bot API methods from a handler map keyed by method name.
// Handlers receive the form-encoded request parameters.
func newTestServer(t *testing.T, handlers map[string]func(params map[string]string) (any, *APIError)) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/botTOKEN/") {
			http.NotFound(w, r)
			return
		}
		method := strings.TrimPrefix(r.URL.Path, "/botTOKEN/")
		h, ok := handlers[method]
		if !ok {
			t.Errorf("unexpected method %s", method)
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("%s: invalid form body: %v", method, err)
		}
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		result, apiErr := h(params)
		w.Header().Set("Content-Type", "application/json")
		if apiErr != nil {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":          false,
				"error_code":  apiErr.Code,
				"description": apiErr.Description,
				"parameters":  map[string]any{"retry_after": apiErr.RetryAfter},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.Client(), srv.URL, "TOKEN")
}

// TestSendMessage_MarkupOmittedWhenNil verifies optional markup handling.
func TestSendMessage_MarkupOmittedWhenNil(t *testing.T) {
	var got []map[string]string
	_, c := newTestServer(t, map[string]func(map[string]string) (any, *APIError){
		"sendMessage": func(p map[string]string) (any, *APIError) {
			got = append(got, p)
			return Message{MessageID: 7, Chat: Chat{ID: 42}}, nil
		},
	})

	msg, err := c.SendMessage(context.Background(), 42, "hi", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.MessageID != 7 {
		t.Errorf("MessageID = %d, want 7", msg.MessageID)
	}
	if _, ok := got[0]["reply_markup"]; ok {
		t.Error("reply_markup should be omitted for nil markup")
	}
	if _, ok := got[0]["parse_mode"]; ok {
		t.Error("parse_mode should be omitted for plain messages")
	}

	kb := InlineRow(InlineKeyboardButton{Text: "Yes", CallbackData: "yes"})
	if _, err := c.SendMessage(context.Background(), 42, "hi", kb); err != nil {
		t.Fatalf("SendMessage with markup: %v", err)
	}
	var markup map[string]any
	if err := json.Unmarshal([]byte(got[1]["reply_markup"]), &markup); err != nil {
		t.Fatalf("reply_markup = %q, want JSON object: %v", got[1]["reply_markup"], err)
	}
	if _, ok := markup["inline_keyboard"]; !ok {
		t.Error("inline_keyboard missing from markup")
	}
	if got[1]["chat_id"] != "42" {
		t.Errorf("chat_id = %q, want 42", got[1]["chat_id"])
	}
}

// TestSendMarkdown_SetsParseMode verifies the legacy Markdown parse mode.
func TestSendMarkdown_SetsParseMode(t *testing.T) {
	var got map[string]string
	_, c := newTestServer(t, map[string]func(map[string]string) (any, *APIError){
		"sendMessage": func(p map[string]string) (any, *APIError) {
			got = p
			return Message{MessageID: 8, Chat: Chat{ID: -100}}, nil
		},
	})

	if _, err := c.SendMarkdown(context.Background(), -100, "*hi*"); err != nil {
		t.Fatalf("SendMarkdown: %v", err)
	}
	if got["parse_mode"] != "Markdown" {
		t.Errorf("parse_mode = %q, want Markdown", got["parse_mode"])
	}
	if got["chat_id"] != "-100" {
		t.Errorf("chat_id = %q, want -100", got["chat_id"])
	}
}

// TestSendPhoto_ReusesFileID verifies already uploaded files are sent by id.
func TestSendPhoto_ReusesFileID(t *testing.T) {
	var got map[string]string
	_, c := newTestServer(t, map[string]func(map[string]string) (any, *APIError){
		"sendPhoto": func(p map[string]string) (any, *APIError) {
			got = p
			return Message{MessageID: 9, Chat: Chat{ID: -100}}, nil
		},
	})

	if _, err := c.SendPhoto(context.Background(), -100, "AgACphoto", "caption", nil); err != nil {
		t.Fatalf("SendPhoto: %v", err)
	}
	if got["photo"] != "AgACphoto" || got["caption"] != "caption" {
		t.Errorf("params = %v", got)
	}
}

// TestEditMessageText_NilMarkupRemovesKeyboard verifies edits without markup
// omit reply_markup.
func TestEditMessageText_NilMarkupRemovesKeyboard(t *testing.T) {
	var got map[string]string
	_, c := newTestServer(t, map[string]func(map[string]string) (any, *APIError){
		"editMessageText": func(p map[string]string) (any, *APIError) {
			got = p
			return true, nil
		},
	})

	if err := c.EditMessageText(context.Background(), -100, 55, "done", nil); err != nil {
		t.Fatalf("EditMessageText: %v", err)
	}
	if got["message_id"] != "55" || got["text"] != "done" {
		t.Errorf("params = %v", got)
	}
	if _, ok := got["reply_markup"]; ok {
		t.Error("reply_markup should be omitted for nil markup")
	}
}

// TestSetWebhook_SendsSecret verifies the secret token and update filter.
func TestSetWebhook_SendsSecret(t *testing.T) {
	var got map[string]string
	_, c := newTestServer(t, map[string]func(map[string]string) (any, *APIError){
		"setWebhook": func(p map[string]string) (any, *APIError) {
			got = p
			return true, nil
		},
	})

	if err := c.SetWebhook(context.Background(), "https://bot.example.com/telegram/webhook", "s3cret"); err != nil {
		t.Fatalf("SetWebhook: %v", err)
	}
	if got["secret_token"] != "s3cret" {
		t.Errorf("secret_token = %q", got["secret_token"])
	}
	var allowed []string
	if err := json.Unmarshal([]byte(got["allowed_updates"]), &allowed); err != nil {
		t.Fatalf("allowed_updates = %q: %v", got["allowed_updates"], err)
	}
	if len(allowed) != len(AllowedUpdates) {
		t.Errorf("allowed_updates = %v, want %v", allowed, AllowedUpdates)
	}
}

// TestCall_APIError verifies that non-ok envelopes become typed errors.
func TestCall_APIError(t *testing.T) {
	_, c := newTestServer(t, map[string]func(map[string]string) (any, *APIError){
		"createChatInviteLink": func(map[string]string) (any, *APIError) {
			return nil, &APIError{Code: 400, Description: "Bad Request: not enough rights", RetryAfter: 0}
		},
	})

	_, err := c.CreateChatInviteLink(context.Background(), -100, "", 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Code != 400 || apiErr.Method != "createChatInviteLink" {
		t.Errorf("got %+v", apiErr)
	}
	if strings.Contains(err.Error(), "TOKEN") {
		t.Errorf("error leaks token: %v", err)
	}
}

// TestCall_RetryAfter verifies flood-control hints reach the caller.
func TestCall_RetryAfter(t *testing.T) {
	_, c := newTestServer(t, map[string]func(map[string]string) (any, *APIError){
		"getUpdates": func(map[string]string) (any, *APIError) {
			return nil, &APIError{Code: 429, Description: "Too Many Requests", RetryAfter: 7}
		},
	})

	_, err := c.GetUpdates(context.Background(), 0, 0)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.RetryAfter != 7 || apiErr.Code != 429 {
		t.Errorf("got %+v", apiErr)
	}
}

// TestCall_ContextCancelled verifies a cancelled context aborts the request
// and the transport error does not carry the token.
func TestCall_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetUpdates(ctx, 0, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if strings.Contains(err.Error(), "TOKEN") {
		t.Errorf("error leaks token: %v", err)
	}
}

// TestCreateChatInviteLink_SingleUse verifies the member limit is sent.
func TestCreateChatInviteLink_SingleUse(t *testing.T) {
	_, c := newTestServer(t, map[string]func(map[string]string) (any, *APIError){
		"createChatInviteLink": func(p map[string]string) (any, *APIError) {
			if p["member_limit"] != "1" {
				t.Errorf("member_limit = %q, want 1", p["member_limit"])
			}
			if p["name"] != "access" {
				t.Errorf("name = %q, want access", p["name"])
			}
			return ChatInviteLink{InviteLink: "https://t.me/+abc", MemberLimit: 1}, nil
		},
	})

	link, err := c.CreateChatInviteLink(context.Background(), -100, "access", 1)
	if err != nil {
		t.Fatalf("CreateChatInviteLink: %v", err)
	}
	if link.InviteLink != "https://t.me/+abc" {
		t.Errorf("InviteLink = %q", link.InviteLink)
	}
}

// TestDownloadFile verifies getFile resolution followed by the file fetch.
func TestDownloadFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/botTOKEN/getFile", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true,"result":{"file_id":"f1","file_unique_id":"u1","file_size":4,"file_path":"photos/file_1.png"}}`)
	})
	mux.HandleFunc("/file/botTOKEN/photos/file_1.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	dl, err := c.DownloadFile(context.Background(), "f1")
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if len(dl.Data) != 4 {
		t.Errorf("len(Data) = %d, want 4", len(dl.Data))
	}
	if dl.MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", dl.MimeType)
	}
}

// TestDownloadFile_TooLarge verifies the size limit is checked before fetching.
func TestDownloadFile_TooLarge(t *testing.T) {
	_, c := newTestServer(t, map[string]func(map[string]string) (any, *APIError){
		"getFile": func(map[string]string) (any, *APIError) {
			return File{FileID: "f1", FileSize: maxDownloadSize + 1, FilePath: "documents/big.pdf"}, nil
		},
	})

	if _, err := c.DownloadFile(context.Background(), "f1"); err == nil {
		t.Fatal("expected size limit error")
	}
}

// TestMimeFromPath verifies extension based content types.
func TestMimeFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"photos/file_1.jpg", "image/jpeg"},
		{"documents/scan.PDF", "application/pdf"},
		{"photos/file_2.png", "image/png"},
		{"documents/noext", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := mimeFromPath(tt.path); got != tt.want {
				t.Errorf("mimeFromPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMessageCommand verifies command extraction.
func TestMessageCommand(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/start", "start"},
		{"/start@access_bot", "start"},
		{"/cancel now", "cancel"},
		{"hello", ""},
		{"/", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			m := &Message{Text: tt.text}
			if got := m.Command(); got != tt.want {
				t.Errorf("Command() = %q, want %q", got, tt.want)
			}
		})
	}
}

// memOffsets is an in-memory OffsetStore.
type memOffsets struct {
	offset atomic.Int64
}

func (m *memOffsets) LoadOffset(context.Context) (int64, error) { return m.offset.Load(), nil }
func (m *memOffsets) SaveOffset(_ context.Context, o int64) error {
	m.offset.Store(o)
	return nil
}

// TestPoller_DispatchesAndAdvancesOffset verifies ordered dispatch and offset
// persistence.
func TestPoller_DispatchesAndAdvancesOffset(t *testing.T) {
	var calls atomic.Int32
	_, c := newTestServer(t, map[string]func(map[string]string) (any, *APIError){
		"deleteWebhook": func(map[string]string) (any, *APIError) { return true, nil },
		"getUpdates": func(p map[string]string) (any, *APIError) {
			if calls.Add(1) == 1 {
				if p["offset"] != "10" {
					t.Errorf("offset = %q, want 10", p["offset"])
				}
				return []Update{{UpdateID: 10}, {UpdateID: 11}}, nil
			}
			time.Sleep(10 * time.Millisecond)
			return []Update{}, nil
		},
	})

	offsets := &memOffsets{}
	offsets.offset.Store(10)

	ctx, cancel := context.WithCancel(context.Background())
	var seen []int64
	done := make(chan struct{})
	p := NewPoller(c, 0, offsets, func(_ context.Context, u Update) {
		seen = append(seen, u.UpdateID)
		if u.UpdateID == 11 {
			cancel()
		}
	})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("poller did not stop")
	}

	if len(seen) != 2 || seen[0] != 10 || seen[1] != 11 {
		t.Errorf("seen = %v, want [10 11]", seen)
	}
	if got := offsets.offset.Load(); got != 12 {
		t.Errorf("stored offset = %d, want 12", got)
	}
}
