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

// Package telegram wraps the Telegram Bot API client with context-aware
// methods, a long polling loop and the update types the access bot consumes.
//
// API docs: https://core.telegram.org/bots/api
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	// DefaultBaseURL is the root of the Bot API.
	DefaultBaseURL = "https://api.telegram.org"

	// maxDownloadSize caps document downloads; the Bot API serves files up to 20 MB.
	maxDownloadSize = 20 << 20
)

// AllowedUpdates are the update kinds the bot subscribes to.
var AllowedUpdates = []string{"message", "callback_query", "my_chat_member"}

// Markup is any reply markup accepted by send methods.
type Markup interface {
	isMarkup()
}

func (*InlineKeyboardMarkup) isMarkup() {}
func (*ReplyKeyboardMarkup) isMarkup()  {}
func (*ReplyKeyboardRemove) isMarkup()  {}

// APIError is a non-ok response from the Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// Client talks to the Bot API through tgbotapi.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	api        *tgbotapi.BotAPI
}

// NewClient creates a Bot API client. An empty baseURL selects DefaultBaseURL.
// The httpClient timeout must exceed the long-poll timeout.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	// built directly: tgbotapi.NewBotAPIWithClient calls getMe on construction
	api := &tgbotapi.BotAPI{Token: token, Client: httpClient, Buffer: 100}
	api.SetAPIEndpoint(baseURL + "/bot%s/%s")

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
		api:        api,
	}
}

// contextDoer attaches ctx to the requests tgbotapi builds without one.
type contextDoer struct {
	ctx    context.Context
	client *http.Client
}

func (d contextDoer) Do(req *http.Request) (*http.Response, error) {
	return d.client.Do(req.WithContext(d.ctx))
}

// bot returns a shallow copy of the API bound to ctx.
func (c *Client) bot(ctx context.Context) *tgbotapi.BotAPI {
	api := *c.api
	api.Client = contextDoer{ctx: ctx, client: c.httpClient}
	return &api
}

// send issues a tgbotapi config and decodes the result into out.
func (c *Client) send(ctx context.Context, method string, cfg tgbotapi.Chattable, out any) error {
	resp, err := c.bot(ctx).Request(cfg)
	return decodeResult(method, resp, err, out)
}

// call posts raw params for methods whose tgbotapi config lacks a field the
// bot relies on, or takes markup types other than ours.
func (c *Client) call(ctx context.Context, method string, params tgbotapi.Params, out any) error {
	resp, err := c.bot(ctx).MakeRequest(method, params)
	return decodeResult(method, resp, err, out)
}

func decodeResult(method string, resp *tgbotapi.APIResponse, err error, out any) error {
	if err != nil {
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			return &APIError{
				Method:      method,
				Code:        tgErr.Code,
				Description: tgErr.Message,
				RetryAfter:  tgErr.RetryAfter,
			}
		}
		// url.Error would include the token-bearing URL
		return fmt.Errorf("telegram %s: %w", method, unwrapURLError(err))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	cfg := tgbotapi.NewUpdate(int(offset))
	cfg.Timeout = int(timeout.Seconds())
	cfg.AllowedUpdates = AllowedUpdates

	var updates []Update
	if err := c.send(ctx, "getUpdates", cfg, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage posts a text message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup Markup) (*Message, error) {
	cfg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		cfg.ReplyMarkup = markup
	}
	return c.sendMessage(ctx, "sendMessage", cfg)
}

// SendMarkdown posts a message rendered with the legacy Markdown parse mode.
func (c *Client) SendMarkdown(ctx context.Context, chatID int64, text string) (*Message, error) {
	cfg := tgbotapi.NewMessage(chatID, text)
	cfg.ParseMode = tgbotapi.ModeMarkdown
	return c.sendMessage(ctx, "sendMessage", cfg)
}

// EscapeMarkdown escapes text for interpolation into a SendMarkdown message.
func EscapeMarkdown(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, text)
}

// SendPhoto re-posts an already uploaded photo with a caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileID, caption string, markup Markup) (*Message, error) {
	cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	cfg.Caption = caption
	if markup != nil {
		cfg.ReplyMarkup = markup
	}
	return c.sendMessage(ctx, "sendPhoto", cfg)
}

// SendDocument re-posts an already uploaded file with a caption.
func (c *Client) SendDocument(ctx context.Context, chatID int64, fileID, caption string, markup Markup) (*Message, error) {
	cfg := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
	cfg.Caption = caption
	if markup != nil {
		cfg.ReplyMarkup = markup
	}
	return c.sendMessage(ctx, "sendDocument", cfg)
}

// EditMessageText replaces the text of a message. A nil markup removes the
// inline keyboard.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	params, err := editParams(chatID, messageID, markup)
	if err != nil {
		return err
	}
	params["text"] = text
	return c.call(ctx, "editMessageText", params, nil)
}

// EditMessageCaption replaces the caption of a media message. A nil markup
// removes the inline keyboard.
func (c *Client) EditMessageCaption(ctx context.Context, chatID, messageID int64, caption string, markup *InlineKeyboardMarkup) error {
	params, err := editParams(chatID, messageID, markup)
	if err != nil {
		return err
	}
	params["caption"] = caption
	return c.call(ctx, "editMessageCaption", params, nil)
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.send(ctx, "deleteMessage", tgbotapi.NewDeleteMessage(chatID, int(messageID)), nil)
}

// AnswerCallbackQuery stops the button spinner on the client.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	return c.send(ctx, "answerCallbackQuery", tgbotapi.NewCallback(callbackID, text), nil)
}

// CreateChatInviteLink creates an invite link limited to memberLimit joins.
func (c *Client) CreateChatInviteLink(ctx context.Context, chatID int64, name string, memberLimit int) (*ChatInviteLink, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: chatID},
		Name:        name,
		MemberLimit: memberLimit,
	}
	var link ChatInviteLink
	if err := c.send(ctx, "createChatInviteLink", cfg, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// GetFile resolves a file id into a downloadable path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var f File
	if err := c.send(ctx, "getFile", tgbotapi.FileConfig{FileID: fileID}, &f); err != nil {
		return nil, err
	}
	if f.FilePath == "" {
		return nil, fmt.Errorf("getFile returned no path for %s", fileID)
	}
	return &f, nil
}

// SetWebhook registers the webhook URL. Telegram echoes secret in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	// tgbotapi.WebhookConfig has no secret_token field
	params := tgbotapi.Params{"url": webhookURL}
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", AllowedUpdates); err != nil {
		return fmt.Errorf("encode allowed updates: %w", err)
	}
	return c.call(ctx, "setWebhook", params, nil)
}

// DeleteWebhook removes the webhook so getUpdates can be used.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.send(ctx, "deleteWebhook", tgbotapi.DeleteWebhookConfig{}, nil)
}

// GetWebhookInfo returns the current webhook registration.
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	var info WebhookInfo
	if err := c.call(ctx, "getWebhookInfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) sendMessage(ctx context.Context, method string, cfg tgbotapi.Chattable) (*Message, error) {
	var m Message
	if err := c.send(ctx, method, cfg, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func editParams(chatID, messageID int64, markup *InlineKeyboardMarkup) (tgbotapi.Params, error) {
	params := make(tgbotapi.Params)
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero64("message_id", messageID)
	if err := params.AddInterface("reply_markup", markup); err != nil {
		return nil, fmt.Errorf("encode markup: %w", err)
	}
	return params, nil
}

// unwrapURLError drops the request URL (which embeds the bot token) from
// transport errors.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// drain discards the remaining body so the connection can be reused.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
}
