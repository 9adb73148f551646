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

package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bcem/accessbot/internal/telegram"
)

// RegistrationAPI is the part of the Bot API the registrar needs.
type RegistrationAPI interface {
	SetWebhook(ctx context.Context, webhookURL, secret string) error
	GetWebhookInfo(ctx context.Context) (*telegram.WebhookInfo, error)
}

// Registrar registers the webhook at startup and re-registers it when the
// registration drifted (another deployment took it over, or it was deleted).
type Registrar struct {
	api      RegistrationAPI
	url      string
	secret   string
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistrar creates a registrar for webhookURL.
func NewRegistrar(api RegistrationAPI, webhookURL, secret string, interval time.Duration) *Registrar {
	return &Registrar{
		api:      api,
		url:      webhookURL,
		secret:   secret,
		interval: interval,
	}
}

// Start registers the webhook and runs the verification loop in the
// background. It fails if the initial registration fails.
func (r *Registrar) Start(ctx context.Context) error {
	if err := r.api.SetWebhook(ctx, r.url, r.secret); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	slog.Info("webhook registered", "path", PathOf(r.url))

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.verifyLoop(loopCtx)
	}()
	return nil
}

// Stop stops the verification loop.
func (r *Registrar) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Registrar) verifyLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.verify(ctx)
		}
	}
}

// verify re-registers the webhook when Telegram reports a different URL.
func (r *Registrar) verify(ctx context.Context) {
	info, err := r.api.GetWebhookInfo(ctx)
	if err != nil {
		slog.Error("failed to get webhook info", "error", err)
		return
	}

	if info.LastErrorMessage != "" {
		slog.Warn("telegram reports webhook delivery errors",
			"last_error", info.LastErrorMessage,
			"last_error_at", time.Unix(info.LastErrorDate, 0).UTC(),
			"pending_updates", info.PendingUpdateCount,
		)
	}

	if info.URL == r.url {
		return
	}

	slog.Warn("webhook registration drifted, re-registering", "registered_path", PathOf(info.URL))
	if err := r.api.SetWebhook(ctx, r.url, r.secret); err != nil {
		slog.Error("failed to re-register webhook", "error", err)
	}
}

// GenerateSecret creates a random secret token for webhook validation.
func GenerateSecret() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// PathOf returns the path component of a webhook URL, or DefaultPath.
func PathOf(webhookURL string) string {
	u, err := url.Parse(webhookURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return DefaultPath
	}
	return u.Path
}

// Endpoint appends DefaultPath to a bare base URL such as a discovered
// tunnel address. URLs that already carry a path are returned unchanged.
func Endpoint(base string) string {
	u, err := url.Parse(base)
	if err != nil || (u.Path != "" && u.Path != "/") {
		return base
	}
	return strings.TrimRight(base, "/") + DefaultPath
}
