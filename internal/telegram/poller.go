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
	"errors"
	"log/slog"
	"time"
)

// UpdateHandler is called for every update received by the poller.
type UpdateHandler func(ctx context.Context, u Update)

// OffsetStore persists the next update offset across restarts.
type OffsetStore interface {
	LoadOffset(ctx context.Context) (int64, error)
	SaveOffset(ctx context.Context, offset int64) error
}

// Poller long-polls getUpdates and dispatches each update in order.
type Poller struct {
	client   *Client
	timeout  time.Duration
	backoff  time.Duration
	offsets  OffsetStore
	onUpdate UpdateHandler
}

// NewPoller creates a long-polling loop. offsets may be nil, in which case
// the offset lives only in memory and Telegram redelivers unconfirmed
// updates after a restart.
func NewPoller(client *Client, timeout time.Duration, offsets OffsetStore, onUpdate UpdateHandler) *Poller {
	return &Poller{
		client:   client,
		timeout:  timeout,
		backoff:  3 * time.Second,
		offsets:  offsets,
		onUpdate: onUpdate,
	}
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("telegram poller starting", "timeout", p.timeout)

	// getUpdates is refused while a webhook is registered
	if err := p.client.DeleteWebhook(ctx); err != nil {
		slog.Warn("failed to delete webhook before polling", "error", err)
	}

	var offset int64
	if p.offsets != nil {
		stored, err := p.offsets.LoadOffset(ctx)
		if err != nil {
			slog.Warn("failed to load update offset, starting from 0", "error", err)
		} else {
			offset = stored
		}
	}

	for {
		if ctx.Err() != nil {
			slog.Info("telegram poller stopping")
			return
		}

		next, err := p.poll(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait := p.backoff
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = time.Duration(apiErr.RetryAfter) * time.Second
			}
			slog.Error("failed to get updates", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}

		if next != offset {
			offset = next
			if p.offsets != nil {
				if err := p.offsets.SaveOffset(ctx, offset); err != nil {
					slog.Warn("failed to persist update offset", "offset", offset, "error", err)
				}
			}
		}
	}
}

// poll fetches one batch and returns the offset that confirms it.
func (p *Poller) poll(ctx context.Context, offset int64) (int64, error) {
	updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
	if err != nil {
		return offset, err
	}

	if len(updates) > 0 {
		slog.Debug("received updates", "count", len(updates))
	}

	for _, u := range updates {
		p.onUpdate(ctx, u)
		if u.UpdateID >= offset {
			offset = u.UpdateID + 1
		}
	}
	return offset, nil
}
