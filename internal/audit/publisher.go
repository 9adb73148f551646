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

package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultList is the Redis list outcomes are pushed to.
	DefaultList = "accessbot:outcomes"

	// maxListLen bounds the list; consumers are expected to keep up.
	maxListLen = 10000
)

// Publisher pushes outcomes as JSON onto a Redis list for external consumers.
type Publisher struct {
	rdb  *redis.Client
	list string
}

// NewPublisher creates a publisher targeting list.
func NewPublisher(rdb *redis.Client, list string) *Publisher {
	if list == "" {
		list = DefaultList
	}
	return &Publisher{rdb: rdb, list: list}
}

// Record LPUSHes o and trims the list. Failures are logged and dropped.
func (p *Publisher) Record(ctx context.Context, o Outcome) {
	body, err := json.Marshal(o)
	if err != nil {
		slog.Warn("failed to marshal outcome", "outcome_id", o.ID, "error", err)
		return
	}

	pipe := p.rdb.TxPipeline()
	pipe.LPush(ctx, p.list, body)
	pipe.LTrim(ctx, p.list, 0, maxListLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("failed to publish outcome", "outcome_id", o.ID, "list", p.list, "error", err)
		return
	}

	slog.Debug("published outcome", "outcome_id", o.ID, "event", o.Event, "list", p.list)
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
