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

// Package dedup drops Telegram updates that were already handled. Telegram
// redelivers an update when a webhook response is slow or a poller restarts
// before confirming its offset; a Redis SET NX with TTL makes handling
// at-most-once across replicas.
package dedup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long we remember a seen update ID. Telegram keeps
	// unconfirmed updates for 24 hours.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "accessbot:update:"
)

// Filter tracks which update IDs have already been processed.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis. A nil client disables
// deduplication and every update is reported as new.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// IsNew returns true if the update ID has NOT been seen before.
// If true, the update is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, updateID int64) (bool, error) {
	if f == nil || f.rdb == nil {
		return true, nil
	}

	set, err := f.rdb.SetNX(ctx, key(updateID), 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	return set, nil
}

func key(updateID int64) string {
	return keyPrefix + strconv.FormatInt(updateID, 10)
}
