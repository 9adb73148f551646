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
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// offsetKey is the bot_state key holding the next getUpdates offset.
const offsetKey = "telegram_update_offset"

// Store is a Postgres decision log. It also persists the long-poll offset
// so a restarted poller does not replay confirmed updates.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a decision store backed by the given Postgres pool.
// It ensures the tables exist on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure decision schema: %w", err)
	}
	slog.Info("decision store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS decisions (
			id          UUID PRIMARY KEY,
			event       TEXT NOT NULL,
			status      TEXT NOT NULL,
			subject_id  BIGINT NOT NULL DEFAULT 0,
			actor       TEXT DEFAULT '',
			detail      TEXT DEFAULT '',
			error       TEXT DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_subject ON decisions(subject_id);
		CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);
		CREATE TABLE IF NOT EXISTS bot_state (
			key         TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			updated_at  TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// Record inserts o. Failures are logged and dropped.
func (s *Store) Record(ctx context.Context, o Outcome) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO decisions (id, event, status, subject_id, actor, detail, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, o.ID, string(o.Event), string(o.Status), o.SubjectID, o.Actor, o.Detail, o.Error, o.At)
	if err != nil {
		slog.Warn("failed to persist outcome", "outcome_id", o.ID, "event", o.Event, "error", err)
	}
}

// Recent returns the latest outcomes, newest first. A non-zero subjectID
// restricts the result to that subject.
func (s *Store) Recent(ctx context.Context, subjectID int64, limit int) ([]Outcome, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, event, status, subject_id, actor, detail, error, created_at
		FROM decisions
		WHERE $1::bigint = 0 OR subject_id = $1::bigint
		ORDER BY created_at DESC
		LIMIT $2
	`, subjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o             Outcome
			event, status string
		)
		if err := rows.Scan(&o.ID, &event, &status, &o.SubjectID, &o.Actor, &o.Detail, &o.Error, &o.At); err != nil {
			return nil, err
		}
		o.Event, o.Status = Event(event), Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

// LoadOffset returns the stored update offset, or 0 if none is stored.
func (s *Store) LoadOffset(ctx context.Context) (int64, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM bot_state WHERE key = $1`, offsetKey).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// SaveOffset upserts the update offset.
func (s *Store) SaveOffset(ctx context.Context, offset int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bot_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET
			value      = EXCLUDED.value,
			updated_at = NOW()
	`, offsetKey, strconv.FormatInt(offset, 10))
	return err
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
