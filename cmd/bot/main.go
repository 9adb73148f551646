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

// Access verification bot
//
// Entry point for the Telegram bot. It:
//  1. Loads configuration from config.yaml, .env and the environment
//  2. Connects to Redis and PostgreSQL when configured
//  3. Opens the Google Sheets ledger and the document classifier
//  4. Wires the intake workflow and the approval coordinator
//  5. Receives updates by long polling or through a registered webhook
//  6. Serves a health endpoint
//  7. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/accessbot/internal/approval"
	"github.com/bcem/accessbot/internal/audit"
	"github.com/bcem/accessbot/internal/bot"
	"github.com/bcem/accessbot/internal/classifier"
	"github.com/bcem/accessbot/internal/config"
	"github.com/bcem/accessbot/internal/dedup"
	"github.com/bcem/accessbot/internal/intake"
	"github.com/bcem/accessbot/internal/ledger"
	"github.com/bcem/accessbot/internal/pending"
	"github.com/bcem/accessbot/internal/telegram"
	"github.com/bcem/accessbot/internal/webhook"
)

const webhookVerifyInterval = 10 * time.Minute

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("starting access verification bot",
		"mode", cfg.Telegram.Mode,
		"admin_chat_id", cfg.Telegram.AdminChatID,
		"private_chat_id", cfg.Telegram.PrivateChatID,
		"ledger", cfg.Ledger.Enabled(),
		"classifier", cfg.Classifier.Enabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sinks := audit.Multi{audit.LogSink{}}

	// --- Connect to PostgreSQL (optional) ---
	var (
		pgPool  *pgxpool.Pool
		store   *audit.Store
		offsets telegram.OffsetStore
	)
	if cfg.DatabaseURL != "" {
		pgPool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		store, err = audit.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise decision store", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, store)
		offsets = store
	}

	// --- Connect to Redis (optional) ---
	var (
		rdb       *redis.Client
		publisher *audit.Publisher
	)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()

		publisher = audit.NewPublisher(rdb, audit.DefaultList)
		if err := publisher.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")
		sinks = append(sinks, publisher)
	}

	// --- Dedup Filter ---
	filter := dedup.NewFilter(rdb)

	// --- Telegram Client ---
	tg := telegram.NewClient(
		&http.Client{Timeout: cfg.Telegram.PollTimeout + 30*time.Second},
		cfg.Telegram.APIBaseURL,
		cfg.Telegram.Token,
	)
	me, err := tg.GetMe(ctx)
	if err != nil {
		slog.Error("failed to authenticate with the Bot API", "error", err)
		os.Exit(1)
	}
	slog.Info("authenticated with the Bot API", "username", me.Username, "bot_id", me.ID)

	// --- Ledger ---
	var sheetStore ledger.SheetStore
	if cfg.Ledger.Enabled() {
		ss, err := ledger.NewSheetsStore(ctx, cfg.Ledger.SpreadsheetID, cfg.Ledger.CredentialsFile)
		if err != nil {
			slog.Error("failed to open ledger", "error", err)
			os.Exit(1)
		}
		sheetStore = ss
	} else {
		slog.Warn("ledger not configured, owner lookups will miss and approvals will not be recorded")
	}
	gateway := ledger.NewGateway(sheetStore, cfg.Ledger.SheetName, cfg.Ledger.RoommateSheet)
	if gateway.Configured() {
		missing, err := gateway.Check(ctx)
		switch {
		case err != nil:
			slog.Warn("failed to read ledger header", "sheet", cfg.Ledger.SheetName, "error", err)
		case len(missing) > 0:
			slog.Warn("ledger header lacks lookup columns", "sheet", cfg.Ledger.SheetName, "missing", fmt.Sprint(missing))
		}
	}

	// --- Document Classifier ---
	cls, err := classifier.NewFromConfig(ctx, cfg.Classifier)
	if err != nil {
		slog.Error("failed to create document classifier", "error", err)
		os.Exit(1)
	}
	if !cls.Enabled() {
		slog.Warn("document classifier disabled, applicants will enter details manually")
	}

	// --- Workflows ---
	pendingStore := pending.NewStore()
	coordinator := approval.NewCoordinator(approval.Config{
		AdminChatID:   cfg.Telegram.AdminChatID,
		PrivateChatID: cfg.Telegram.PrivateChatID,
		SheetName:     cfg.Ledger.SheetName,
	}, tg, gateway, pendingStore, sinks)
	workflow := intake.New(tg, gateway, cls, coordinator)
	router := bot.NewRouter(tg, filter, workflow, coordinator, bot.NewObserver(tg, sinks), cfg.Telegram.AdminChatID)

	health := func(ctx context.Context) error {
		if publisher != nil {
			if err := publisher.Ping(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		if store != nil {
			if err := store.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		return nil
	}

	// --- Update Source ---
	var (
		receiver  *webhook.Handler
		registrar *webhook.Registrar
		hookURL   string
	)
	if cfg.Telegram.Mode == config.ModeWebhook {
		hookURL = resolveWebhookURL(cfg.Telegram.WebhookURL)
		if hookURL == "" {
			slog.Error("WEBHOOK_URL could not be resolved")
			os.Exit(1)
		}
		hookURL = webhook.Endpoint(hookURL)
		secret := cfg.Telegram.WebhookSecret
		if secret == "" {
			secret = webhook.GenerateSecret()
		}
		receiver = webhook.NewHandler(secret, router.Dispatch)
		registrar = webhook.NewRegistrar(tg, hookURL, secret, webhookVerifyInterval)
	}

	// Start the HTTP server BEFORE registering the webhook so the first
	// delivery finds a listener.
	engine := webhook.NewRouter(receiver, webhook.PathOf(hookURL), health)
	ready, err := webhook.Serve(ctx, cfg.Port, engine)
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready

	done := make(chan struct{})
	if registrar != nil {
		if err := registrar.Start(ctx); err != nil {
			slog.Error("failed to register webhook", "error", err)
			os.Exit(1)
		}
		close(done)
	} else {
		poller := telegram.NewPoller(tg, cfg.Telegram.PollTimeout, offsets, router.Dispatch)
		go func() {
			defer close(done)
			poller.Run(ctx)
		}()
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel() // Stop the poller, registrar and http server

	if registrar != nil {
		registrar.Stop()
	}
	<-done
	if receiver != nil {
		receiver.Wait()
	}

	requests, roommates, dialogs := pendingStore.Counts()
	if requests+roommates+dialogs > 0 {
		slog.Warn("pending requests are dropped on shutdown",
			"requests", requests,
			"roommates", roommates,
			"dialogs", dialogs,
		)
	}

	slog.Info("access verification bot stopped")
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// resolveWebhookURL resolves the webhook URL from config.
//
//   - "auto" → discover the public URL from a local ngrok container
//   - Any other string → use as-is (production)
func resolveWebhookURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.ToLower(raw) != "auto" {
		return raw
	}

	// Auto-discover from ngrok's local API.
	ngrokAPI := os.Getenv("NGROK_API_URL")
	if ngrokAPI == "" {
		ngrokAPI = "http://ngrok:4040"
	}

	slog.Info("discovering webhook URL from ngrok", "api", ngrokAPI)

	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		publicURL, err := ngrokTunnel(ngrokAPI)
		if err == nil {
			slog.Info("ngrok tunnel discovered", "url", publicURL)
			return publicURL
		}
		lastErr = err
		slog.Debug("ngrok not ready, retrying", "attempt", attempt+1, "error", err)
		time.Sleep(2 * time.Second)
	}

	slog.Error("failed to discover ngrok tunnel", "error", lastErr)
	return ""
}

// ngrokTunnel returns the https tunnel URL, or the first tunnel when none is https.
func ngrokTunnel(api string) (string, error) {
	resp, err := http.Get(api + "/api/tunnels")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		Tunnels []struct {
			PublicURL string `json:"public_url"`
			Proto     string `json:"proto"`
		} `json:"tunnels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	for _, t := range result.Tunnels {
		if t.Proto == "https" {
			return t.PublicURL, nil
		}
	}
	if len(result.Tunnels) > 0 {
		return result.Tunnels[0].PublicURL, nil
	}
	return "", errors.New("no tunnels found")
}
