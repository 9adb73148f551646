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

// Package webhook receives Telegram updates pushed to the bot's public URL
// and keeps the webhook registration in place. Telegram POSTs each update as
// JSON and retries until it gets a 2xx, so the handler acknowledges first and
// dispatches in the background.
package webhook

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bcem/accessbot/internal/telegram"
)

// SecretHeader carries the secret token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// DefaultPath is the receiver route when the webhook URL has no path.
const DefaultPath = "/telegram/webhook"

// Dispatcher handles one update.
type Dispatcher func(ctx context.Context, u telegram.Update)

// Handler receives webhook deliveries.
type Handler struct {
	secret   string
	dispatch Dispatcher
	timeout  time.Duration

	wg sync.WaitGroup
}

// NewHandler creates a receiver that accepts only requests carrying secret.
func NewHandler(secret string, dispatch Dispatcher) *Handler {
	return &Handler{
		secret:   secret,
		dispatch: dispatch,
		timeout:  2 * time.Minute,
	}
}

// ServeUpdate handles a webhook delivery.
//
//   - A missing or wrong secret token is refused with 401.
//   - A body that is not an update is acknowledged and dropped, so Telegram
//     does not redeliver it forever.
//   - A valid update is acknowledged with 200 and processed in the background.
func (h *Handler) ServeUpdate(c *gin.Context) {
	got := c.GetHeader(SecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		slog.Warn("webhook request with invalid secret token", "remote", c.ClientIP())
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	var u telegram.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		slog.Info("webhook body is not a valid update", "error", err)
		c.Status(http.StatusOK)
		return
	}

	c.Status(http.StatusOK)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		h.dispatch(ctx, u)
	}()
}

// Wait blocks until in-flight updates are processed.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// NewRouter builds the HTTP routes: the webhook receiver (when h is non-nil)
// and a health check.
func NewRouter(h *Handler, path string, health func(ctx context.Context) error) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	if h != nil {
		if path == "" {
			path = DefaultPath
		}
		r.POST(path, h.ServeUpdate)
	}
	return r
}

// Serve starts the HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections. The server stops when ctx is done.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("http server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	return ready, nil
}
