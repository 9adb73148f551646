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

package classifier

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"google.golang.org/genai"

	"github.com/bcem/accessbot/internal/config"
)

// Default models per provider; all accept image input.
const (
	DefaultOpenAIModel = "gpt-4o"
	DefaultClaudeModel = "claude-3-5-sonnet-latest"
	DefaultGeminiModel = "gemini-2.0-flash"
)

// NewFromConfig builds a classifier for the configured provider. With no API
// key the returned classifier is disabled.
func NewFromConfig(ctx context.Context, cfg config.ClassifierConfig) (*Classifier, error) {
	if !cfg.Enabled() {
		return New(nil), nil
	}

	var (
		gen Generator
		err error
	)

	switch cfg.Provider {
	case "openai", "":
		gen, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   modelOrDefault(cfg.Model, DefaultOpenAIModel),
			APIKey:  cfg.APIKey,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if cerr != nil {
			return nil, fmt.Errorf("create gemini client: %w", cerr)
		}
		gen, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelOrDefault(cfg.Model, DefaultGeminiModel),
		})
	case "claude":
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		gen, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     modelOrDefault(cfg.Model, DefaultClaudeModel),
			BaseURL:   baseURL,
			MaxTokens: 512,
		})
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", cfg.Provider, err)
	}

	return New(gen), nil
}

func modelOrDefault(m, def string) string {
	if m == "" {
		return def
	}
	return m
}
