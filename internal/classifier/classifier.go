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

// Package classifier extracts apartment data from a photo of an ownership
// document using a vision-capable chat model.
package classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/bcem/accessbot/internal/models"
)

// Prompt is the fixed instruction sent with every document.
const Prompt = `Ти отримуєш фото документа про право власності на квартиру в Україні.
Знайди номер квартири, її загальну площу та тип документа.
Тип документа має бути одним із: "Договір інвестування" або "Витяг про право власності".
Відповідай лише JSON-об'єктом з рівно трьома полями:
{"apartment_number": string|null, "area": string|null, "document_type": string|null}
Якщо поле неможливо визначити, став null.`

// Generator is the part of an eino chat model the classifier needs.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Input is the document image: inline bytes with a MIME type, or a remote URL.
type Input struct {
	Data     []byte
	MimeType string
	URL      string
}

// Result holds the three extracted fields. Missing fields are empty.
type Result struct {
	ApartmentID  string
	Area         string
	DocumentType string
}

// Document converts the result into a DocumentRecord. It reports false when
// a field is missing or the document type is not one of the accepted
// categories.
func (r *Result) Document(media models.MediaRef) (models.DocumentRecord, bool) {
	if r == nil {
		return models.DocumentRecord{}, false
	}
	dt, ok := models.ParseDocumentType(r.DocumentType)
	if !ok {
		return models.DocumentRecord{}, false
	}
	doc := models.DocumentRecord{
		ApartmentID: strings.TrimSpace(r.ApartmentID),
		Area:        strings.TrimSpace(r.Area),
		Type:        dt,
		Media:       media,
	}
	if !doc.Complete() {
		return models.DocumentRecord{}, false
	}
	return doc, true
}

// response is the JSON object the model is asked to return.
type response struct {
	ApartmentNumber *string `json:"apartment_number"`
	Area            *string `json:"area"`
	DocumentType    *string `json:"document_type"`
}

// Classifier calls the model once per document.
type Classifier struct {
	model Generator
}

// New wraps a chat model. A nil model yields a classifier that always returns nil.
func New(m Generator) *Classifier {
	return &Classifier{model: m}
}

// Enabled reports whether a model is configured.
func (c *Classifier) Enabled() bool {
	return c != nil && c.model != nil
}

// Classify returns the extracted fields, or nil when no model is configured
// or the call or its parsing fails. It does not retry.
func (c *Classifier) Classify(ctx context.Context, in Input) *Result {
	if !c.Enabled() {
		return nil
	}

	msg, err := buildMessage(in)
	if err != nil {
		slog.Warn("classifier input rejected", "error", err)
		return nil
	}

	out, err := c.model.Generate(ctx, []*schema.Message{msg})
	if err != nil {
		slog.Warn("classifier call failed", "error", err)
		return nil
	}

	res, err := parseResponse(out.Content)
	if err != nil {
		slog.Warn("classifier response unparseable", "error", err)
		return nil
	}
	return res
}

// buildMessage builds the user message with the prompt and one image part.
// Inline bytes are embedded as a data URL; a remote URL is passed unchanged.
func buildMessage(in Input) (*schema.Message, error) {
	var imageURL string
	switch {
	case len(in.Data) > 0:
		mime := in.MimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		imageURL = "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(in.Data)
	case in.URL != "":
		imageURL = in.URL
	default:
		return nil, errors.New("no image data or URL")
	}

	return &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: Prompt},
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:      imageURL,
					Detail:   schema.ImageURLDetailHigh,
					MIMEType: in.MimeType,
				},
			},
		},
	}, nil
}

// parseResponse decodes the JSON object from the model output, tolerating
// surrounding prose or a fenced code block.
func parseResponse(content string) (*Result, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in %d byte response", len(content))
	}

	var r response
	if err := json.Unmarshal([]byte(content[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Result{
		ApartmentID:  deref(r.ApartmentNumber),
		Area:         deref(r.Area),
		DocumentType: deref(r.DocumentType),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
