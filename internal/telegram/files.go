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
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
)

// Download is the content of a file fetched from Telegram's file storage.
type Download struct {
	Data     []byte
	MimeType string
	FilePath string
}

// DownloadFile resolves fileID via getFile and fetches its bytes.
func (c *Client) DownloadFile(ctx context.Context, fileID string) (*Download, error) {
	f, err := c.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	if f.FileSize > maxDownloadSize {
		return nil, fmt.Errorf("file %s is %d bytes, limit is %d", fileID, f.FileSize, maxDownloadSize)
	}

	u := c.FileURL(f.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Warn("telegram file not found (link may have expired)", "file_id", fileID)
		drain(resp.Body)
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return nil, fmt.Errorf("file download returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > maxDownloadSize {
		return nil, fmt.Errorf("file %s exceeds %d bytes", fileID, maxDownloadSize)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimeFromPath(f.FilePath)
	}

	return &Download{Data: data, MimeType: mimeType, FilePath: f.FilePath}, nil
}

// FileURL is the download location of a resolved file path. It embeds the
// bot token and must not be logged.
func (c *Client) FileURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimLeft(filePath, "/"))
}

// mimeFromPath guesses a content type from the file extension. Telegram
// stores photos as .jpg and serves everything as octet-stream.
func mimeFromPath(p string) string {
	t := mime.TypeByExtension(strings.ToLower(path.Ext(p)))
	if t == "" {
		return "application/octet-stream"
	}
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil {
		return "application/octet-stream"
	}
	return mediaType
}
