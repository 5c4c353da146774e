/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/HamedShams/sprint-insights/internal/config"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// MaxMessage is the chunk size used for reports; Telegram rejects messages
// above 4096 characters.
const MaxMessage = 3800

var ErrNotConfigured = errors.New("telegram: missing token or chat id")

type Client struct {
	token string
	api   string
	http  *http.Client
	log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		token: cfg.TelegramToken,
		api:   "https://api.telegram.org",
		http:  &http.Client{Timeout: cfg.HTTPTimeout},
		log:   log,
	}
}

// Enabled reports whether a bot token is configured.
func (c *Client) Enabled() bool { return c.token != "" }

// SendMessagePlain sends without parse_mode so report text is never parsed as markup.
func (c *Client) SendMessagePlain(ctx context.Context, chatID int64, text string) error {
	if c.token == "" || chatID == 0 {
		return ErrNotConfigured
	}
	body := map[string]any{"chat_id": chatID, "text": text, "disable_web_page_preview": true}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.api, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram sendMessage status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// Broadcast sends text in chunks to every chat. A failing chat does not stop
// delivery to the others; all failures are returned together.
func (c *Client) Broadcast(ctx context.Context, chatIDs []int64, text string) error {
	var result *multierror.Error
	parts := ChunkText(text, MaxMessage)
	for _, chat := range chatIDs {
		for i, part := range parts {
			if err := c.SendMessagePlain(ctx, chat, part); err != nil {
				c.log.Error().Err(err).Int64("chat", chat).Int("part", i+1).Msg("telegram send failed")
				result = multierror.Append(result, fmt.Errorf("chat %d: %w", chat, err))
				break
			}
		}
	}
	return result.ErrorOrNil()
}

// ChunkText splits text into chunks of up to max runes, breaking on line
// boundaries where possible.
func ChunkText(s string, max int) []string {
	if max <= 0 {
		return []string{s}
	}
	var chunks []string
	var cur strings.Builder
	curlen := 0
	flush := func() {
		if curlen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curlen = 0
		}
	}
	for _, ln := range strings.Split(s, "\n") {
		r := []rune(ln)
		if len(r) > max {
			flush()
			for i := 0; i < len(r); i += max {
				chunks = append(chunks, string(r[i:min(i+max, len(r))]))
			}
			continue
		}
		extra := len(r)
		if curlen > 0 {
			extra++
		}
		if curlen+extra > max {
			flush()
			extra = len(r)
		}
		if curlen > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(ln)
		curlen += extra
	}
	flush()
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	return chunks
}
