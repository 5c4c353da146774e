package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/HamedShams/sprint-insights/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText(t *testing.T) {
	assert.Equal(t, []string{""}, ChunkText("", 10))
	assert.Equal(t, []string{"abc"}, ChunkText("abc", 0))
	assert.Equal(t, []string{"aaa\nbbb", "ccc"}, ChunkText("aaa\nbbb\nccc", 7))
}

func TestChunkTextHardSplitsLongLines(t *testing.T) {
	parts := ChunkText("ab\n"+strings.Repeat("я", 12), 5)
	assert.Equal(t, []string{"ab", "яяяяя", "яяяяя", "яя"}, parts)
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 5)
	}
}

type sent struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(config.Config{TelegramToken: "T0KEN"}, zerolog.Nop())
	c.api = srv.URL
	return c
}

func TestSendMessagePlain(t *testing.T) {
	var got sent
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botT0KEN/sendMessage", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "parse_mode")
		got.ChatID, got.Text = int64(body["chat_id"].(float64)), body["text"].(string)
		w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, c.SendMessagePlain(context.Background(), 42, "*not markdown*"))
	assert.Equal(t, sent{ChatID: 42, Text: "*not markdown*"}, got)
}

func TestSendMessagePlainRequiresConfig(t *testing.T) {
	c := NewClient(config.Config{}, zerolog.Nop())
	assert.False(t, c.Enabled())
	assert.ErrorIs(t, c.SendMessagePlain(context.Background(), 1, "x"), ErrNotConfigured)
}

func TestBroadcastContinuesPastFailingChat(t *testing.T) {
	var mu sync.Mutex
	var calls []sent
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var s sent
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&s))
		mu.Lock()
		calls = append(calls, s)
		mu.Unlock()
		if s.ChatID == 13 {
			http.Error(w, `{"ok":false}`, http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})

	text := strings.Repeat("line\n", MaxMessage/5+10)
	err := c.Broadcast(context.Background(), []int64{13, 7}, text)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 13")
	assert.Contains(t, err.Error(), "status=403")

	var to7 int
	for _, s := range calls {
		if s.ChatID == 7 {
			to7++
		}
	}
	assert.Equal(t, 2, to7)
}
