package convai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client talks to the provider's REST API. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// ListRecent fetches the most recent conversations, newest first, up to
// limit. Only the most-recent window is fetched; there is no pagination.
func (c *Client) ListRecent(ctx context.Context, limit int) ([]Conversation, error) {
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(limit))

	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.getJSON(ctx, "/v1/convai/conversations", q, &out); err != nil {
		return nil, fmt.Errorf("convai: list conversations: %w", err)
	}
	return out.Conversations, nil
}

// GetTranscript fetches the conversation detail and flattens its transcript
// turns into a single text block, one "role: message" line per turn. A call
// without transcript content yields an empty Text, not an error.
func (c *Client) GetTranscript(ctx context.Context, conversationID string) (Transcript, error) {
	if conversationID == "" {
		return Transcript{}, fmt.Errorf("convai: get transcript: empty conversation id")
	}

	var detail struct {
		Transcript []TranscriptTurn `json:"transcript"`
		Metadata   struct {
			CallDurationSecs int `json:"call_duration_secs"`
		} `json:"metadata"`
	}
	path := "/v1/convai/conversations/" + url.PathEscape(conversationID)
	if err := c.getJSON(ctx, path, nil, &detail); err != nil {
		return Transcript{}, fmt.Errorf("convai: get transcript %s: %w", conversationID, err)
	}

	return Transcript{
		Text:            flattenTurns(detail.Transcript),
		DurationSeconds: detail.Metadata.CallDurationSecs,
	}, nil
}

func flattenTurns(turns []TranscriptTurn) string {
	var b strings.Builder
	for _, t := range turns {
		msg := strings.TrimSpace(t.Message)
		if msg == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		if t.Role != "" {
			b.WriteString(t.Role)
			b.WriteString(": ")
		}
		b.WriteString(msg)
	}
	return b.String()
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
