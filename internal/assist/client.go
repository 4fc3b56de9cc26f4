// Package assist talks to an OpenAI-compatible chat completions API to turn
// natural language into shell commands and to explain failed commands.
package assist

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrNoAPIKey is returned when no API key is stored.
var ErrNoAPIKey = errors.New("API key not set")

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client streams chat completions.
type Client struct {
	http     *http.Client
	base     *url.URL
	chatPath string
	model    string
}

// NewClient returns a client for baseURL. A nil httpClient uses
// http.DefaultClient.
func NewClient(httpClient *http.Client, baseURL, chatPath, model string) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if chatPath == "" {
		chatPath = "/chat/completions"
	}
	return &Client{http: httpClient, base: base, chatPath: chatPath, model: model}, nil
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// Stream sends messages and calls onDelta for each content fragment. It
// returns the assembled text.
func (c *Client) Stream(ctx context.Context, apiKey string, messages []Message, onDelta func(string)) (string, error) {
	reqURL := c.base.ResolveReference(&url.URL{Path: c.base.Path + c.chatPath})

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages, Stream: true})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", reqURL.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, errorMessage(b))
	}
	return readStream(resp.Body, onDelta)
}

// errorMessage extracts error.message from an API error body, falling back
// to the first 200 bytes of the body.
func errorMessage(body []byte) string {
	var parsed struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// readStream is a minimal SSE parser: data lines are collected until a blank
// line and decoded as one chunk. [DONE] ends the stream.
func readStream(r io.Reader, onDelta func(string)) (string, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var text strings.Builder
	var dataLines []string

	flush := func() (bool, error) {
		if len(dataLines) == 0 {
			return false, nil
		}
		data := strings.TrimSpace(strings.Join(dataLines, "\n"))
		dataLines = dataLines[:0]
		if data == "" {
			return false, nil
		}
		if data == "[DONE]" {
			return true, nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Keepalive noise from some providers.
			return false, nil
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return false, fmt.Errorf("api error: %s", chunk.Error.Message)
		}
		for _, choice := range chunk.Choices {
			if d := choice.Delta.Content; d != "" {
				if onDelta != nil {
					onDelta(d)
				}
				text.WriteString(d)
			}
		}
		return false, nil
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return text.String(), err
		}
		eof := err != nil
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.TrimSpace(line) == "":
			done, ferr := flush()
			if ferr != nil {
				return text.String(), ferr
			}
			if done {
				return text.String(), nil
			}
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		if eof {
			break
		}
	}
	if _, err := flush(); err != nil {
		return text.String(), err
	}
	return text.String(), nil
}
