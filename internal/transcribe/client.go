// Package transcribe is a stateless proxy to an OpenAI-compatible
// speech-to-text endpoint. It holds no conversation state; the gateway
// feeds the returned text into a session like any typed message.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"parley/internal/config"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
)

type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

func NewClient(cfg *config.APIConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.TranscribeURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL:    baseURL,
		APIKey:     strings.TrimSpace(cfg.TranscribeKey),
		Model:      cfg.TranscribeModel,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe posts the audio payload and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, fileName string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("transcription input is empty")
	}

	name := strings.TrimSpace(filepath.Base(fileName))
	if name == "" || name == "." {
		name = "audio.wav"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("building transcription request: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("writing transcription input: %w", err)
	}
	if err := writer.WriteField("model", c.Model); err != nil {
		return "", fmt.Errorf("setting transcription model: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/audio/transcriptions", bytes.NewReader(body.Bytes()))
	if err != nil {
		return "", err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading transcription response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		message := strings.TrimSpace(string(respBody))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("transcription returned status %d: %s", resp.StatusCode, message)
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decoding transcription response: %w", err)
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return "", fmt.Errorf("transcription response had no text")
	}
	return parsed.Text, nil
}
