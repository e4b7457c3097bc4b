package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codewandler/orderrt-go/tool"
)

const (
	DefaultClientSecretsURL = "https://api.openai.com/v1/realtime/client_secrets"
	DefaultModel            = "gpt-4o-realtime-preview-2024-10-01"
	DefaultVoice            = "alloy"
)

// KeyMinter mints ephemeral realtime keys with the ordering session
// preconfigured.
type KeyMinter struct {
	apiKey string
	model  string
	voice  string
	url    string
	tools  []tool.Tool
	http   *http.Client
	logger *slog.Logger
}

type MinterOption func(*KeyMinter)

func WithModel(model string) MinterOption {
	return func(m *KeyMinter) {
		m.model = model
	}
}

func WithVoice(voice string) MinterOption {
	return func(m *KeyMinter) {
		m.voice = voice
	}
}

func WithClientSecretsURL(url string) MinterOption {
	return func(m *KeyMinter) {
		m.url = url
	}
}

func WithHTTPClient(c *http.Client) MinterOption {
	return func(m *KeyMinter) {
		m.http = c
	}
}

func WithLogger(logger *slog.Logger) MinterOption {
	return func(m *KeyMinter) {
		m.logger = logger
	}
}

func NewKeyMinter(apiKey string, opts ...MinterOption) *KeyMinter {
	m := &KeyMinter{
		apiKey: apiKey,
		model:  DefaultModel,
		voice:  DefaultVoice,
		url:    DefaultClientSecretsURL,
		tools:  Tools(),
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type clientSecretRequest struct {
	Session realtimeSession `json:"session"`
}

type realtimeSession struct {
	Type         string       `json:"type"`
	Model        string       `json:"model"`
	Audio        sessionAudio `json:"audio"`
	Instructions string       `json:"instructions"`
	Tools        []tool.Tool  `json:"tools"`
	ToolChoice   tool.Choice  `json:"tool_choice"`
}

type sessionAudio struct {
	Output struct {
		Voice string `json:"voice"`
	} `json:"output"`
}

// Mint returns an ephemeral key bound to sessionID.
func (m *KeyMinter) Mint(ctx context.Context, sessionID string) (string, error) {
	body := clientSecretRequest{Session: realtimeSession{
		Type:         "realtime",
		Model:        m.model,
		Instructions: Instructions(sessionID),
		Tools:        m.tools,
		ToolChoice:   tool.ChoiceFor(m.tools),
	}}
	body.Session.Audio.Output.Voice = m.voice

	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("client secret request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read client secret: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		m.logger.Error("client secret rejected", slog.Int("status", resp.StatusCode))
		return "", fmt.Errorf("client secret: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode client secret: %w", err)
	}
	if out.Value == "" {
		return "", errors.New("client secret: empty value")
	}
	return out.Value, nil
}
