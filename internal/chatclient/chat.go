// Package chatclient is the chat-completion client used by answer
// assembly to turn a grounded context window into prose. It shares its
// HTTP client shape — pooled transport, context-scoped timeouts,
// retry-on-transient — with internal/embed's Ollama client.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/embed"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/rerrors"
)

// Role is one message's speaker, mirroring Ollama's /api/chat roles.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Config configures Client.
type Config struct {
	Host       string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	PoolSize   int
}

const (
	DefaultHost       = "http://localhost:11434"
	DefaultModel      = "llama3.1:8b"
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 2
	DefaultPoolSize   = 4
)

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
}

// Client talks to Ollama's /api/chat endpoint. Grounded on OllamaEmbedder's
// transport construction: a shared pooled http.Transport, a client with no
// Client-level Timeout (per-request context timeouts only, so a caller can
// scale timeout with prompt size without fighting a static client deadline).
type Client struct {
	http   *http.Client
	config Config
}

// New creates a chat client. It does not probe Ollama's availability;
// callers check that via Available, mirroring OllamaEmbedder's
// SkipHealthCheck-by-default-in-constructor pattern.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &Client{
		http:   &http.Client{Transport: transport},
		config: cfg,
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type chatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// Complete sends messages to the configured chat model and returns the
// assistant's reply. Temperature is fixed at 0 for deterministic,
// grounded answers rather than creative variation.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	reqBody := chatRequest{
		Model:    c.config.Model,
		Messages: messages,
		Stream:   false,
	}
	reqBody.Options.Temperature = 0

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", rerrors.InternalError("encoding chat request", err)
	}

	var reply string
	retryCfg := embed.DefaultRetryConfig()
	retryCfg.MaxRetries = c.config.MaxRetries

	err = embed.DownloadWithRetry(ctx, retryCfg, func() error {
		text, callErr := c.doComplete(ctx, payload)
		if callErr != nil {
			return callErr
		}
		reply = text
		return nil
	})
	if err != nil {
		return "", rerrors.TransportFailure("chat completion", err)
	}
	return reply, nil
}

func (c *Client) doComplete(ctx context.Context, payload []byte) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.Host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama chat request failed: %s: %s", resp.Status, string(body))
	}

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	return out.Message.Content, nil
}

// Available reports whether the configured Ollama instance is reachable
// (GET /api/tags answers 200), for the `doctor` preflight. It does not check
// that the configured chat model is among the served models.
func (c *Client) Available(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) ModelName() string {
	return c.config.Model
}

// SetModel updates the active chat model name, used by C9 when the model
// registry's chat model is changed live.
func (c *Client) SetModel(model string) {
	c.config.Model = model
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
