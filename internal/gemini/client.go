// Package gemini models the remote reasoning service as a chat factory. A
// Chat preserves conversational context on the remote side; the caller only
// ever sends text and receives text. The per-session lock in the session
// manager guarantees a chat handle never sees concurrent sends.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"reasongate/internal/logging"
	"reasongate/internal/reasonerr"
)

// Role identifies the author of a primed history message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one primed turn of chat history.
type Message struct {
	Role Role
	Text string
}

// Chat is an opaque handle to one remote conversation.
type Chat interface {
	Send(ctx context.Context, text string) (string, error)
}

// ChatFactory starts new chats, optionally primed with history.
type ChatFactory interface {
	StartChat(ctx context.Context, history []Message) (Chat, error)
}

// Config holds the client configuration.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:  apiKey,
		Model:   "gemini-2.5-pro",
		Timeout: 2 * time.Minute,
	}
}

// Client implements ChatFactory against the Gemini API.
type Client struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewClient creates a Gemini-backed chat factory.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, reasonerr.New(reasonerr.CodeAPIAuth, "Gemini API key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-pro"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

// genaiRole maps a primed-history role onto the SDK's role type. Anything
// that is not the model is sent as the user.
func genaiRole(r Role) genai.Role {
	if r == RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// StartChat opens a remote conversation primed with history.
func (c *Client) StartChat(ctx context.Context, history []Message) (Chat, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		contents = append(contents, genai.NewContentFromText(m.Text, genaiRole(m.Role)))
	}

	chat, err := c.client.Chats.Create(ctx, c.model, nil, contents)
	if err != nil {
		return nil, reasonerr.Classify(fmt.Errorf("failed to start chat: %w", err))
	}

	logging.Gemini("started chat with %d primed turns (model %s)", len(history), c.model)
	return &genaiChat{chat: chat, timeout: c.timeout}, nil
}

// genaiChat wraps a genai chat with a per-send deadline and error
// classification.
type genaiChat struct {
	chat    *genai.Chat
	timeout time.Duration
}

func (g *genaiChat) Send(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", reasonerr.Classify(fmt.Errorf("send failed: %w", err))
	}

	out := resp.Text()
	if out == "" {
		return "", reasonerr.New(reasonerr.CodeAPIParse, "empty response from remote service")
	}
	logging.Gemini("send round-trip %s (%d -> %d bytes)", time.Since(start).Round(time.Millisecond), len(text), len(out))
	return out, nil
}
