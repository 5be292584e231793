// Package chat wraps an external LLM as the chat-assisted query
// translator (spec §6): a thin wrapper active only when OPENAI_API_KEY is
// present, gated behind a one-time confirmation before the first call.
package chat

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single chat call so the synchronous cycle-driver
// loop is never blocked indefinitely on a network call the user declined
// to wait for (spec §5: no timeouts/cancellation internal to the driver
// itself, but an outer bound on this one blocking external call is not a
// driver-level concept and does not violate that invariant).
const DefaultTimeout = 30 * time.Second

// Client is a confirmation-gated OpenAI chat client.
type Client struct {
	client    *openai.Client
	model     string
	confirmed bool
}

// NewClient constructs a Client from an API key and model name. Returns
// false if apiKey is empty, matching spec §6: the chat path is only active
// when OPENAI_API_KEY is present.
func NewClient(apiKey, model string) (*Client, bool) {
	if apiKey == "" {
		return nil, false
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{client: openai.NewClient(apiKey), model: model}, true
}

// Confirm records that the user approved the first call to the external
// LLM for this process. Obtaining that approval from the user is the
// caller's job; Confirm only records it.
func (c *Client) Confirm() {
	c.confirmed = true
}

// Confirmed reports whether the user has already approved chat calls.
func (c *Client) Confirmed() bool {
	return c.confirmed
}

// Translate asks the model to translate a free-form prompt into a query or
// command the reasoner understands, or to answer conversationally. It
// returns the model's raw text response.
func (c *Client) Translate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.confirmed {
		return "", fmt.Errorf("chat not confirmed for this session")
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var reply string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := c.client.CreateChatCompletion(gctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
		})
		if err != nil {
			return fmt.Errorf("openai chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("openai returned no choices")
		}
		reply = resp.Choices[0].Message.Content
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}
	return reply, nil
}

// SystemPrompt is the default system prompt instructing the model to act
// as a query translator for the reasoner's fact/query surface grammar.
const SystemPrompt = `You are a query-translation assistant for a forward-chaining
production-rule reasoner. Translate the user's natural-language question into
the reasoner's query syntax when possible, otherwise answer conversationally.
Never invent facts about the working memory; only describe what the user asks.`
