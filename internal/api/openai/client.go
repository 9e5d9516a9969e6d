package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion is returned when the model answers with no content.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Client wraps an OpenAI-compatible chat completion endpoint
type Client struct {
	name        string
	model       string
	temperature float32
	client      *openai.Client
	logger      zerolog.Logger
}

// ClientOptions configures one provider
type ClientOptions struct {
	Name        string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
}

// NewClient creates a new chat completion client for an OpenAI-compatible API
func NewClient(opts ClientOptions) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	return &Client{
		name:        opts.Name,
		model:       opts.Model,
		temperature: opts.Temperature,
		client:      openai.NewClientWithConfig(cfg),
		logger:      log.With().Str("component", "openai_client").Str("provider", opts.Name).Logger(),
	}
}

// Name returns the provider label.
func (c *Client) Name() string { return c.name }

// Model returns the model identifier sent with each request.
func (c *Client) Model() string { return c.model }

// Complete sends a system and user message and returns the first choice
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	c.logger.Debug().Int("prompt_len", len(user)).Str("model", c.model).Msg("sending prompt")

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: c.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
		},
	)
	if err != nil {
		c.logger.Error().Err(err).Msg("chat completion error")
		return "", err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		c.logger.Warn().Msg("empty choices")
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
