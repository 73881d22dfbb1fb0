// Package genai provides GenAI-backed operations using the OpenAI API: intent
// classification through function tool calls and Whisper speech transcription.
package genai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default model settings.
const (
	DefaultModel              = openai.ChatModelGPT4oMini
	DefaultTemperature        = 0.0
	DefaultTranscriptionModel = openai.AudioModelWhisper1
)

var (
	ErrNoChoicesReturned = errors.New("no choices returned")
	ErrNoToolCall        = errors.New("model did not call the requested tool")
	ErrMissingAPIKey     = errors.New("OPENAI_API_KEY not set")
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// transcriptionService defines minimal interface for audio transcription.
type transcriptionService interface {
	Transcribe(ctx context.Context, params openai.AudioTranscriptionNewParams) (string, error)
}

// openAIChat adapts the SDK chat completion service to chatService.
type openAIChat struct {
	svc *openai.ChatCompletionService
}

func (c openAIChat) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// openAITranscription adapts the SDK transcription service to transcriptionService.
type openAITranscription struct {
	svc *openai.AudioTranscriptionService
}

func (t openAITranscription) Transcribe(ctx context.Context, params openai.AudioTranscriptionNewParams) (string, error) {
	resp, err := t.svc.New(ctx, params)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model used for classification.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *Opts) { o.Temperature = temp }
}

// Client wraps the OpenAI chat and audio services.
type Client struct {
	chat        chatService
	audio       transcriptionService
	model       string
	temperature float64
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments []byte
}

// NewClient initializes a new GenAI client. The API key falls back to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	slog.Debug("GenAI client config loaded", "APIKey_set", cfg.APIKey != "", "model", cfg.Model)
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		chat:        openAIChat{svc: &cli.Chat.Completions},
		audio:       openAITranscription{svc: &cli.Audio.Transcriptions},
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// CallTool asks the model to answer userPrompt by calling tool and returns the
// first call it makes. The model is required to call a tool.
func (c *Client) CallTool(ctx context.Context, systemPrompt, userPrompt string, tool openai.ChatCompletionToolParam) (*ToolCall, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Tools:       []openai.ChatCompletionToolParam{tool},
		ToolChoice:  openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")},
		Temperature: openai.Float(c.temperature),
	}

	slog.Debug("Client.CallTool: requesting tool call", "model", c.model, "tool", tool.Function.Name, "promptLength", len(userPrompt))
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoicesReturned
	}
	for _, call := range resp.Choices[0].Message.ToolCalls {
		if call.Function.Name == tool.Function.Name {
			slog.Debug("Client.CallTool: tool call received", "tool", call.Function.Name, "argumentsLength", len(call.Function.Arguments))
			return &ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: []byte(call.Function.Arguments)}, nil
		}
	}
	return nil, ErrNoToolCall
}

// Transcribe converts recorded speech to text with Whisper. filename's
// extension tells the API how the audio is encoded.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename, contentType string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), filename, contentType),
		Model: DefaultTranscriptionModel,
	}
	text, err := c.audio.Transcribe(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	slog.Debug("Client.Transcribe: audio transcribed", "bytes", len(audio), "textLength", len(text))
	return text, nil
}
