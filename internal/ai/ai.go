// Package ai asks the playground's OpenAI-compatible endpoint for code
// suggestions.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/fakeyudi/playground/internal/languages"
)

// Mode selects the kind of suggestion.
type Mode string

const (
	ModeExplain  Mode = "explain"
	ModeImprove  Mode = "improve"
	ModeFix      Mode = "fix"
	ModeComplete Mode = "complete"
	ModeAsk      Mode = "ask"
)

// Modes lists the accepted modes.
func Modes() []Mode { return []Mode{ModeExplain, ModeImprove, ModeFix, ModeComplete, ModeAsk} }

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("model returned no suggestion")

// Request is one suggestion request.
type Request struct {
	Mode       Mode
	LanguageID int
	Code       string
	Question   string // required for ModeAsk, optional context otherwise
}

// Suggester calls the chat completions API.
type Suggester struct {
	client *openai.Client
	model  string
	log    *slog.Logger
}

// New returns a suggester for the deployment at baseURL. token is the user's
// session token; the endpoint authenticates it like any other API call.
func New(baseURL, token, model string, httpClient *http.Client, logger *slog.Logger) *Suggester {
	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/api/ai/v1"
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Suggester{client: openai.NewClientWithConfig(cfg), model: model, log: logger.With("component", "ai")}
}

func systemPrompt(mode Mode, lang string) string {
	base := fmt.Sprintf("You are a concise programming assistant. The user's code is %s.", lang)
	switch mode {
	case ModeExplain:
		return base + " Explain what the code does, step by step, in plain language."
	case ModeImprove:
		return base + " Suggest improvements for readability and performance. Show the revised code."
	case ModeFix:
		return base + " Find bugs and return a corrected version of the code with a short note per fix."
	case ModeComplete:
		return base + " Continue the code from where it stops. Reply with code only."
	default:
		return base + " Answer the user's question about the code."
	}
}

// Suggest returns the model's reply.
func (s *Suggester) Suggest(ctx context.Context, req Request) (string, error) {
	if req.Mode == "" {
		req.Mode = ModeExplain
	}
	if req.Mode == ModeAsk && strings.TrimSpace(req.Question) == "" {
		return "", errors.New("a question is required")
	}
	if strings.TrimSpace(req.Code) == "" && req.Mode != ModeAsk {
		return "", errors.New("no code to send")
	}
	langName := "plain text"
	if l, ok := languages.ByID(req.LanguageID); ok {
		langName = l.Name
	}

	user := "```\n" + req.Code + "\n```"
	if req.Question != "" {
		user = req.Question + "\n\n" + user
	}
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req.Mode, langName)},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("suggestion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	s.log.Debug("suggestion received", "mode", req.Mode, "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
