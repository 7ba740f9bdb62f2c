// Package ai wraps the generative-text provider behind a gateway that never
// fails hard: any transport or provider error is converted into an in-band
// degraded result so a turn can always complete.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/sirupsen/logrus"
)

// Role mirrors the provider's chat roles for prior turns.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one prior exchange entry in a lane's history.
type Turn struct {
	Role Role
	Text string
}

// ModelConfig selects the backing model and its reasoning budget.
// A zero budget disables extended deliberation entirely.
type ModelConfig struct {
	Model          string
	ThinkingBudget int
}

// Result carries either generated text or a tagged degraded placeholder.
// Degraded results are committed to the transcript like any other reply so
// the user sees the failure in-conversation instead of losing the turn.
type Result struct {
	Text     string
	Degraded bool
	Model    string
}

// Concept is a generated adventure seed for the randomize endpoint.
type Concept struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

// Gateway calls the provider's chat completion API.
type Gateway struct {
	client  openai.Client
	log     *logrus.Logger
	timeout time.Duration
}

// Options configures a Gateway.
type Options struct {
	APIKey  string
	BaseURL string
	// Timeout bounds each generation call; expiry degrades the result
	// rather than failing the turn.
	Timeout time.Duration
}

// New builds a Gateway over the OpenAI-compatible API.
func New(opts Options, log *logrus.Logger) *Gateway {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gateway{
		client:  openai.NewClient(reqOpts...),
		log:     log,
		timeout: timeout,
	}
}

// Generate produces the next reply for one lane. The system prompt and the
// lane's alternating prior turns are replayed ahead of the new input. On any
// failure the returned Result is Degraded with placeholder text naming the
// failing model.
func (g *Gateway) Generate(ctx context.Context, cfg ModelConfig, systemPrompt string, history []Turn, input string) Result {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, turn := range history {
		if turn.Role == RoleModel {
			messages = append(messages, openai.AssistantMessage(turn.Text))
		} else {
			messages = append(messages, openai.UserMessage(turn.Text))
		}
	}
	messages = append(messages, openai.UserMessage(input))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(cfg.Model),
		Messages: messages,
	}
	if cfg.ThinkingBudget > 0 {
		params.ReasoningEffort = effortForBudget(cfg.ThinkingBudget)
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		g.log.WithFields(logrus.Fields{
			"model": cfg.Model,
			"error": err,
		}).Warn("model generation failed, degrading")
		return Degraded(cfg.Model)
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		g.log.WithField("model", cfg.Model).Warn("model returned empty completion, degrading")
		return Degraded(cfg.Model)
	}

	return Result{Text: completion.Choices[0].Message.Content, Model: cfg.Model}
}

// RandomConcept asks the provider for a one-shot adventure seed: a title and
// a detailed DM system prompt, returned as JSON. Unlike Generate this call
// propagates failure; the caller has no transcript to degrade into.
func (g *Gateway) RandomConcept(ctx context.Context, model string) (Concept, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	const prompt = `Generate a concept for a short Dungeons & Dragons adventure. ` +
		`Provide a creative title and a detailed system prompt for a Dungeon Master. ` +
		`The prompt must describe the opening scene, the player character (invent a name and class), ` +
		`and the adventure's initial hook. Respond with a JSON object with exactly two string ` +
		`fields: "title" and "prompt".`

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return Concept{}, fmt.Errorf("generate adventure concept: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Concept{}, fmt.Errorf("adventure concept: empty completion")
	}

	var concept Concept
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &concept); err != nil {
		return Concept{}, fmt.Errorf("decode adventure concept: %w", err)
	}
	if concept.Title == "" || concept.Prompt == "" {
		return Concept{}, fmt.Errorf("adventure concept missing title or prompt")
	}
	return concept, nil
}

// Degraded builds the in-band placeholder committed when a model call fails.
func Degraded(model string) Result {
	return Result{
		Text:     fmt.Sprintf("[The DM (%s) has lost contact with the material plane. Please try your action again.]", model),
		Degraded: true,
		Model:    model,
	}
}

// effortForBudget maps the opaque numeric budget onto the provider's
// discrete reasoning-effort dial.
func effortForBudget(budget int) shared.ReasoningEffort {
	switch {
	case budget <= 512:
		return shared.ReasoningEffortLow
	case budget <= 2048:
		return shared.ReasoningEffortMedium
	default:
		return shared.ReasoningEffortHigh
	}
}
