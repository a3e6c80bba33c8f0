// Package gemini composes reply text with Google's Gemini models through the
// genai SDK. It is the alternative to the OpenRouter client in package llm
// and satisfies the same platform.Composer contract.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"murmur/internal/services"
	"murmur/internal/services/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Composer generates replies with a Gemini model.
type Composer struct {
	models generator
	model  string
}

// New creates a composer backed by the Gemini API.
func New(ctx context.Context, apiKey, model string) (*Composer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newComposer(client.Models, model), nil
}

func newComposer(models generator, model string) *Composer {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Composer{models: models, model: model}
}

type replyPayload struct {
	Reply string `json:"reply"`
}

// Compose asks the model for a reply to text.
func (c *Composer) Compose(ctx context.Context, text, styleHint string, maxLength int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrComposer, "gemini", "compose", "source text required", nil)
	}
	prompt := buildPrompt(text, styleHint, maxLength)
	result, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", services.Wrap(services.ErrTimeout, "gemini", "compose", "deadline exceeded", err)
		}
		return "", services.Wrap(services.ErrComposer, "gemini", "compose", "generate content", err)
	}
	content := firstText(result)
	if content == "" {
		return "", services.Wrap(services.ErrComposer, "gemini", "compose", "empty response", nil)
	}
	var parsed replyPayload
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return "", services.Wrap(services.ErrComposer, "gemini", "compose", "parse payload", err)
	}
	reply := llm.Truncate(strings.TrimSpace(parsed.Reply), maxLength)
	if reply == "" {
		return "", services.Wrap(services.ErrComposer, "gemini", "compose", "model returned an empty reply", nil)
	}
	return reply, nil
}

// HealthCheck issues a minimal generation request.
func (c *Composer) HealthCheck(ctx context.Context) error {
	result, err := c.models.GenerateContent(ctx, c.model, genai.Text(`Respond with {"ok":true}`), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("gemini health: %w", err)
	}
	if firstText(result) == "" {
		return errors.New("gemini health: empty response")
	}
	return nil
}

func buildPrompt(text, styleHint string, maxLength int) string {
	var b strings.Builder
	b.WriteString(llm.ReplyPrompt)
	if hint := strings.TrimSpace(styleHint); hint != "" {
		fmt.Fprintf(&b, "\nStyle: %s.", hint)
	}
	if maxLength > 0 {
		fmt.Fprintf(&b, "\nKeep the reply under %d characters.", maxLength)
	}
	b.WriteString("\n\nMessage:\n")
	b.WriteString(text)
	return b.String()
}

func firstText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && strings.TrimSpace(part.Text) != "" {
				return strings.TrimSpace(part.Text)
			}
		}
	}
	return ""
}
