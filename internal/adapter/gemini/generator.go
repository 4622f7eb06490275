package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGenerationModel = "gemini-2.5-flash"

var ErrEmptyCompletion = errors.New("model returned no text")

// Generator completes prompts with a Gemini model. Temperature comes from
// settings on every call.
type Generator struct {
	clients *clientCache
	model   string
}

func NewGenerator(svc SettingsProvider, fallbackKey, model string, opts ...option.ClientOption) *Generator {
	if model == "" {
		model = DefaultGenerationModel
	}
	return &Generator{clients: newClientCache(svc, fallbackKey, opts), model: model}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	client, s, err := g.clients.resolve(ctx)
	if err != nil {
		return "", err
	}

	model := client.GenerativeModel(g.model)
	model.SetTemperature(s.Temperature)

	slog.DebugContext(ctx, "generating content", "model", g.model, "prompt_length", len(prompt))
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func (g *Generator) Close() error {
	return g.clients.Close()
}
