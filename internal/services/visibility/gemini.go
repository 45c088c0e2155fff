package visibility

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// geminiProvider implements the raw vision-model call using the Gemini API
// with inline image parts.
type geminiProvider struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

func newGeminiProvider(ctx context.Context, apiKey, model string, maxTokens int) (*geminiProvider, error) {
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	return &geminiProvider{
		client:    client,
		model:     model,
		maxTokens: int32(maxTokens),
	}, nil
}

func (p *geminiProvider) name() string {
	return "gemini"
}

func (p *geminiProvider) complete(ctx context.Context, system string, parts []promptPart) (string, error) {
	geminiParts := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		if part.image != nil {
			geminiParts = append(geminiParts, genai.NewPartFromBytes(part.image, part.mediaType))
			continue
		}
		geminiParts = append(geminiParts, genai.NewPartFromText(part.text))
	}

	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: geminiParts,
		},
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: p.maxTokens,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no response generated from Gemini API")
	}
	return text, nil
}
