package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultExtractTimeout = 30 * time.Second

// GeminiConfig configures a Gemini scanner.
type GeminiConfig struct {
	APIKey        string
	Model         string        // default gemini-1.5-flash
	PromptVersion string        // default DefaultPromptVersion
	Timeout       time.Duration // default 30s
}

// Gemini implements Scanner using Google Gemini vision models.
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	prompt  string
	timeout time.Duration
}

// NewGemini creates a Gemini scanner.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	version := cfg.PromptVersion
	if version == "" {
		version = DefaultPromptVersion
	}
	prompt, err := Prompt(version)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultExtractTimeout
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:  client,
		model:   client.GenerativeModel(modelName),
		prompt:  prompt,
		timeout: timeout,
	}, nil
}

// Extract sends the image plus the versioned prompt to the model and
// returns its text response verbatim. The timeout layers on the
// caller's ctx, so an aborted chat request cancels in-flight inference.
func (g *Gemini) Extract(ctx context.Context, imageData []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// prepareImage converts everything to PNG, so the format suffix is fixed.
	pngData, err := prepareImage(imageData, contentType)
	if err != nil {
		return "", &ExtractionError{Err: err}
	}

	resp, err := g.model.GenerateContent(ctx,
		genai.ImageData("png", pngData),
		genai.Text(g.prompt),
	)
	if err != nil {
		return "", &ExtractionError{Err: fmt.Errorf("generating content: %w", err)}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &ExtractionError{Err: fmt.Errorf("no response from gemini")}
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	if out.Len() == 0 {
		return "", &ExtractionError{Err: fmt.Errorf("gemini response contained no text parts")}
	}

	return out.String(), nil
}

// Close closes the Gemini client.
func (g *Gemini) Close() error {
	return g.client.Close()
}
