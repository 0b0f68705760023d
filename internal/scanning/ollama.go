package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaConfig configures an Ollama scanner.
type OllamaConfig struct {
	BaseURL       string // default http://localhost:11434
	Model         string // default llava
	PromptVersion string
	Timeout       time.Duration // default 120s; local vision models are slow
}

// Ollama implements Scanner against a local Ollama server, for running
// the pipeline without a metered cloud endpoint.
type Ollama struct {
	baseURL string
	model   string
	prompt  string
	client  *http.Client
	timeout time.Duration
}

// NewOllama creates an Ollama scanner.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llava"
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
		timeout = 120 * time.Second
	}

	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		prompt:  prompt,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Images   []string        `json:"images,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Extract sends the image to the local model and returns its response
// verbatim.
func (o *Ollama) Extract(ctx context.Context, imageData []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	pngData, err := prepareImage(imageData, contentType)
	if err != nil {
		return "", &ExtractionError{Err: err}
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading and extracting information from receipts and invoices.",
			},
			{
				Role:    "user",
				Content: o.prompt,
			},
		},
		Images: []string{base64.StdEncoding.EncodeToString(pngData)},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ExtractionError{Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", &ExtractionError{Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", &ExtractionError{Err: fmt.Errorf("calling ollama API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &ExtractionError{Err: fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &ExtractionError{Err: fmt.Errorf("decoding response: %w", err)}
	}

	text := strings.TrimSpace(chatResp.Message.Content)
	if text == "" {
		return "", &ExtractionError{Err: fmt.Errorf("empty response from ollama")}
	}
	return text, nil
}

// Close is a no-op for the HTTP client.
func (o *Ollama) Close() error {
	return nil
}
