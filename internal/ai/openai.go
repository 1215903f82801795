package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type OpenAIClient struct {
	http      *http.Client
	apiKey    string
	baseURL   string
	maxTokens int
}

type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	MaxTokens  int
	HTTPClient *http.Client
}

func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	c := &OpenAIClient{http: opts.HTTPClient, apiKey: opts.APIKey, baseURL: opts.BaseURL, maxTokens: opts.MaxTokens}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.openai.com/v1"
	}
	if c.maxTokens <= 0 {
		c.maxTokens = 2048
	}
	return c, nil
}

func (c *OpenAIClient) Name() string { return "openai" }

type openAIMessage struct {
	Role    string                   `json:"role"`
	Content []map[string]interface{} `json:"content"`
}

type openAIChatReq struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) Do(ctx context.Context, req Request) (Response, error) {
	// Chat completions accept images as data URLs but have no video input.
	if !isImage(req.MediaMIME) {
		return Response{}, unsupportedMedia(c.Name(), req.MediaMIME)
	}

	imageURL := fmt.Sprintf("data:%s;base64,%s", req.MediaMIME, req.MediaBase64)
	payload := openAIChatReq{
		Model: req.Model,
		Messages: []openAIMessage{{
			Role: "user",
			Content: []map[string]interface{}{
				{"type": "text", "text": req.Instruction},
				{"type": "image_url", "image_url": map[string]string{"url": imageURL}},
			},
		}},
		MaxTokens: c.maxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.baseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, &HTTPError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body), Provider: c.Name()}
	}

	var r openAIChatResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Response{}, err
	}
	out := Response{TokensIn: r.Usage.PromptTokens, TokensOut: r.Usage.CompletionTokens}
	if len(r.Choices) > 0 {
		out.Text = r.Choices[0].Message.Content
	}
	return out, nil
}

// readErrorBody returns a bounded provider error body for HTTPError.
func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(b))
}
