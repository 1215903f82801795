package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type AnthropicClient struct {
	http      *http.Client
	apiKey    string
	baseURL   string
	maxTokens int
}

type AnthropicOptions struct {
	APIKey     string
	BaseURL    string
	MaxTokens  int
	HTTPClient *http.Client
}

func NewAnthropicClient(opts AnthropicOptions) (*AnthropicClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	c := &AnthropicClient{http: opts.HTTPClient, apiKey: opts.APIKey, baseURL: opts.BaseURL, maxTokens: opts.MaxTokens}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.anthropic.com/v1"
	}
	if c.maxTokens <= 0 {
		c.maxTokens = 2048
	}
	return c, nil
}

func (c *AnthropicClient) Name() string { return "anthropic" }

type anthropicBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMsgReq struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string           `json:"role"`
		Content []anthropicBlock `json:"content"`
	} `json:"messages"`
}

type anthropicMsgResp struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) Do(ctx context.Context, req Request) (Response, error) {
	if !isImage(req.MediaMIME) {
		return Response{}, unsupportedMedia(c.Name(), req.MediaMIME)
	}

	payload := anthropicMsgReq{Model: req.Model, MaxTokens: c.maxTokens}
	payload.Messages = append(payload.Messages, struct {
		Role    string           `json:"role"`
		Content []anthropicBlock `json:"content"`
	}{
		Role: "user",
		Content: []anthropicBlock{
			{Type: "image", Source: &anthropicImageSource{Type: "base64", MediaType: req.MediaMIME, Data: req.MediaBase64}},
			{Type: "text", Text: req.Instruction},
		},
	})

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.baseURL, "/")+"/messages", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, &HTTPError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body), Provider: c.Name()}
	}

	var r anthropicMsgResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return Response{}, err
	}
	var sb strings.Builder
	for _, block := range r.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return Response{Text: sb.String(), TokensIn: r.Usage.InputTokens, TokensOut: r.Usage.OutputTokens}, nil
}
