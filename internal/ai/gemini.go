package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
}

// GeminiOptions configures NewGeminiClient. BaseURL is only set in tests.
type GeminiOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	cc := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &GeminiClient{client: c}, nil
}

func (c *GeminiClient) Name() string { return "gemini" }

func (c *GeminiClient) Do(ctx context.Context, req Request) (Response, error) {
	// The SDK takes raw bytes and re-encodes them on the wire.
	raw, err := base64.StdEncoding.DecodeString(req.MediaBase64)
	if err != nil {
		return Response{}, fmt.Errorf("gemini: invalid source data: %w", err)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(req.Instruction),
		genai.NewPartFromBytes(raw, req.MediaMIME),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := c.client.Models.GenerateContent(ctx, req.Model, contents, nil)
	if err != nil {
		return Response{}, err
	}
	if result == nil {
		return Response{}, nil
	}

	resp := Response{Text: result.Text()}
	if u := result.UsageMetadata; u != nil {
		resp.TokensIn = int(u.PromptTokenCount)
		resp.TokensOut = int(u.CandidatesTokenCount)
	}
	return resp, nil
}
