package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/videoprompt/internal/config"
)

const pngB64 = "iVBORw0KGgo="

func TestOpenAIClientSendsDataURL(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"A slow pan over a harbor."}}],"usage":{"prompt_tokens":12,"completion_tokens":7}}`)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{Model: "gpt-4.1", Instruction: "describe", MediaBase64: pngB64, MediaMIME: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "A slow pan over a harbor.", resp.Text)
	assert.Equal(t, 12, resp.TokensIn)
	assert.Equal(t, 7, resp.TokensOut)

	msgs := got["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	img := content[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,"+pngB64, img["url"])
}

func TestOpenAIClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{Instruction: "x", MediaBase64: pngB64, MediaMIME: "image/png"})
	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, 503, herr.StatusCode)
	assert.Equal(t, "openai", herr.Provider)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestRawHTTPClientsRejectVideoLocally(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	oc, err := NewOpenAIClient(OpenAIOptions{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	ac, err := NewAnthropicClient(AnthropicOptions{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	for _, c := range []Client{oc, ac} {
		_, err := c.Do(context.Background(), Request{Instruction: "x", MediaBase64: "AAAA", MediaMIME: "video/mp4"})
		require.Error(t, err, c.Name())
		assert.True(t, strings.HasPrefix(err.Error(), "invalid_argument:"), err.Error())
	}
	assert.False(t, called)
}

func TestAnthropicClientSendsImageBlock(t *testing.T) {
	var got anthropicMsgReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"Golden hour, "},{"type":"text","text":"wide shot."}],"usage":{"input_tokens":30,"output_tokens":4}}`)
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(AnthropicOptions{APIKey: "ak-test", BaseURL: srv.URL + "/", MaxTokens: 512})
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{Model: "claude-3-5-sonnet", Instruction: "describe", MediaBase64: pngB64, MediaMIME: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "Golden hour, wide shot.", resp.Text)
	assert.Equal(t, 30, resp.TokensIn)
	assert.Equal(t, 4, resp.TokensOut)

	assert.Equal(t, 512, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	blocks := got.Messages[0].Content
	require.Len(t, blocks, 2)
	require.NotNil(t, blocks[0].Source)
	assert.Equal(t, "base64", blocks[0].Source.Type)
	assert.Equal(t, "image/png", blocks[0].Source.MediaType)
	assert.Equal(t, pngB64, blocks[0].Source.Data)
	assert.Equal(t, "describe", blocks[1].Text)
}

func TestGeminiClientAgainstFakeEndpoint(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Close-up of rain on glass."}]}}],"usageMetadata":{"promptTokenCount":258,"candidatesTokenCount":9}}`)
	}))
	defer srv.Close()

	c, err := NewGeminiClient(context.Background(), GeminiOptions{APIKey: "g-test", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{Model: "gemini-2.5-flash", Instruction: "describe", MediaBase64: pngB64, MediaMIME: "image/png"})
	require.NoError(t, err)
	assert.Contains(t, path, "gemini-2.5-flash:generateContent")
	assert.Equal(t, "Close-up of rain on glass.", resp.Text)
	assert.Equal(t, 258, resp.TokensIn)
	assert.Equal(t, 9, resp.TokensOut)
}

func TestGeminiClientRejectsBadBase64(t *testing.T) {
	c, err := NewGeminiClient(context.Background(), GeminiOptions{APIKey: "g-test", BaseURL: "http://127.0.0.1:0"})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{Model: "m", MediaBase64: "%%%", MediaMIME: "image/png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source data")
}

func TestNewFactory(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, config.AIConfig{Engine: "gemini"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	c, err := New(ctx, config.AIConfig{Engine: "openai", OpenAI: config.ProviderConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = New(ctx, config.AIConfig{Engine: "anthropic", Anthropic: config.ProviderConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	c, err = New(ctx, config.AIConfig{Gemini: config.ProviderConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.Equal(t, "gemini", c.Name())

	_, err = New(ctx, config.AIConfig{Engine: "llama"})
	assert.Error(t, err)
}
