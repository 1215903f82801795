package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Request is one description request: the instruction text plus a single
// inlined media file.
type Request struct {
	Model       string
	Instruction string
	MediaBase64 string // standard base64, no line breaks
	MediaMIME   string // image/* or video/*
}

type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Client is the inference boundary. Do issues exactly one request/response
// call; it never streams and never retries.
type Client interface {
	Name() string
	Do(ctx context.Context, req Request) (Response, error)
}

var ErrMissingAPIKey = errors.New("missing API key")

// HTTPError represents an HTTP status error from an AI provider
type HTTPError struct {
	StatusCode int
	Body       string
	Provider   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Provider, e.Body)
}

// unsupportedMedia is returned locally for payloads a provider cannot take,
// worded like the service's own INVALID_ARGUMENT rejection.
func unsupportedMedia(provider, mimeType string) error {
	return fmt.Errorf("invalid_argument: %s does not accept %s input", provider, mimeType)
}

func isImage(mimeType string) bool { return strings.HasPrefix(mimeType, "image/") }
