package prompt

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/videoprompt/internal/ai"
	"github.com/local/videoprompt/internal/classifier"
	"github.com/local/videoprompt/internal/media"
	"github.com/local/videoprompt/internal/metrics"
)

var errNoPayload = errors.New("no media payload to describe")

// Request is one generation: the encoded media plus the optional free-text
// style and context fields.
type Request struct {
	Payload media.Payload
	Style   string
	Context string
}

// Composer turns a Request into a single inference call.
type Composer struct {
	client ai.Client
	model  string
}

func New(client ai.Client, model string) *Composer {
	return &Composer{client: client, model: model}
}

// Generate returns the trimmed description text. Every error it returns is a
// *classifier.Error; there is no retry.
func (c *Composer) Generate(ctx context.Context, req Request) (string, error) {
	if req.Payload.IsZero() {
		return "", classifier.Classify(errNoPayload)
	}

	started := time.Now()
	resp, err := c.client.Do(ctx, ai.Request{
		Model:       c.model,
		Instruction: Instruction(req.Style, req.Context),
		MediaBase64: req.Payload.Data(),
		MediaMIME:   req.Payload.MIMEType(),
	})
	dur := time.Since(started)

	if err == nil {
		if text := strings.TrimSpace(resp.Text); text != "" {
			metrics.ObserveProvider(c.client.Name(), c.model, "ok", dur)
			log.Info().
				Str("provider", c.client.Name()).
				Str("model", c.model).
				Str("kind", req.Payload.Kind().String()).
				Int("tokens_in", resp.TokensIn).
				Int("tokens_out", resp.TokensOut).
				Dur("duration", dur).
				Msg("prompt generated")
			return text, nil
		}
		err = ErrEmptyResponse
	}

	cerr := classifier.Classify(err)
	metrics.ObserveProvider(c.client.Name(), c.model, cerr.Kind.String(), dur)
	log.Warn().
		Err(err).
		Str("provider", c.client.Name()).
		Str("model", c.model).
		Str("classified", cerr.Kind.String()).
		Dur("duration", dur).
		Msg("prompt generation failed")
	return "", cerr
}

// ErrEmptyResponse is reported when the model returns no usable text.
var ErrEmptyResponse = classifier.ErrEmptyResponse
