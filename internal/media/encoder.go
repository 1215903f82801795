package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxBytes is the 20 MiB upload cap.
	DefaultMaxBytes int64 = 20 * mib
	mib                   = 1024 * 1024
)

// Reason tells which pre-flight check rejected a file.
type Reason string

const (
	ReasonTooLarge        Reason = "too_large"
	ReasonUnsupportedType Reason = "unsupported_type"
)

// ValidationError is a pre-flight rejection; nothing was read.
type ValidationError struct {
	Reason   Reason
	Size     int64
	MaxBytes int64
	MIMEType string
	Message  string
}

func (e *ValidationError) Error() string { return e.Message }

// UnreadableMessage is shown for any failure to read or encode the source.
const UnreadableMessage = "Unable to read the file. It may be corrupt or restricted. Please try a different file."

// ReadError wraps an I/O or empty-content failure while reading the source.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return UnreadableMessage }
func (e *ReadError) Unwrap() error { return e.Err }

// Encoder validates and base64-encodes uploaded files.
type Encoder struct {
	maxBytes int64
}

// NewEncoder returns an encoder with the given size cap; non-positive means the default.
func NewEncoder(maxBytes int64) *Encoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Encoder{maxBytes: maxBytes}
}

// MaxBytes reports the configured size cap.
func (e *Encoder) MaxBytes() int64 { return e.maxBytes }

// Validate runs the size and type checks without touching file content.
func (e *Encoder) Validate(f File) (Kind, error) {
	if f.Size() > e.maxBytes {
		return 0, &ValidationError{
			Reason:   ReasonTooLarge,
			Size:     f.Size(),
			MaxBytes: e.maxBytes,
			MIMEType: f.MIMEType(),
			Message: fmt.Sprintf("File is too large (%.1fMB). Please upload a file smaller than %sMB.",
				float64(f.Size())/mib, formatMB(e.maxBytes)),
		}
	}
	kind, ok := KindFromMIME(f.MIMEType())
	if !ok {
		return 0, &ValidationError{
			Reason:   ReasonUnsupportedType,
			Size:     f.Size(),
			MaxBytes: e.maxBytes,
			MIMEType: f.MIMEType(),
			Message:  unsupportedMessage(f.MIMEType()),
		}
	}
	return kind, nil
}

// Encode validates f, reads it fully and returns the base64 payload.
func (e *Encoder) Encode(ctx context.Context, f File) (Payload, error) {
	if _, err := e.Validate(f); err != nil {
		return Payload{}, err
	}

	start := time.Now()
	raw, err := f.ReadAll(ctx)
	if err != nil {
		log.Warn().Err(err).Str("mime", f.MIMEType()).Int64("size", f.Size()).Msg("failed to read media file")
		return Payload{}, &ReadError{Err: fmt.Errorf("read the file: %w", err)}
	}
	if len(raw) == 0 {
		return Payload{}, &ReadError{Err: errEmptyData}
	}
	// A source that grew past its declared size is rejected here too.
	if int64(len(raw)) > e.maxBytes {
		return Payload{}, &ValidationError{
			Reason:   ReasonTooLarge,
			Size:     int64(len(raw)),
			MaxBytes: e.maxBytes,
			MIMEType: f.MIMEType(),
			Message: fmt.Sprintf("File is too large (%.1fMB). Please upload a file smaller than %sMB.",
				float64(len(raw))/mib, formatMB(e.maxBytes)),
		}
	}

	p, err := NewPayload(base64.StdEncoding.EncodeToString(raw), f.MIMEType())
	if err != nil {
		return Payload{}, err
	}
	log.Debug().
		Str("mime", p.MIMEType()).
		Str("kind", p.Kind().String()).
		Int("bytes", len(raw)).
		Int("encoded", p.EncodedLen()).
		Dur("took", time.Since(start)).
		Msg("media encoded")
	return p, nil
}

func unsupportedMessage(mimeType string) string {
	declared := mimeType
	if declared == "" {
		declared = "Unknown"
	}
	return fmt.Sprintf("Unsupported file type: %s. Please upload a valid Image or Video file.", declared)
}

func formatMB(n int64) string {
	return strconv.FormatFloat(float64(n)/mib, 'f', -1, 64)
}
