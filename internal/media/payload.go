package media

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

// Kind is the media family of an upload, keyed off the declared MIME prefix.
type Kind int

const (
	KindImage Kind = iota + 1
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// KindFromMIME maps an "image/*" or "video/*" type to its Kind.
func KindFromMIME(mimeType string) (Kind, bool) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage, true
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo, true
	default:
		return 0, false
	}
}

// File is the minimal view of an uploaded file the encoder needs.
type File interface {
	Size() int64
	MIMEType() string
	ReadAll(ctx context.Context) ([]byte, error)
}

// Payload is base64 media data plus its MIME type, ready to be inlined
// into an inference request. The zero value is not a valid payload.
type Payload struct {
	data     string
	mimeType string
	kind     Kind
}

var errEmptyData = errors.New("could not extract base64 data from file: the file may be empty or corrupt")

// NewPayload checks the payload invariants: a non-empty base64 body and an
// image or video MIME type.
func NewPayload(data, mimeType string) (Payload, error) {
	kind, ok := KindFromMIME(mimeType)
	if !ok {
		return Payload{}, &ValidationError{Reason: ReasonUnsupportedType, MIMEType: mimeType, Message: unsupportedMessage(mimeType)}
	}
	if data == "" {
		return Payload{}, &ReadError{Err: errEmptyData}
	}
	return Payload{data: data, mimeType: mimeType, kind: kind}, nil
}

func (p Payload) Data() string     { return p.data }
func (p Payload) MIMEType() string { return p.mimeType }
func (p Payload) Kind() Kind       { return p.kind }
func (p Payload) IsZero() bool     { return p.data == "" }

// EncodedLen is the size of the base64 body in bytes.
func (p Payload) EncodedLen() int { return len(p.data) }

// Bytes decodes the payload back to the original file content.
func (p Payload) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.data)
}

// Bytes is an in-memory File.
type Bytes struct {
	Data []byte
	Type string
}

func (b Bytes) Size() int64                                 { return int64(len(b.Data)) }
func (b Bytes) MIMEType() string                            { return b.Type }
func (b Bytes) ReadAll(ctx context.Context) ([]byte, error) { return b.Data, ctx.Err() }
