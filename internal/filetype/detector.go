package filetype

import (
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	IsImage     bool
	IsVideo     bool
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect sniffs the content type from the head of r using magic bytes.
func (d *Detector) Detect(r io.Reader) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	// mimetype may append parameters, e.g. "text/plain; charset=utf-8"
	if i := strings.IndexByte(info.MIMEType, ';'); i >= 0 {
		info.MIMEType = strings.TrimSpace(info.MIMEType[:i])
	}
	d.classify(info)

	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Bool("supported", info.Supported).Msg("detected file type")
	return info, nil
}

// classify determines whether the sniffed type is media we can describe.
func (d *Detector) classify(info *FileTypeInfo) {
	mimeType := info.MIMEType

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		info.IsImage = true
		info.Supported = true
		info.Description = "Image file"

	case strings.HasPrefix(mimeType, "video/"):
		info.IsVideo = true
		info.Supported = true
		info.Description = "Video file"

	// MP4-family containers are sometimes reported under audio/ when no
	// video track signature is found in the sniffed head.
	case mimeType == "audio/mp4" && info.Extension == ".mp4":
		info.MIMEType = "video/mp4"
		info.IsVideo = true
		info.Supported = true
		info.Description = "Video file"

	default:
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", mimeType)
	}
}

// ResolveDeclared returns the type to trust for an upload: the declared one
// when it is specific, otherwise the sniffed media type if it is supported.
// When neither helps, the declared value is returned unchanged.
func (d *Detector) ResolveDeclared(declared string, head io.Reader) string {
	declared = strings.TrimSpace(declared)
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if head == nil {
		return declared
	}
	info, err := d.Detect(head)
	if err != nil {
		log.Warn().Err(err).Msg("content sniffing failed")
		return declared
	}
	if !info.Supported {
		return declared
	}
	log.Debug().Str("declared", declared).Str("sniffed", info.MIMEType).Msg("using sniffed media type")
	return info.MIMEType
}
