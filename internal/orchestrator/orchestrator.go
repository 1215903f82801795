package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/videoprompt/internal/filetype"
	"github.com/local/videoprompt/internal/media"
	"github.com/local/videoprompt/internal/session"
	"github.com/local/videoprompt/internal/statuscheck"
	"github.com/local/videoprompt/internal/storage"
)

// sniffLen is how much of a file is inspected when its type must be detected.
const sniffLen = 3072

// multipart parts above this size spill to temp files
const maxFormMemory = 32 << 20

// ObjectSource opens media stored in S3.
type ObjectSource interface {
	Open(ctx context.Context, key string) (*storage.Object, error)
}

type Dependencies struct {
	Sessions *session.Manager
	Encoder  *media.Encoder
	Detector *filetype.Detector
	// S3 is optional; nil disables the S3 route.
	S3 ObjectSource
	// Status is optional; nil disables /status.
	Status *statuscheck.Checker
	// BodyLimit caps an upload request body.
	BodyLimit int64
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.Encoder == nil {
		deps.Encoder = media.NewEncoder(0)
	}
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	if deps.BodyLimit < deps.Encoder.MaxBytes() {
		deps.BodyLimit = deps.Encoder.MaxBytes() * 4
	}
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
	mux.HandleFunc("GET /status", o.handleStatus)
	mux.HandleFunc("POST /sessions", o.handleCreate)
	mux.HandleFunc("GET /sessions/{id}", o.handleGet)
	mux.HandleFunc("DELETE /sessions/{id}", o.handleDelete)
	mux.HandleFunc("POST /sessions/{id}/file", o.withSession(o.handleUpload))
	mux.HandleFunc("POST /sessions/{id}/file/s3", o.withSession(o.handleS3File))
	mux.HandleFunc("PUT /sessions/{id}/options", o.withSession(o.handleOptions))
	mux.HandleFunc("POST /sessions/{id}/generate", o.withSession(o.handleGenerate))
}

type errorResp struct {
	Error   string            `json:"error"`
	Kind    string            `json:"kind,omitempty"`
	Session *session.Snapshot `json:"session,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, kind string, s *session.Session) {
	resp := errorResp{Error: msg, Kind: kind}
	if s != nil {
		snap := s.Snapshot()
		resp.Session = &snap
	}
	writeJSON(w, status, resp)
}

func (o *Orchestrator) withSession(h func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := o.deps.Sessions.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "session not found", "not_found", nil)
			return
		}
		h(w, r, s)
	}
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if o.deps.Status == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o.deps.Status.Summary(r.Context()))
}

func (o *Orchestrator) handleCreate(w http.ResponseWriter, r *http.Request) {
	s := o.deps.Sessions.Create()
	log.Info().Str("session_id", s.ID()).Msg("session created")
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": s.ID(), "session": s.Snapshot()})
}

// handleGet serves a live session, or the last mirrored status of one the
// janitor already evicted.
func (o *Orchestrator) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s, err := o.deps.Sessions.Get(id); err == nil {
		writeJSON(w, http.StatusOK, s.Snapshot())
		return
	}
	if st, ok := o.deps.Sessions.Archived(r.Context(), id); ok {
		writeJSON(w, http.StatusGone, map[string]any{"error": "session expired", "kind": "expired", "status": st})
		return
	}
	writeError(w, http.StatusNotFound, "session not found", "not_found", nil)
}

func (o *Orchestrator) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := o.deps.Sessions.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "session not found", "not_found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (o *Orchestrator) handleUpload(w http.ResponseWriter, r *http.Request, s *session.Session) {
	r.Body = http.MaxBytesReader(w, r.Body, o.deps.BodyLimit)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			o.rejectOversizedBody(w, r, s)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form", "bad_request", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file", "bad_request", nil)
		return
	}
	defer file.Close()

	if err := o.applyOptions(s, formField(r.MultipartForm, "style"), formField(r.MultipartForm, "context")); err != nil {
		o.writeSessionError(w, s, err)
		return
	}

	declared := hdr.Header.Get("Content-Type")
	mimeType := o.deps.Detector.ResolveDeclared(declared, io.NewSectionReader(file, 0, sniffLen))
	upload := &uploadFile{file: file, name: hdr.Filename, size: hdr.Size, mimeType: mimeType}

	if err := s.SelectFile(r.Context(), upload); err != nil {
		o.writeSessionError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// rejectOversizedBody records a body that blew past BodyLimit as an
// oversized file selection, so the session shows the usual message.
func (o *Orchestrator) rejectOversizedBody(w http.ResponseWriter, r *http.Request, s *session.Session) {
	size := r.ContentLength
	if size <= o.deps.Encoder.MaxBytes() {
		size = o.deps.BodyLimit + 1
	}
	// sizeOnly never encodes, so SelectFile always reports an error here.
	o.writeSessionError(w, s, s.SelectFile(r.Context(), sizeOnly(size)))
}

type s3FileReq struct {
	Key     string  `json:"key"`
	Style   *string `json:"style,omitempty"`
	Context *string `json:"context,omitempty"`
}

func (o *Orchestrator) handleS3File(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if o.deps.S3 == nil {
		writeError(w, http.StatusNotImplemented, "S3 source not configured", "not_configured", nil)
		return
	}
	var req s3FileReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", "bad_request", nil)
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(w, http.StatusBadRequest, "missing key", "bad_request", nil)
		return
	}
	if err := o.applyOptions(s, req.Style, req.Context); err != nil {
		o.writeSessionError(w, s, err)
		return
	}

	obj, err := o.deps.S3.Open(r.Context(), req.Key)
	if err != nil {
		log.Warn().Err(err).Str("key", req.Key).Msg("s3 open failed")
		writeError(w, http.StatusNotFound, "object not found", "not_found", nil)
		return
	}
	if t := obj.MIMEType(); t == "" || t == "application/octet-stream" {
		if head, err := obj.Head(r.Context(), sniffLen); err == nil {
			obj.SetMIMEType(o.deps.Detector.ResolveDeclared(t, bytes.NewReader(head)))
		}
	}

	if err := s.SelectFile(r.Context(), obj); err != nil {
		o.writeSessionError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

type optionsReq struct {
	Style   string `json:"style"`
	Context string `json:"context"`
}

func (o *Orchestrator) handleOptions(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req optionsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", "bad_request", nil)
		return
	}
	if err := s.SetOptions(req.Style, req.Context); err != nil {
		o.writeSessionError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (o *Orchestrator) handleGenerate(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if wait := r.URL.Query().Get("wait"); wait == "1" || wait == "true" {
		text, err := s.Generate(r.Context())
		if err != nil {
			o.writeSessionError(w, s, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"prompt": text, "session": s.Snapshot()})
		return
	}

	if err := s.GenerateAsync(r.Context()); err != nil {
		o.writeSessionError(w, s, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.Snapshot())
}

// writeSessionError maps session, encoder and classified errors to a status.
func (o *Orchestrator) writeSessionError(w http.ResponseWriter, s *session.Session, err error) {
	var (
		verr *media.ValidationError
		rerr *media.ReadError
	)
	switch {
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, err.Error(), "busy", s)
	case errors.Is(err, session.ErrNoMedia):
		writeError(w, http.StatusBadRequest, err.Error(), "no_media", s)
	case errors.As(err, &verr):
		status := http.StatusBadRequest
		if verr.Reason == media.ReasonTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, verr.Message, string(verr.Reason), s)
	case errors.As(err, &rerr):
		writeError(w, http.StatusUnprocessableEntity, rerr.Error(), "unreadable", s)
	default:
		snap := s.Snapshot()
		writeError(w, http.StatusBadGateway, err.Error(), snap.ErrorKind, s)
	}
}

// applyOptions updates only the fields the request carried.
func (o *Orchestrator) applyOptions(s *session.Session, style, context *string) error {
	if style == nil && context == nil {
		return nil
	}
	snap := s.Snapshot()
	st, ct := snap.Style, snap.Context
	if style != nil {
		st = *style
	}
	if context != nil {
		ct = *context
	}
	return s.SetOptions(st, ct)
}

func formField(form *multipart.Form, key string) *string {
	if form == nil {
		return nil
	}
	v, ok := form.Value[key]
	if !ok || len(v) == 0 {
		return nil
	}
	return &v[0]
}

// sizeOnly is a body we refused to read; only its size is known.
type sizeOnly int64

func (n sizeOnly) Size() int64                               { return int64(n) }
func (sizeOnly) MIMEType() string                            { return "" }
func (sizeOnly) ReadAll(ctx context.Context) ([]byte, error) { return nil, io.ErrUnexpectedEOF }

// uploadFile adapts a multipart part to media.File.
type uploadFile struct {
	file     multipart.File
	name     string
	size     int64
	mimeType string
}

func (u *uploadFile) Name() string     { return u.name }
func (u *uploadFile) Size() int64      { return u.size }
func (u *uploadFile) MIMEType() string { return u.mimeType }

func (u *uploadFile) ReadAll(ctx context.Context) ([]byte, error) {
	if _, err := u.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(u.file)
}
