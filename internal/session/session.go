// Package session holds one user's form state (the selected file, its
// encoded payload, the optional style and context, and the outcome of the
// last generation) and drives the encode and generate flows against it.
package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/videoprompt/internal/classifier"
	"github.com/local/videoprompt/internal/media"
	"github.com/local/videoprompt/internal/metrics"
	"github.com/local/videoprompt/internal/progress"
	"github.com/local/videoprompt/internal/prompt"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseEncoding   Phase = "encoding"
	PhaseGenerating Phase = "generating"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

func (p Phase) busy() bool { return p == PhaseEncoding || p == PhaseGenerating }

var (
	// ErrBusy rejects input while a file is being encoded or a request is in flight.
	ErrBusy = errors.New("session is busy")
	// ErrNoMedia is returned by Generate before a file has been encoded.
	ErrNoMedia = errors.New("Please upload a file first.")
)

// Encoder validates and encodes a selected file.
type Encoder interface {
	Encode(ctx context.Context, f media.File) (media.Payload, error)
}

// Generator issues the inference request for an encoded payload.
type Generator interface {
	Generate(ctx context.Context, req prompt.Request) (string, error)
}

// FileInfo is the metadata of the accepted file.
type FileInfo struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Kind     string `json:"kind"`
}

// Snapshot is the display state of a session.
type Snapshot struct {
	ID        string    `json:"id"`
	Phase     Phase     `json:"phase"`
	File      *FileInfo `json:"file,omitempty"`
	Ready     bool      `json:"ready"`
	Style     string    `json:"style"`
	Context   string    `json:"context"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Progress  int       `json:"progress"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Deps struct {
	Encoder   Encoder
	Generator Generator
	Status    StatusStore
	Progress  progress.Options
}

type Session struct {
	id     string
	enc    Encoder
	gen    Generator
	status StatusStore
	sim    *progress.Simulator

	mu        sync.Mutex
	phase     Phase
	file      *FileInfo
	payload   media.Payload
	style     string
	context   string
	result    string
	errMsg    string
	errKind   string
	start     *time.Time
	end       *time.Time
	updatedAt time.Time
	inflight  sync.WaitGroup
}

func New(id string, deps Deps) *Session {
	s := &Session{
		id:        id,
		enc:       deps.Encoder,
		gen:       deps.Generator,
		status:    deps.Status,
		phase:     PhaseIdle,
		updatedAt: time.Now(),
	}
	opts := deps.Progress
	onChange := opts.OnChange
	opts.OnChange = func(v float64) {
		if onChange != nil {
			onChange(v)
		}
		s.mirror()
	}
	s.sim = progress.New(opts)
	return s
}

func (s *Session) ID() string { return s.id }

// SelectFile replaces the current file. Result, error and progress are
// reset first; on any failure the file and payload are left cleared and the
// message is recorded as the session error.
func (s *Session) SelectFile(ctx context.Context, f media.File) error {
	s.mu.Lock()
	if s.phase.busy() {
		s.mu.Unlock()
		return ErrBusy
	}
	s.resetLocked()
	s.file = nil
	s.payload = media.Payload{}
	s.phase = PhaseEncoding
	s.mu.Unlock()

	s.sim.Fail()

	payload, err := s.enc.Encode(ctx, f)

	s.mu.Lock()
	s.phase = PhaseIdle
	if err != nil {
		s.file = nil
		s.payload = media.Payload{}
		kind := fileErrorKind(err)
		s.errMsg = err.Error()
		s.errKind = kind
		s.touchLocked()
		s.mu.Unlock()

		metrics.IncUpload(kindLabel(f.MIMEType()), kind)
		log.Warn().Err(err).Str("session_id", s.id).Str("mime", f.MIMEType()).Int64("size", f.Size()).Msg("file rejected")
		s.mirror()
		return err
	}
	s.payload = payload
	s.file = &FileInfo{
		Name:     fileName(f),
		MIMEType: payload.MIMEType(),
		Size:     f.Size(),
		Kind:     payload.Kind().String(),
	}
	s.touchLocked()
	s.mu.Unlock()

	metrics.IncUpload(payload.Kind().String(), "accepted")
	metrics.ObserveUploadSize(f.Size())
	log.Info().Str("session_id", s.id).Str("mime", payload.MIMEType()).Int64("size", f.Size()).Msg("file encoded")
	s.mirror()
	return nil
}

// SetOptions updates the free-text style and context fields.
func (s *Session) SetOptions(style, context string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.busy() {
		return ErrBusy
	}
	s.style = style
	s.context = context
	s.touchLocked()
	return nil
}

// Generate runs one generation and waits for it. The returned error is a
// *classifier.Error, ErrBusy or ErrNoMedia.
func (s *Session) Generate(ctx context.Context) (string, error) {
	req, err := s.begin()
	if err != nil {
		return "", err
	}
	return s.run(context.WithoutCancel(ctx), req)
}

// GenerateAsync starts a generation and returns once it is accepted.
// The outcome is visible through Snapshot.
func (s *Session) GenerateAsync(ctx context.Context) error {
	req, err := s.begin()
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	go func() { _, _ = s.run(ctx, req) }()
	return nil
}

// Wait blocks until no generation is in flight.
func (s *Session) Wait() { s.inflight.Wait() }

func (s *Session) begin() (prompt.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.busy() {
		return prompt.Request{}, ErrBusy
	}
	if s.file == nil || s.payload.IsZero() {
		s.errMsg = ErrNoMedia.Error()
		s.errKind = "no_media"
		s.touchLocked()
		return prompt.Request{}, ErrNoMedia
	}
	s.resetLocked()
	s.sim.Reset()
	now := time.Now()
	s.start, s.end = &now, nil
	s.phase = PhaseGenerating
	s.inflight.Add(1)
	return prompt.Request{Payload: s.payload, Style: s.style, Context: s.context}, nil
}

func (s *Session) run(ctx context.Context, req prompt.Request) (string, error) {
	defer s.inflight.Done()

	s.sim.Start()
	text, err := s.gen.Generate(ctx, req)
	if err != nil {
		cerr := classifier.Classify(err)

		s.mu.Lock()
		now := time.Now()
		s.phase = PhaseFailed
		s.errMsg = cerr.Message
		s.errKind = cerr.Kind.String()
		s.end = &now
		s.touchLocked()
		s.mu.Unlock()
		s.sim.Fail()

		metrics.IncGeneration("failure")
		metrics.IncFailure(cerr.Kind.String())
		log.Error().Err(cerr.Cause).Str("session_id", s.id).Str("kind", cerr.Kind.String()).Msg("generation failed")
		s.mirror()
		return "", cerr
	}

	// the phase leaves generating before progress may pass the ceiling
	s.mu.Lock()
	now := time.Now()
	s.phase = PhaseCompleted
	s.result = text
	s.end = &now
	s.touchLocked()
	s.mu.Unlock()
	s.sim.Succeed()

	metrics.IncGeneration("success")
	log.Info().Str("session_id", s.id).Int("chars", len(text)).Msg("generation completed")
	s.mirror()
	return text, nil
}

// Snapshot reads progress under the session lock so phase and progress
// always come from the same moment.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := int(math.Round(s.sim.Value()))
	snap := Snapshot{
		ID:        s.id,
		Phase:     s.phase,
		Ready:     s.file != nil && !s.payload.IsZero(),
		Style:     s.style,
		Context:   s.context,
		Result:    s.result,
		Error:     s.errMsg,
		ErrorKind: s.errKind,
		Progress:  p,
		UpdatedAt: s.updatedAt,
	}
	if s.file != nil {
		f := *s.file
		snap.File = &f
	}
	return snap
}

// idleSince reports the last activity time, or false while busy.
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.busy() {
		return time.Time{}, false
	}
	return s.updatedAt, true
}

func (s *Session) resetLocked() {
	s.result = ""
	s.errMsg = ""
	s.errKind = ""
	s.touchLocked()
}

func (s *Session) touchLocked() { s.updatedAt = time.Now() }

func (s *Session) mirror() {
	if s.status == nil {
		return
	}
	snap := s.Snapshot()
	s.mu.Lock()
	st := Status{
		Status:   string(snap.Phase),
		Progress: snap.Progress,
		Message:  snap.Error,
		Kind:     snap.ErrorKind,
		Start:    s.start,
		End:      s.end,
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.status.Set(ctx, s.id, st); err != nil {
		log.Debug().Err(err).Str("session_id", s.id).Msg("status mirror failed")
	}
}

func fileErrorKind(err error) string {
	var verr *media.ValidationError
	if errors.As(err, &verr) {
		return string(verr.Reason)
	}
	return "unreadable"
}

func kindLabel(mimeType string) string {
	if k, ok := media.KindFromMIME(mimeType); ok {
		return k.String()
	}
	return "unknown"
}

func fileName(f media.File) string {
	if n, ok := f.(interface{ Name() string }); ok {
		return n.Name()
	}
	return ""
}
