package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/videoprompt/internal/classifier"
	"github.com/local/videoprompt/internal/media"
	"github.com/local/videoprompt/internal/progress"
	"github.com/local/videoprompt/internal/prompt"
)

type generatorFunc func(ctx context.Context, req prompt.Request) (string, error)

func (f generatorFunc) Generate(ctx context.Context, req prompt.Request) (string, error) {
	return f(ctx, req)
}

type memStatus struct {
	mu      sync.Mutex
	phases  []string
	last    Status
	byID    map[string]Status
	deleted []string
}

func (m *memStatus) Set(ctx context.Context, id string, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.phases); n == 0 || m.phases[n-1] != st.Status {
		m.phases = append(m.phases, st.Status)
	}
	m.last = st
	if m.byID == nil {
		m.byID = make(map[string]Status)
	}
	m.byID[id] = st
	return nil
}

func (m *memStatus) Get(ctx context.Context, id string) (Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byID[id]
	return st, ok, nil
}

func (m *memStatus) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	delete(m.byID, id)
	return nil
}

func (m *memStatus) snapshot() ([]string, Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.phases...), m.last
}

type namedFile struct {
	media.Bytes
	name string
}

func (f namedFile) Name() string { return f.name }

type failingFile struct{}

func (failingFile) Size() int64      { return 10 }
func (failingFile) MIMEType() string { return "image/png" }
func (failingFile) ReadAll(ctx context.Context) ([]byte, error) {
	return nil, errors.New("permission denied by OS")
}

func testDeps(gen Generator, status StatusStore) Deps {
	return Deps{
		Encoder:   media.NewEncoder(0),
		Generator: gen,
		Status:    status,
		Progress:  progress.Options{Interval: time.Millisecond},
	}
}

func jpeg() media.File {
	return namedFile{Bytes: media.Bytes{Data: []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}, Type: "image/jpeg"}, name: "beach.jpg"}
}

func TestGenerateSuccess(t *testing.T) {
	var got prompt.Request
	gen := generatorFunc(func(ctx context.Context, req prompt.Request) (string, error) {
		got = req
		return "Waves roll onto a pale beach under a low sun.", nil
	})
	status := &memStatus{}
	s := New("s1", testDeps(gen, status))

	require.NoError(t, s.SelectFile(context.Background(), jpeg()))
	require.NoError(t, s.SetOptions("cinematic", "seagulls"))

	text, err := s.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Waves roll onto a pale beach under a low sun.", text)
	assert.Equal(t, "cinematic", got.Style)
	assert.Equal(t, "seagulls", got.Context)
	assert.Equal(t, "image/jpeg", got.Payload.MIMEType())

	snap := s.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, text, snap.Result)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.File)
	assert.Equal(t, "beach.jpg", snap.File.Name)
	assert.Equal(t, "image", snap.File.Kind)

	phases, last := status.snapshot()
	assert.Contains(t, phases, string(PhaseEncoding))
	assert.Contains(t, phases, string(PhaseGenerating))
	assert.Equal(t, string(PhaseCompleted), last.Status)
	assert.Equal(t, 100, last.Progress)
	assert.NotNil(t, last.End)
}

func TestGenerateWithoutFile(t *testing.T) {
	called := false
	s := New("s2", testDeps(generatorFunc(func(ctx context.Context, req prompt.Request) (string, error) {
		called = true
		return "x", nil
	}), nil))

	_, err := s.Generate(context.Background())
	assert.ErrorIs(t, err, ErrNoMedia)
	assert.False(t, called)
	assert.Equal(t, "Please upload a file first.", s.Snapshot().Error)
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
}

func TestGenerateFailureKeepsInputs(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, req prompt.Request) (string, error) {
		return "", classifier.Classify(errors.New("503 Service Unavailable: the model is overloaded"))
	})
	s := New("s3", testDeps(gen, nil))
	require.NoError(t, s.SelectFile(context.Background(), jpeg()))
	require.NoError(t, s.SetOptions("noir", ""))

	_, err := s.Generate(context.Background())
	require.Error(t, err)

	snap := s.Snapshot()
	assert.Equal(t, PhaseFailed, snap.Phase)
	assert.Equal(t, 0, snap.Progress)
	assert.Contains(t, snap.Error, "temporarily overloaded")
	assert.Equal(t, "service", snap.ErrorKind)
	assert.Empty(t, snap.Result)
	assert.True(t, snap.Ready)
	assert.Equal(t, "noir", snap.Style)
}

func TestSelectFileRejectionClearsPreviousFile(t *testing.T) {
	s := New("s4", testDeps(generatorFunc(func(ctx context.Context, req prompt.Request) (string, error) { return "ok", nil }), nil))
	require.NoError(t, s.SelectFile(context.Background(), jpeg()))
	require.True(t, s.Snapshot().Ready)

	err := s.SelectFile(context.Background(), media.Bytes{Data: []byte("%PDF-1.7"), Type: "application/pdf"})
	require.Error(t, err)

	snap := s.Snapshot()
	assert.False(t, snap.Ready)
	assert.Nil(t, snap.File)
	assert.Equal(t, "Unsupported file type: application/pdf. Please upload a valid Image or Video file.", snap.Error)
	assert.Equal(t, "unsupported_type", snap.ErrorKind)

	_, err = s.Generate(context.Background())
	assert.ErrorIs(t, err, ErrNoMedia)
}

func TestSelectFileReadFailure(t *testing.T) {
	s := New("s5", testDeps(nil, nil))
	err := s.SelectFile(context.Background(), failingFile{})
	require.Error(t, err)

	snap := s.Snapshot()
	assert.Equal(t, media.UnreadableMessage, snap.Error)
	assert.Equal(t, "unreadable", snap.ErrorKind)
	assert.Nil(t, snap.File)
	assert.False(t, snap.Ready)
}

func TestSelectFileResetsPreviousResult(t *testing.T) {
	s := New("s6", testDeps(generatorFunc(func(ctx context.Context, req prompt.Request) (string, error) { return "first", nil }), nil))
	require.NoError(t, s.SelectFile(context.Background(), jpeg()))
	_, err := s.Generate(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.SelectFile(context.Background(), jpeg()))
	snap := s.Snapshot()
	assert.Empty(t, snap.Result)
	assert.Equal(t, 0, snap.Progress)
	assert.Equal(t, PhaseIdle, snap.Phase)
}

func TestBusySessionRejectsInput(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	gen := generatorFunc(func(ctx context.Context, req prompt.Request) (string, error) {
		close(started)
		<-release
		return "done", nil
	})
	s := New("s7", testDeps(gen, nil))
	require.NoError(t, s.SelectFile(context.Background(), jpeg()))

	require.NoError(t, s.GenerateAsync(context.Background()))
	<-started

	assert.Equal(t, PhaseGenerating, s.Snapshot().Phase)
	assert.ErrorIs(t, s.GenerateAsync(context.Background()), ErrBusy)
	assert.ErrorIs(t, s.SetOptions("a", "b"), ErrBusy)
	assert.ErrorIs(t, s.SelectFile(context.Background(), jpeg()), ErrBusy)

	require.Eventually(t, func() bool { return s.Snapshot().Progress > 0 }, time.Second, time.Millisecond)
	assert.LessOrEqual(t, s.Snapshot().Progress, 95)

	close(release)
	s.Wait()
	snap := s.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.Equal(t, "done", snap.Result)
	assert.Equal(t, 100, snap.Progress)
}

func TestGenerateAsyncIgnoresCallerCancel(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, req prompt.Request) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return "still here", ctx.Err()
	})
	s := New("s8", testDeps(gen, nil))
	require.NoError(t, s.SelectFile(context.Background(), jpeg()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.GenerateAsync(ctx))
	cancel()
	s.Wait()
	assert.Equal(t, "still here", s.Snapshot().Result)
}

func TestRepeatGenerationStartsFromZero(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	gen := generatorFunc(func(ctx context.Context, req prompt.Request) (string, error) {
		if calls.Add(1) > 1 {
			<-release
		}
		return "ok", nil
	})
	s := New("s10", Deps{
		Encoder:   media.NewEncoder(0),
		Generator: gen,
		Progress:  progress.Options{Interval: time.Hour},
	})
	require.NoError(t, s.SelectFile(context.Background(), jpeg()))
	_, err := s.Generate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 100, s.Snapshot().Progress)

	require.NoError(t, s.GenerateAsync(context.Background()))
	snap := s.Snapshot()
	assert.Equal(t, PhaseGenerating, snap.Phase)
	assert.Equal(t, 0, snap.Progress)
	assert.Empty(t, snap.Result)

	close(release)
	s.Wait()
	snap = s.Snapshot()
	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.Equal(t, 100, snap.Progress)
}

func TestProgressStaysUnderCeilingWhileGenerating(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	gen := generatorFunc(func(ctx context.Context, req prompt.Request) (string, error) {
		if calls.Add(1) > 1 {
			<-release
		}
		return "ok", nil
	})
	s := New("s11", testDeps(gen, &memStatus{}))
	require.NoError(t, s.SelectFile(context.Background(), jpeg()))
	_, err := s.Generate(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.GenerateAsync(context.Background()))
	for i := 0; i < 200; i++ {
		snap := s.Snapshot()
		if snap.Phase == PhaseGenerating {
			assert.LessOrEqual(t, snap.Progress, int(progress.DefaultCeiling))
		}
	}
	close(release)
	s.Wait()
	assert.Equal(t, 100, s.Snapshot().Progress)
}
