package session

import (
	"context"
	"time"

	"github.com/local/videoprompt/internal/store"
)

// Status is the externally visible progress of a session.
type Status struct {
	Status   string     `json:"status"`
	Progress int        `json:"progress"`
	Message  string     `json:"message,omitempty"`
	Kind     string     `json:"error_kind,omitempty"`
	Start    *time.Time `json:"start_time,omitempty"`
	End      *time.Time `json:"end_time,omitempty"`
}

// StatusStore mirrors session status outside the process. Entries outlive
// the in-memory session until the store expires them.
type StatusStore interface {
	Set(ctx context.Context, sessionID string, st Status) error
	Get(ctx context.Context, sessionID string) (Status, bool, error)
	Delete(ctx context.Context, sessionID string) error
}

type redisStatusAdapter struct{ s *store.RedisStatus }

func NewStatusAdapter(s *store.RedisStatus) StatusStore { return &redisStatusAdapter{s: s} }

func (a *redisStatusAdapter) Set(ctx context.Context, sessionID string, st Status) error {
	var meta map[string]interface{}
	if st.Kind != "" {
		meta = map[string]interface{}{"error_kind": st.Kind}
	}
	return a.s.Set(ctx, sessionID, store.Status{
		Status:   st.Status,
		Progress: st.Progress,
		Message:  st.Message,
		Start:    st.Start,
		End:      st.End,
		Metadata: meta,
	})
}

func (a *redisStatusAdapter) Get(ctx context.Context, sessionID string) (Status, bool, error) {
	st, ok, err := a.s.Get(ctx, sessionID)
	if err != nil || !ok {
		return Status{}, ok, err
	}
	kind, _ := st.Metadata["error_kind"].(string)
	return Status{
		Status:   st.Status,
		Progress: st.Progress,
		Message:  st.Message,
		Kind:     kind,
		Start:    st.Start,
		End:      st.End,
	}, true, nil
}

func (a *redisStatusAdapter) Delete(ctx context.Context, sessionID string) error {
	return a.s.Delete(ctx, sessionID)
}
