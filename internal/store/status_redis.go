package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type Status struct {
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"`
	Message  string                 `json:"message"`
	Start    *time.Time             `json:"start_time,omitempty"`
	End      *time.Time             `json:"end_time,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// RedisStatus mirrors session status into a Redis hash per session. Keys
// expire ttl after the last write so abandoned sessions clean themselves up.
type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return NewRedisStatusFromClient(c, ttl), nil
}

// NewRedisStatusFromClient wraps an existing client.
func NewRedisStatusFromClient(c *redis.Client, ttl time.Duration) *RedisStatus {
	return &RedisStatus{client: c, keyNS: "session", ttl: ttl}
}

func (s *RedisStatus) key(sessionID string) string {
	return fmt.Sprintf("%s:%s:status", s.keyNS, sessionID)
}

func (s *RedisStatus) Set(ctx context.Context, sessionID string, st Status) error {
	m := map[string]interface{}{
		"status":   st.Status,
		"progress": st.Progress,
		"message":  st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, _ := json.Marshal(st.Metadata)
		m["metadata"] = string(b)
	}

	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, m)
	if st.End == nil {
		pipe.HDel(ctx, key, "end")
	}
	if st.Metadata == nil {
		pipe.HDel(ctx, key, "metadata")
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, sessionID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	st := Status{}
	st.Status = res["status"]
	st.Message = res["message"]
	if p, ok := res["progress"]; ok && p != "" {
		// ignore parse error; default 0
		var pi int
		fmt.Sscan(p, &pi)
		st.Progress = pi
	}
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st, true, nil
}

func (s *RedisStatus) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

// Ping is used by the status endpoint.
func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }
