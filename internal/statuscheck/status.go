package statuscheck

import (
	"context"
	"errors"
	"time"
)

// Pinger models the minimal capability we need for a dependency check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for external dependencies.
type Checker struct {
	redis    Pinger
	s3       Pinger
	engine   string
	model    string
	keyIsSet bool
}

// Options configures the Checker. Nil pingers mean the feature is disabled.
type Options struct {
	Redis     Pinger
	S3        Pinger
	Engine    string
	Model     string
	APIKeySet bool
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis Status `json:"redis"`
	S3    Status `json:"s3"`
	AI    Status `json:"ai"`
}

func New(opts Options) *Checker {
	return &Checker{
		redis:    opts.Redis,
		s3:       opts.S3,
		engine:   opts.Engine,
		model:    opts.Model,
		keyIsSet: opts.APIKeySet,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis: c.ping(ctx, c.redis, 2*time.Second),
		S3:    c.ping(ctx, c.s3, 5*time.Second),
		AI:    c.checkAI(),
	}
}

func (c *Checker) ping(ctx context.Context, p Pinger, timeout time.Duration) Status {
	if p == nil {
		return Status{OK: false, Message: "Not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

// checkAI reports configuration only; probing the provider would spend quota.
func (c *Checker) checkAI() Status {
	if !c.keyIsSet {
		return Status{OK: false, Message: "API key missing"}
	}
	return Status{OK: true, Message: c.engine + " / " + c.model}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
