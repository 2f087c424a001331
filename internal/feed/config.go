package feed

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"mytradingsignal/internal/store"
)

// Config holds the connection manager's timing and escalation limits.
type Config struct {
	Grace         time.Duration
	PollInterval  time.Duration
	LiveRetry     time.Duration
	Stale         time.Duration
	AuthThreshold int
	MaxTransient  int

	BackoffInitial time.Duration
	BackoffMax     time.Duration

	EventBuffer int
}

// ConfigFrom converts the yaml connection block.
func ConfigFrom(c store.ConnectionConfig) Config {
	return Config{
		Grace:          store.Seconds(c.GraceSeconds),
		PollInterval:   store.Seconds(c.PollSeconds),
		LiveRetry:      store.Seconds(c.LiveRetrySeconds),
		Stale:          store.Seconds(c.StaleSeconds),
		AuthThreshold:  c.AuthFailureThreshold,
		MaxTransient:   c.MaxTransientAttempts,
		BackoffInitial: store.Seconds(c.BackoffInitialSeconds),
		BackoffMax:     store.Seconds(c.BackoffMaxSeconds),
		EventBuffer:    c.EventBuffer,
	}
}

func (c *Config) applyDefaults() {
	def := ConfigFrom(store.Default().Connection)
	if c.Grace <= 0 {
		c.Grace = def.Grace
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.LiveRetry <= 0 {
		c.LiveRetry = def.LiveRetry
	}
	if c.Stale <= 0 {
		c.Stale = def.Stale
	}
	if c.AuthThreshold <= 0 {
		c.AuthThreshold = def.AuthThreshold
	}
	if c.MaxTransient <= 0 {
		c.MaxTransient = def.MaxTransient
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = def.BackoffInitial
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = c.BackoffInitial
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
}

// newBackoff doubles from BackoffInitial up to BackoffMax and never gives up.
func (c Config) newBackoff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.BackoffInitial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.BackoffMax,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}
