// Package auth tracks the upstream access token written by the external login
// flow and reports its validity.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"mytradingsignal/internal/logger"
)

// tokenFile is the document the login tool writes.
type tokenFile struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id,omitempty"`
	LoginTime   time.Time `json:"login_time"`
}

// Watcher polls the token file. Revalidated fires once for every
// invalid-to-valid transition after the first load. A token the upstream
// rejected (see Invalidate) is treated as invalid until a new one is written.
type Watcher struct {
	path     string
	maxAge   time.Duration
	interval time.Duration
	envToken string
	now      func() time.Time

	mu        sync.RWMutex
	token     string
	loginTime time.Time
	valid     bool
	loaded    bool
	rejected  string

	revalidated chan struct{}
}

// NewWatcher builds a watcher. A non-empty envToken overrides the file and is
// aged from process start.
func NewWatcher(path string, maxAge, interval time.Duration, envToken string) *Watcher {
	return &Watcher{
		path:        path,
		maxAge:      maxAge,
		interval:    interval,
		envToken:    envToken,
		now:         time.Now,
		revalidated: make(chan struct{}, 1),
	}
}

func (w *Watcher) Valid() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.valid
}

// Age is the time since login; zero when no token is loaded.
func (w *Watcher) Age() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.loginTime.IsZero() {
		return 0
	}
	return w.now().Sub(w.loginTime)
}

func (w *Watcher) Token() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.token
}

func (w *Watcher) Revalidated() <-chan struct{} { return w.revalidated }

// Invalidate records that the upstream refused the current token. Any pending
// revalidation is dropped since it referred to the refused token.
func (w *Watcher) Invalidate(ctx context.Context) {
	w.mu.Lock()
	token := w.token
	w.rejected = token
	w.valid = false
	w.mu.Unlock()

	select {
	case <-w.revalidated:
	default:
	}
	if token != "" {
		logger.Warn(ctx, "Access token rejected upstream, waiting for a new login", "path", w.path)
	}
}

// Refresh re-reads the token source and updates validity.
func (w *Watcher) Refresh(ctx context.Context) {
	token, login, err := w.read()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn(ctx, "Failed to read token file", "path", w.path, "error", err)
	}

	w.mu.Lock()
	wasValid, wasLoaded := w.valid, w.loaded
	w.token = token
	w.loginTime = login
	w.valid = token != "" && token != w.rejected && (w.maxAge <= 0 || w.now().Sub(login) < w.maxAge)
	w.loaded = true
	nowValid := w.valid
	w.mu.Unlock()

	switch {
	case wasLoaded && !wasValid && nowValid:
		logger.Info(ctx, "Access token revalidated", "path", w.path)
		select {
		case w.revalidated <- struct{}{}:
		default:
		}
	case wasValid && !nowValid:
		logger.Warn(ctx, "Access token no longer valid", "path", w.path, "age", w.now().Sub(login).String())
	case !wasLoaded && !nowValid:
		logger.Warn(ctx, "No valid access token, login required", "path", w.path)
	}
}

func (w *Watcher) read() (string, time.Time, error) {
	if w.envToken != "" {
		w.mu.RLock()
		login := w.loginTime
		w.mu.RUnlock()
		if login.IsZero() {
			login = w.now()
		}
		return w.envToken, login, nil
	}

	b, err := os.ReadFile(w.path)
	if err != nil {
		return "", time.Time{}, err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", time.Time{}, fmt.Errorf("decode %s: %w", w.path, err)
	}
	if tf.LoginTime.IsZero() {
		if fi, err := os.Stat(w.path); err == nil {
			tf.LoginTime = fi.ModTime()
		}
	}
	return tf.AccessToken, tf.LoginTime, nil
}

// Run refreshes immediately and then every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.Refresh(ctx)
	if w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Refresh(ctx)
		}
	}
}
