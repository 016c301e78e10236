// Package session owns the backend session lifecycle: obtaining the token
// and keeping it alive with a periodic heartbeat until stopped.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chaitanyamurarka/trading-platform-v3.1/backend"
)

// Manager holds one live session token and runs its heartbeat task. The
// heartbeat stops on the first failure and reports it through the onLost
// callback; there is no silent reconnection. A fresh Start replaces the
// token and cancels any previous heartbeat before launching a new one, so
// two tickers never run at once.
type Manager struct {
	client   *backend.Client
	interval time.Duration
	onLost   func(error)

	mu     sync.Mutex
	token  string
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Manager. onLost is invoked at most once per Start, from
// the heartbeat goroutine, when the backend stops acknowledging the
// session; it may be nil.
func New(client *backend.Client, interval time.Duration, onLost func(error)) *Manager {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Manager{client: client, interval: interval, onLost: onLost}
}

// Start obtains a fresh session token and launches the heartbeat task.
// The context bounds only the initiate request; the heartbeat runs until
// Stop or a failure. Start does not retry.
func (m *Manager) Start(ctx context.Context) error {
	info, err := m.client.InitiateSession(ctx)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.mu.Lock()
	prevCancel, prevDone := m.cancel, m.done
	m.token = info.SessionToken
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
		<-prevDone
	}

	go m.heartbeat(hbCtx, info.SessionToken, done)

	log.Info().
		Str("session_token", info.SessionToken).
		Dur("heartbeat", m.interval).
		Msg("session started")
	return nil
}

// Token returns the current session token, or "" before the first Start.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Stop cancels the heartbeat task and waits for it to exit. Safe to call
// without a running session and safe to call twice.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// heartbeat pings the backend every interval until the context is
// cancelled or a ping fails. Failure stops the ticker for good; the owner
// decides whether to start a new session.
func (m *Manager) heartbeat(ctx context.Context, token string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := m.client.Heartbeat(ctx, token)
			if err == nil {
				log.Debug().Str("session_token", token).Msg("heartbeat ok")
				continue
			}
			if ctx.Err() != nil {
				return // cancelled mid-request, not a real failure
			}
			log.Error().Err(err).Str("session_token", token).Msg("heartbeat failed, stopping")
			if m.onLost != nil {
				m.onLost(err)
			}
			return
		}
	}
}
