// Package relay is the boundary the HTTP layer talks to: read the current
// conversation, send a chat turn, subscribe to change events.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ehrlich-b/clawchat/internal/sessionlog"
	"github.com/ehrlich-b/clawchat/internal/watch"
	"github.com/ehrlich-b/clawchat/internal/ws"
)

var (
	ErrEmptyMessage = errors.New("message text is empty")
	ErrRateLimited  = errors.New("too many messages, slow down")
)

// Sender delivers one chat turn to the gateway.
type Sender interface {
	SendMessage(ctx context.Context, text, idempotencyKey string) (json.RawMessage, error)
}

// Sessions locates the active session log.
type Sessions interface {
	Resolve() (string, error)
}

type Options struct {
	Retries   int     // retries after a transport error, reusing the idempotency key
	SendRate  float64 // sends per second, 0 = unlimited
	SendBurst int
	RetryBase time.Duration
	RetryMax  time.Duration
	Logger    *slog.Logger
}

// Relay owns the process-wide state: the subscriber hub and the send limiter.
type Relay struct {
	sessions Sessions
	sender   Sender
	hub      *watch.Hub
	limiter  *rate.Limiter
	retries  int
	retryMin time.Duration
	retryMax time.Duration
	logger   *slog.Logger
}

func New(sessions Sessions, sender Sender, opts Options) *Relay {
	r := &Relay{
		sessions: sessions,
		sender:   sender,
		hub:      watch.NewHub(),
		retries:  opts.Retries,
		retryMin: opts.RetryBase,
		retryMax: opts.RetryMax,
		logger:   opts.Logger,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.retryMin <= 0 {
		r.retryMin = 500 * time.Millisecond
	}
	if r.retryMax <= 0 {
		r.retryMax = 5 * time.Second
	}
	if opts.SendRate > 0 {
		burst := opts.SendBurst
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.SendRate), burst)
	}
	return r
}

// Conversation returns the reconstructed thread of the active session, or
// sessionlog.ErrNoSession. An unreadable log yields an empty thread.
func (r *Relay) Conversation(ctx context.Context) ([]sessionlog.Message, error) {
	path, err := r.sessions.Resolve()
	if err != nil {
		return nil, err
	}
	msgs, err := sessionlog.ParseFile(path)
	if err != nil {
		r.logger.Warn("session log unreadable", "path", path, "error", err)
	}
	return msgs, nil
}

// SendMessage sends one user turn. All attempts of one call share an
// idempotency key so a retried delivery is applied once by the gateway.
func (r *Relay) SendMessage(ctx context.Context, text string) (json.RawMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if r.limiter != nil && !r.limiter.Allow() {
		return nil, ErrRateLimited
	}

	key := ws.NewIdempotencyKey()
	bo := ws.NewBackoff(r.retryMin, r.retryMax)
	for attempt := 0; ; attempt++ {
		payload, err := r.sender.SendMessage(ctx, text, key)
		var terr *ws.TransportError
		if err == nil || !errors.As(err, &terr) || attempt >= r.retries {
			if err != nil {
				r.logger.Warn("send failed", "error", err, "attempts", attempt+1)
			}
			return payload, err
		}
		r.logger.Info("gateway unreachable, retrying", "error", err, "attempt", attempt+1)
		if werr := bo.Wait(ctx); werr != nil {
			return nil, err
		}
	}
}

func (r *Relay) Subscribe() *watch.Subscription {
	return r.hub.Subscribe()
}

func (r *Relay) Unsubscribe(s *watch.Subscription) {
	r.hub.Unsubscribe(s)
}

// Watcher returns a change watcher feeding this relay's subscribers.
func (r *Relay) Watcher(interval time.Duration) *watch.Watcher {
	return &watch.Watcher{
		Resolve:  r.sessions.Resolve,
		Hub:      r.hub,
		Interval: interval,
		Logger:   r.logger,
	}
}

// Close drops every subscriber.
func (r *Relay) Close() {
	r.hub.Close()
}
