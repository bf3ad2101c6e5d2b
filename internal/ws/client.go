package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/ehrlich-b/clawchat/internal/auth"
)

const (
	DefaultCallTimeout = 10 * time.Second
	writeTimeout       = 10 * time.Second
	readLimit          = 32 << 20
)

// Connection states, reported through Client.OnStateChange.
const (
	StateConnecting        = "connecting"
	StateAwaitingChallenge = "awaiting_challenge"
	StateAuthenticated     = "authenticated"
	StateClosed            = "closed"
	StateFailed            = "failed"
)

// Client opens authenticated connections to the agent gateway.
type Client struct {
	URL        string // e.g. "ws://127.0.0.1:18789"
	Origin     string // Origin header; derived from URL when empty
	Token      string // shared gateway token
	SessionKey string // e.g. "agent:main:main"
	Identity   *auth.Identity

	CallTimeout time.Duration // per-call deadline, DefaultCallTimeout when zero
	ClientInfo  ClientInfo    // zero value gets DefaultClientInfo
	Locale      string
	UserAgent   string

	Logger        *slog.Logger
	OnStateChange func(state string, err error)

	now func() time.Time
}

// DefaultClientInfo is the static client descriptor sent on connect.
func DefaultClientInfo() ClientInfo {
	platform := runtime.GOOS
	if platform == "darwin" {
		platform = "macos"
	}
	return ClientInfo{
		ID:       auth.ClientID,
		Version:  "2026.2.23",
		Platform: platform,
		Mode:     auth.ClientMode,
	}
}

// NewIdempotencyKey returns a fresh key for one logical chat turn.
func NewIdempotencyKey() string {
	return "wc-" + uuid.NewString()
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) callTimeout() time.Duration {
	if c.CallTimeout > 0 {
		return c.CallTimeout
	}
	return DefaultCallTimeout
}

func (c *Client) notifyState(state string, err error) {
	if c.OnStateChange != nil {
		c.OnStateChange(state, err)
	}
}

func (c *Client) origin() string {
	if c.Origin != "" {
		return c.Origin
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return ""
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// SendMessage opens a fresh connection, authenticates, sends one chat turn and
// closes the connection. The reply itself arrives through the session log.
func (c *Client) SendMessage(ctx context.Context, text, idempotencyKey string) (json.RawMessage, error) {
	conn, err := c.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.SendChat(ctx, c.SessionKey, text, idempotencyKey)
}

// Dial connects to the gateway and completes the challenge-response handshake.
// The returned Conn is authenticated and ready for calls.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	if c.Identity == nil {
		return nil, fmt.Errorf("gateway client has no device identity")
	}
	c.notifyState(StateConnecting, nil)

	timeout := c.callTimeout()
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := &websocket.DialOptions{
		HTTPHeader: make(map[string][]string),
	}
	if origin := c.origin(); origin != "" {
		opts.HTTPHeader.Set("Origin", origin)
	}
	wsConn, _, err := websocket.Dial(dialCtx, c.URL, opts)
	if err != nil {
		terr := &TransportError{Op: "dial", Err: err}
		c.notifyState(StateFailed, terr)
		return nil, terr
	}
	wsConn.SetReadLimit(readLimit)

	conn := newConn(wsConn, timeout, c.logger())
	go conn.readLoop()
	c.notifyState(StateAwaitingChallenge, nil)

	nonce, err := conn.awaitChallenge(ctx, timeout)
	if err != nil {
		conn.fail()
		c.notifyState(StateFailed, err)
		return nil, err
	}

	if _, err := conn.Call(ctx, MethodConnect, c.connectParams(nonce)); err != nil {
		var ce *CallError
		if errors.As(err, &ce) {
			err = &HandshakeError{Code: ce.Code, Message: ce.Message}
		}
		conn.fail()
		c.notifyState(StateFailed, err)
		return nil, err
	}

	conn.setState(StateAuthenticated)
	c.notifyState(StateAuthenticated, nil)
	c.logger().Debug("gateway connected", "url", c.URL, "device", c.Identity.DeviceID)
	return conn, nil
}

func (c *Client) connectParams(nonce string) ConnectParams {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	signedAt := now().UnixMilli()
	scopes := append([]string(nil), DefaultScopes...)
	sig := auth.Sign(c.Identity, auth.ConnectPayload{
		Scopes:     scopes,
		SignedAtMs: signedAt,
		Token:      c.Token,
		Nonce:      nonce,
	})

	info := c.ClientInfo
	if info == (ClientInfo{}) {
		info = DefaultClientInfo()
	}
	locale := c.Locale
	if locale == "" {
		locale = "en-US"
	}
	ua := c.UserAgent
	if ua == "" {
		ua = "clawchat/1.0"
	}

	return ConnectParams{
		MinProtocol: MinProtocol,
		MaxProtocol: MaxProtocol,
		Client:      info,
		Role:        auth.Role,
		Scopes:      scopes,
		Caps:        []string{},
		Commands:    []string{},
		Permissions: map[string]any{},
		Auth:        ConnectAuth{Token: c.Token},
		Locale:      locale,
		UserAgent:   ua,
		Device: DeviceProof{
			ID:        c.Identity.DeviceID,
			PublicKey: c.Identity.PublicKeyString(),
			Signature: sig,
			SignedAt:  signedAt,
			Nonce:     nonce,
		},
	}
}

// pendingCall is one outstanding correlated request. Its result channel has
// room for exactly one value and is written only by resolve.
type pendingCall struct {
	method string
	result chan callResult
	timer  *time.Timer
}

type callResult struct {
	payload json.RawMessage
	err     error
}

// Conn is one gateway socket with a table of pending correlated calls.
type Conn struct {
	ws      *websocket.Conn
	timeout time.Duration
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	challenge chan string
	done      chan struct{}

	mu      sync.Mutex
	pending map[string]*pendingCall // id → waiting caller
	state   string
	closed  bool
}

func newConn(wsConn *websocket.Conn, timeout time.Duration, logger *slog.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:        wsConn,
		timeout:   timeout,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		challenge: make(chan string, 1),
		done:      make(chan struct{}),
		pending:   make(map[string]*pendingCall),
		state:     StateAwaitingChallenge,
	}
}

// State returns the connection state.
func (c *Conn) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateFailed || c.state == StateClosed {
		return
	}
	c.state = state
}

func (c *Conn) awaitChallenge(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case nonce := <-c.challenge:
		return nonce, nil
	case <-c.done:
		return "", &TransportError{Op: "read", Err: ErrClosed}
	case <-timer.C:
		return "", &TimeoutError{Method: EventConnectChallenge, After: timeout}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Call sends a correlated request and waits for its response. The deadline is
// the connection's call timeout; when it fires the call fails with a
// TimeoutError and the connection is closed. A caller that gives up through
// ctx leaves the pending entry to be cleared by the response or the deadline.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := uuid.NewString()
	pc := &pendingCall{method: method, result: make(chan callResult, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, &TransportError{Op: "write", Err: ErrClosed}
	}
	c.pending[id] = pc
	pc.timer = time.AfterFunc(c.timeout, func() {
		if c.resolve(id, callResult{err: &TimeoutError{Method: method, After: c.timeout}}) {
			c.logger.Warn("gateway call timed out", "method", method, "id", id, "after", c.timeout)
			c.Close()
		}
	})
	c.mu.Unlock()

	req := Frame{Type: TypeRequest, ID: id, Method: method, Params: params}
	if err := c.writeJSON(req); err != nil {
		c.resolve(id, callResult{err: &TransportError{Op: "write", Err: err}})
	}

	select {
	case r := <-pc.result:
		return r.payload, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendChat issues chat.send for one user turn.
func (c *Conn) SendChat(ctx context.Context, sessionKey, text, idempotencyKey string) (json.RawMessage, error) {
	return c.Call(ctx, MethodChatSend, ChatSendParams{
		SessionKey:     sessionKey,
		Message:        text,
		Deliver:        false,
		IdempotencyKey: idempotencyKey,
	})
}

// resolve hands r to the caller waiting on id and removes the entry. It
// reports false when id is not pending, so each call resolves at most once.
func (c *Conn) resolve(id string, r callResult) bool {
	c.mu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	pc.timer.Stop()
	pc.result <- r
	return true
}

func (c *Conn) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Conn) readLoop() {
	var err error
	defer func() {
		c.mu.Lock()
		c.closed = true
		if c.state != StateFailed {
			c.state = StateClosed
		}
		ids := make([]string, 0, len(c.pending))
		for id := range c.pending {
			ids = append(ids, id)
		}
		c.mu.Unlock()
		for _, id := range ids {
			c.resolve(id, callResult{err: &TransportError{Op: "read", Err: err}})
		}
		close(c.done)
	}()

	for {
		_, data, rerr := c.ws.Read(c.ctx)
		if rerr != nil {
			err = rerr
			return
		}

		var f Frame
		if jerr := json.Unmarshal(data, &f); jerr != nil {
			c.logger.Debug("gateway: bad frame", "error", jerr)
			continue
		}

		switch {
		case f.Event == EventConnectChallenge:
			var ch ChallengePayload
			json.Unmarshal(f.Payload, &ch)
			select {
			case c.challenge <- ch.Nonce:
			default:
			}

		case f.Type == TypeResponse:
			c.mu.Lock()
			pc := c.pending[f.ID]
			c.mu.Unlock()
			if pc == nil {
				c.logger.Debug("gateway: dropping response for unknown id", "id", f.ID)
				continue
			}
			r := callResult{payload: f.Payload}
			if !f.OK {
				ce := &CallError{Method: pc.method}
				if f.Error != nil {
					ce.Code = f.Error.Code
					ce.Message = f.Error.Message
				}
				r = callResult{err: ce}
			}
			c.resolve(f.ID, r)

		case f.Event != "":
			c.logger.Debug("gateway event", "event", f.Event)

		default:
			c.logger.Debug("gateway: unhandled frame", "type", f.Type)
		}
	}
}

func (c *Conn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// fail marks the connection failed and closes it.
func (c *Conn) fail() {
	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
	c.Close()
}

// Close tears down the socket. Pending calls resolve with a TransportError.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	return c.ws.CloseNow()
}

// Done is closed once the read loop has exited.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}
