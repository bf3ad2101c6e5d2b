package ws

import "encoding/json"

// Frame types and methods of the gateway WebSocket protocol.
const (
	// Frame types
	TypeRequest  = "req"
	TypeResponse = "res"
	TypeEvent    = "event"

	// Methods (relay → gateway)
	MethodConnect  = "connect"
	MethodChatSend = "chat.send"

	// Events (gateway → relay, unsolicited)
	EventConnectChallenge = "connect.challenge"
)

// Protocol version bounds announced in the connect request.
const (
	MinProtocol = 3
	MaxProtocol = 3
)

// DefaultScopes is the scope list requested on connect. Order matters: it is
// covered by the device signature.
var DefaultScopes = []string{"operator.read", "operator.write", "operator.admin"}

// Frame is the envelope of every message on the gateway socket. Requests set
// Method/Params, responses set OK/Payload/Error, events set Event/Payload.
type Frame struct {
	Type    string          `json:"type,omitempty"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

// FrameError is the error body of a failed response.
type FrameError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ChallengePayload is the payload of connect.challenge.
type ChallengePayload struct {
	Nonce string `json:"nonce"`
}

// ClientInfo describes this relay to the gateway.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

// ConnectAuth carries the shared gateway token.
type ConnectAuth struct {
	Token string `json:"token"`
}

// DeviceProof proves possession of the device identity.
type DeviceProof struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
	SignedAt  int64  `json:"signedAt"`
	Nonce     string `json:"nonce"`
}

// ConnectParams is the params body of the connect request.
type ConnectParams struct {
	MinProtocol int            `json:"minProtocol"`
	MaxProtocol int            `json:"maxProtocol"`
	Client      ClientInfo     `json:"client"`
	Role        string         `json:"role"`
	Scopes      []string       `json:"scopes"`
	Caps        []string       `json:"caps"`
	Commands    []string       `json:"commands"`
	Permissions map[string]any `json:"permissions"`
	Auth        ConnectAuth    `json:"auth"`
	Locale      string         `json:"locale"`
	UserAgent   string         `json:"userAgent"`
	Device      DeviceProof    `json:"device"`
}

// ChatSendParams is the params body of chat.send. Deliver is always false:
// replies reach the UI through the session log, not this socket.
type ChatSendParams struct {
	SessionKey     string `json:"sessionKey"`
	Message        string `json:"message"`
	Deliver        bool   `json:"deliver"`
	IdempotencyKey string `json:"idempotencyKey"`
}
