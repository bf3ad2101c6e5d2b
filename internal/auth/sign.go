package auth

import (
	"crypto/ed25519"
	"strconv"
	"strings"
)

// Fixed tags of the connect signature. The gateway verifier rebuilds the same
// string, so the layout is part of the wire contract.
const (
	signatureVersion = "v2"
	ClientID         = "openclaw-control-ui"
	ClientMode       = "ui"
	Role             = "operator"
)

// ConnectPayload holds the per-attempt fields covered by the connect signature.
type ConnectPayload struct {
	Scopes     []string
	SignedAtMs int64
	Token      string
	Nonce      string
}

// CanonicalPayload builds the pipe-delimited string that gets signed:
//
//	v2|deviceId|clientId|clientMode|role|scope1,scope2|signedAtMs|token|nonce
//
// Scopes keep caller order.
func CanonicalPayload(deviceID string, p ConnectPayload) string {
	return strings.Join([]string{
		signatureVersion,
		deviceID,
		ClientID,
		ClientMode,
		Role,
		strings.Join(p.Scopes, ","),
		strconv.FormatInt(p.SignedAtMs, 10),
		p.Token,
		p.Nonce,
	}, "|")
}

// Sign signs the canonical payload with the identity's private key and returns
// the signature as unpadded URL-safe base64.
func Sign(id *Identity, p ConnectPayload) string {
	sig := ed25519.Sign(id.PrivateKey, []byte(CanonicalPayload(id.DeviceID, p)))
	return b64.EncodeToString(sig)
}

// Verify checks a signature produced by Sign against a base64 public key.
func Verify(publicKey, deviceID string, p ConnectPayload, signature string) bool {
	pub, err := decodeB64(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := decodeB64(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, []byte(CanonicalPayload(deviceID, p)), sig)
}
