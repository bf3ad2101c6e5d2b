package auth

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// IdentityFileName is the default file name of the persisted device identity.
const IdentityFileName = "device-identity.json"

var b64 = base64.RawURLEncoding

// Identity is the relay's long-lived Ed25519 device identity.
// DeviceID is always hex(sha256(PublicKey)).
type Identity struct {
	DeviceID   string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// identityFile is the on-disk shape.
type identityFile struct {
	DeviceID   string `json:"deviceId"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// IdentityError reports a failure to persist the device identity.
type IdentityError struct {
	Path string
	Op   string // "mkdir", "write", "rename", "generate"
	Err  error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("device identity: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}

// DeviceIDFromPublicKey returns the hex-encoded SHA-256 of the raw public key.
func DeviceIDFromPublicKey(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

// LoadOrCreateIdentity loads the identity persisted at path, or generates and
// persists a fresh one when the file is absent, unreadable or incomplete.
func LoadOrCreateIdentity(path string) (*Identity, error) {
	id, err := loadIdentity(path)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("device identity invalid, regenerating", "path", path, "error", err)
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, &IdentityError{Path: path, Op: "generate", Err: err}
	}
	id = identityFromSeed(seed)
	if err := saveIdentity(path, id); err != nil {
		return nil, err
	}
	return id, nil
}

// decodeB64 accepts URL-safe base64 with or without padding.
func decodeB64(s string) ([]byte, error) {
	return b64.DecodeString(strings.TrimRight(s, "="))
}

func identityFromSeed(seed []byte) *Identity {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{
		DeviceID:   DeviceIDFromPublicKey(pub),
		PublicKey:  pub,
		PrivateKey: priv,
	}
}

func loadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	var f identityFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	if f.DeviceID == "" || f.PublicKey == "" || f.PrivateKey == "" {
		return nil, errors.New("identity file incomplete")
	}

	seed, err := decodeB64(f.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	pub, err := decodeB64(f.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}

	id := identityFromSeed(seed)
	if !bytes.Equal(pub, id.PublicKey) {
		return nil, errors.New("public key does not match private key")
	}
	if f.DeviceID != id.DeviceID {
		return nil, errors.New("device id does not match public key")
	}
	return id, nil
}

// saveIdentity writes to a temp file and renames it into place so a partial
// write never leaves a file that loads.
func saveIdentity(path string, id *Identity) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return &IdentityError{Path: dir, Op: "mkdir", Err: err}
	}

	data, err := json.MarshalIndent(identityFile{
		DeviceID:   id.DeviceID,
		PublicKey:  b64.EncodeToString(id.PublicKey),
		PrivateKey: b64.EncodeToString(id.PrivateKey.Seed()),
	}, "", "  ")
	if err != nil {
		return &IdentityError{Path: path, Op: "write", Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".identity-*")
	if err != nil {
		return &IdentityError{Path: path, Op: "write", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &IdentityError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return &IdentityError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IdentityError{Path: path, Op: "write", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &IdentityError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

// PublicKeyString returns the public key as unpadded URL-safe base64, the
// encoding the gateway expects in the connect device block.
func (id *Identity) PublicKeyString() string {
	return b64.EncodeToString(id.PublicKey)
}

// Fingerprint returns the SSH-style SHA256 fingerprint of the public key.
func (id *Identity) Fingerprint() string {
	pk, err := ssh.NewPublicKey(id.PublicKey)
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(pk)
}

// AuthorizedKey returns the public key in authorized_keys format.
func (id *Identity) AuthorizedKey() string {
	pk, err := ssh.NewPublicKey(id.PublicKey)
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(ssh.MarshalAuthorizedKey(pk)))
}
