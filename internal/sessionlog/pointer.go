package sessionlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultSessionKey names the main agent session in the sessions index.
const DefaultSessionKey = "agent:main:main"

// ErrNoSession means there is no active session log to read.
var ErrNoSession = errors.New("no active session")

// Pointer resolves the active session log through the gateway's sessions
// index, a JSON object mapping session keys to {"sessionFile": path}.
type Pointer struct {
	SessionsFile string
	SessionKey   string
}

type sessionEntry struct {
	SessionFile string `json:"sessionFile"`
}

// Resolve returns the path of the active session log. Every failure (missing
// index, bad JSON, unknown key, empty path) wraps ErrNoSession.
func (p Pointer) Resolve() (string, error) {
	data, err := os.ReadFile(p.SessionsFile)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	// other entries may hold anything; only the configured key is decoded
	var index map[string]json.RawMessage
	if err := json.Unmarshal(data, &index); err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", ErrNoSession, p.SessionsFile, err)
	}

	key := p.SessionKey
	if key == "" {
		key = DefaultSessionKey
	}
	raw, ok := index[key]
	if !ok {
		return "", fmt.Errorf("%w: no session file for %q", ErrNoSession, key)
	}
	var entry sessionEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.SessionFile == "" {
		return "", fmt.Errorf("%w: no session file for %q", ErrNoSession, key)
	}

	path := entry.SessionFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(p.SessionsFile), path)
	}
	return path, nil
}

// Conversation resolves the active session and parses its log.
func (p Pointer) Conversation() ([]Message, error) {
	path, err := p.Resolve()
	if err != nil {
		return nil, err
	}
	return ParseFile(path)
}
