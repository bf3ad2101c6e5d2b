package ws

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is wrapped by every TimeoutError.
var ErrTimeout = errors.New("gateway call timed out")

// ErrClosed is returned for calls issued on a connection that has shut down.
var ErrClosed = errors.New("gateway connection closed")

// TransportError means the gateway could not be reached or the socket dropped.
type TransportError struct {
	Op  string // "dial", "read", "write"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HandshakeError means the gateway refused the connect request. Scope, token,
// nonce and signature failures are not distinguished.
type HandshakeError struct {
	Code    string
	Message string
}

func (e *HandshakeError) Error() string {
	reason := e.Code
	if reason == "" {
		reason = e.Message
	}
	if reason == "" {
		reason = "unknown error"
	}
	return "connect failed: " + reason
}

// TimeoutError means no response arrived before the call deadline.
type TimeoutError struct {
	Method string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response after %s", e.Method, e.After)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// CallError is a gateway-reported failure of an application call.
type CallError struct {
	Method  string
	Code    string
	Message string
}

func (e *CallError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Method + " failed: " + e.Code
	}
	return e.Method + " failed"
}
