// Copyright 2012 Apcera Inc. All rights reserved.

package nats

import (
	"errors"
	"fmt"
)

// Sentinel errors a caller can compare with errors.Is, matching the
// style of the original client this package descends from.
var (
	ErrConnectionClosed   = errors.New("nats: connection closed")
	ErrSecureConnRequired = errors.New("nats: secure connection required")
	ErrSecureConnWanted   = errors.New("nats: secure connection not available")
	ErrBadSubscription    = errors.New("nats: invalid subscription")
	ErrSlowConsumer       = errors.New("nats: slow consumer, messages dropped")
	ErrTimeout            = errors.New("nats: timeout")
	ErrNoServers          = errors.New("nats: no servers available for connection")
	ErrRequestStreamClosed = errors.New("nats: request reply stream closed without a message")
)

// Kind classifies an Error per the error handling design: configuration
// and no-route errors surface synchronously from construction; decode and
// send failures are connection-fatal but process-survivable; request-scoped
// errors surface to the caller that made the call.
type Kind int

const (
	KindGeneric Kind = iota
	KindConfiguration
	KindNoRoute
	KindProtocolDecode
	KindSendFailure
	KindRequestStreamClosed
	KindAckInboxMissing
	KindInternalServer
	KindCannotReconnect
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindNoRoute:
		return "no-route"
	case KindProtocolDecode:
		return "protocol-decode"
	case KindSendFailure:
		return "send-failure"
	case KindRequestStreamClosed:
		return "request-stream-closed"
	case KindAckInboxMissing:
		return "ack-inbox-missing"
	case KindInternalServer:
		return "internal-server"
	case KindCannotReconnect:
		return "cannot-reconnect"
	default:
		return "generic"
	}
}

// Error wraps an underlying cause with the error kind taxonomy from the
// error handling design so callers can branch with errors.As while the
// wrapped cause (usually produced with github.com/pkg/errors) still
// carries a stack for logs.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("nats: %s error", e.Kind)
	}
	return fmt.Sprintf("nats: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
