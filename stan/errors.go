package stan

import "errors"

// Sentinel errors specific to the streaming overlay.
var (
	ErrConnectionClosed  = errors.New("stan: connection closed")
	ErrAckInboxMissing   = errors.New("stan: ack inbox missing, was this message manually acked already?")
	ErrBadSubscription   = errors.New("stan: invalid subscription")
	ErrConnectReqTimeout = errors.New("stan: connect request timed out, missing or misconfigured cluster id")
	ErrSubReqTimeout     = errors.New("stan: subscription request timed out")
)
