// Copyright 2016 Apcera Inc. All rights reserved.

package stan

import (
	"time"

	nats "github.com/ratsio-go/ratsio"
)

const (
	DefaultNatsURL        = "nats://localhost:4222"
	DefaultConnectWait    = 2 * time.Second
	DefaultDiscoverPrefix = "_STAN.discover"
	DefaultAckWait        = 30 * time.Second
	DefaultMaxInFlight    = 1024
)

// Options configures a streaming Conn. Start from DefaultOptions and
// apply Option values, mirroring the Core client's own functional-options
// shape (§4.G).
type Options struct {
	// NatsURL dials a fresh nats.Conn when NatsConn is nil.
	NatsURL string
	// NatsConn reuses an already-connected Core client instead of
	// dialing a new one.
	NatsConn *nats.Conn

	ConnectTimeout time.Duration
	AckTimeout     time.Duration
	DiscoverPrefix string
}

// DefaultOptions returns sane defaults; callers copy and mutate it.
func DefaultOptions() Options {
	return Options{
		NatsURL:        DefaultNatsURL,
		ConnectTimeout: DefaultConnectWait,
		AckTimeout:     DefaultAckWait,
		DiscoverPrefix: DefaultDiscoverPrefix,
	}
}

// Option mutates Options; applied in order by Connect.
type Option func(*Options) error

// NatsConn reuses an existing Core client rather than dialing a new one.
func NatsConn(nc *nats.Conn) Option {
	return func(o *Options) error {
		o.NatsConn = nc
		return nil
	}
}

// NatsURL sets the dial target used when no NatsConn is supplied.
func NatsURL(url string) Option {
	return func(o *Options) error {
		o.NatsURL = url
		return nil
	}
}

// ConnectWait sets the discovery handshake timeout.
func ConnectWait(t time.Duration) Option {
	return func(o *Options) error {
		o.ConnectTimeout = t
		return nil
	}
}

// AckTimeout sets the default ack-wait advertised on subscriptions that
// don't set their own via SubscriptionOption.
func AckTimeout(t time.Duration) Option {
	return func(o *Options) error {
		o.AckTimeout = t
		return nil
	}
}

// DiscoverPrefixOption overrides the discovery subject prefix.
func DiscoverPrefixOption(prefix string) Option {
	return func(o *Options) error {
		o.DiscoverPrefix = prefix
		return nil
	}
}

// StartPosition selects where a subscription begins reading a channel's
// history, per §4.G "start positions".
type StartPosition int32

const (
	StartAt_NewOnly StartPosition = iota
	StartAt_LastReceived
	StartAt_TimeDeltaStart
	StartAt_SequenceStart
	StartAt_First
)

// subOptions holds per-subscription parameters built up by
// SubscriptionOption values.
type subOptions struct {
	durableName    string
	manualAcks     bool
	maxInFlight    int32
	ackWait        time.Duration
	startPosition  StartPosition
	startSequence  uint64
	startTimeDelta time.Duration
}

func defaultSubOptions(o Options) subOptions {
	return subOptions{
		maxInFlight:   DefaultMaxInFlight,
		ackWait:       o.AckTimeout,
		startPosition: StartAt_NewOnly,
	}
}

// SubscriptionOption mutates subscription parameters; applied in order by
// Subscribe/QueueSubscribe.
type SubscriptionOption func(*subOptions) error

// DurableName registers a durable subscription under name, so redelivery
// can resume across process restarts.
func DurableName(name string) SubscriptionOption {
	return func(o *subOptions) error {
		o.durableName = name
		return nil
	}
}

// SetManualAckMode disables automatic acking; the caller must call
// Msg.Ack explicitly.
func SetManualAckMode() SubscriptionOption {
	return func(o *subOptions) error {
		o.manualAcks = true
		return nil
	}
}

// MaxInflight bounds the number of unacknowledged messages the server
// will deliver before pausing.
func MaxInflight(n int) SubscriptionOption {
	return func(o *subOptions) error {
		o.maxInFlight = int32(n)
		return nil
	}
}

// AckWait sets how long the server waits for an ack before redelivering.
func AckWait(t time.Duration) SubscriptionOption {
	return func(o *subOptions) error {
		o.ackWait = t
		return nil
	}
}

// StartAt selects where in history this subscription begins.
func StartAt(p StartPosition) SubscriptionOption {
	return func(o *subOptions) error {
		o.startPosition = p
		return nil
	}
}

// StartAtSequence begins delivery at an explicit sequence number.
func StartAtSequence(seq uint64) SubscriptionOption {
	return func(o *subOptions) error {
		o.startPosition = StartAt_SequenceStart
		o.startSequence = seq
		return nil
	}
}

// StartAtTimeDelta begins delivery at messages newer than ago.
func StartAtTimeDelta(ago time.Duration) SubscriptionOption {
	return func(o *subOptions) error {
		o.startPosition = StartAt_TimeDeltaStart
		o.startTimeDelta = ago
		return nil
	}
}

// DeliverAllAvailable replays the entire retained history of a channel.
func DeliverAllAvailable() SubscriptionOption {
	return StartAt(StartAt_First)
}
