// Copyright 2012 Apcera Inc. All rights reserved.

package nats

import "time"

const (
	// Version is the library version.
	Version = "1.0.0"

	// DefaultURL is the conventional address of a local server. Connect
	// does not fall back to it: an empty server list is a configuration
	// error.
	DefaultURL = "nats://localhost:4222"

	DefaultMaxReconnect  = 10
	DefaultReconnectWait = 2 * time.Second
	DefaultTimeout       = 2 * time.Second
	DefaultPingInterval  = 2 * time.Minute
	DefaultMaxPingOut    = 2

	// langString is the fixed literal sent in CONNECT identifying this
	// client implementation, per the external interface's CONNECT schema.
	langString = "go"
)

// ConnHandler is used for asynchronous connection lifecycle events:
// disconnected, reconnected and closed.
type ConnHandler func(*Conn)

// ErrHandler processes asynchronous errors encountered while handling
// inbound messages for a given subscription (e.g. a slow consumer).
type ErrHandler func(*Conn, *Subscription, error)

// Options configures a Conn. The zero value is not usable; start from
// DefaultOptions().
type Options struct {
	// Servers is the ordered candidate pool of server URIs. At least one
	// is required; an empty pool is a configuration error surfaced
	// synchronously from Connect, before any I/O.
	Servers []string

	Username  string
	Password  string
	AuthToken string
	Name      string

	Verbose      bool
	Pedantic     bool
	TLSRequired  bool
	TLSConfig    interface{} // seam for a caller-supplied *tls.Config; see SPEC_FULL.md
	Secure       bool

	// KeepRetrying makes the transport factory retry the server list
	// indefinitely (with ReconnectWait backoff) instead of surfacing a
	// no-route error when every candidate fails.
	KeepRetrying bool

	AllowReconnect        bool
	MaxReconnect          int
	ReconnectWait         time.Duration
	SubscribeOnReconnect  bool

	Timeout time.Duration

	// PingInterval is the full period between PING probes; the heartbeat
	// monitor sleeps half of it between each half of its loop.
	PingInterval time.Duration
	// MaxPingsOut is the number of missed heartbeat intervals tolerated
	// before the connection is considered dead.
	MaxPingsOut int

	DisconnectedCB ConnHandler
	ReconnectedCB  ConnHandler
	ClosedCB       ConnHandler
	AsyncErrorCB   ErrHandler
}

// DefaultOptions returns sane defaults; callers copy and mutate it.
func DefaultOptions() Options {
	return Options{
		AllowReconnect:       true,
		MaxReconnect:         DefaultMaxReconnect,
		ReconnectWait:        DefaultReconnectWait,
		Timeout:              DefaultTimeout,
		PingInterval:         DefaultPingInterval,
		MaxPingsOut:          DefaultMaxPingOut,
		SubscribeOnReconnect: true,
	}
}

// Option mutates Options; applied in order by Connect.
type Option func(*Options) error

// Servers sets the candidate server URI pool.
func Servers(urls ...string) Option {
	return func(o *Options) error {
		o.Servers = urls
		return nil
	}
}

// Name sets the connection name advertised in CONNECT.
func Name(name string) Option {
	return func(o *Options) error {
		o.Name = name
		return nil
	}
}

// UserInfo sets username/password credentials.
func UserInfo(user, pass string) Option {
	return func(o *Options) error {
		o.Username = user
		o.Password = pass
		return nil
	}
}

// Token sets an auth token credential.
func Token(token string) Option {
	return func(o *Options) error {
		o.AuthToken = token
		return nil
	}
}

// RetryOnFailedConnect makes the transport factory retry indefinitely
// rather than fail once the server list is exhausted.
func RetryOnFailedConnect(retry bool) Option {
	return func(o *Options) error {
		o.KeepRetrying = retry
		return nil
	}
}

// ReconnectWait sets the backoff between reconnect attempts.
func ReconnectWait(t time.Duration) Option {
	return func(o *Options) error {
		o.ReconnectWait = t
		return nil
	}
}

// MaxReconnects sets the number of reconnect attempts per reconnect cycle.
func MaxReconnects(n int) Option {
	return func(o *Options) error {
		o.MaxReconnect = n
		return nil
	}
}

// PingInterval sets the heartbeat probe period.
func PingInterval(t time.Duration) Option {
	return func(o *Options) error {
		o.PingInterval = t
		return nil
	}
}

// MaxPingsOutstanding sets the missed-heartbeat tolerance.
func MaxPingsOutstanding(n int) Option {
	return func(o *Options) error {
		o.MaxPingsOut = n
		return nil
	}
}

// DisconnectHandler registers the callback invoked when the connection
// transitions to Disconnected.
func DisconnectHandler(cb ConnHandler) Option {
	return func(o *Options) error {
		o.DisconnectedCB = cb
		return nil
	}
}

// ReconnectHandler registers the callback invoked after a successful
// reconnect.
func ReconnectHandler(cb ConnHandler) Option {
	return func(o *Options) error {
		o.ReconnectedCB = cb
		return nil
	}
}

// ClosedHandler registers the callback invoked once the connection
// reaches Shutdown.
func ClosedHandler(cb ConnHandler) Option {
	return func(o *Options) error {
		o.ClosedCB = cb
		return nil
	}
}
