// Copyright 2012 Apcera Inc. All rights reserved.

package nats

import (
	"sync"
	"sync/atomic"
	"time"
)

// the size of the buffered channel between the socket reader and a
// subscription's delivery sink. The buffer is bounded: once it holds
// maxChanLen undelivered messages, further messages for that subscription
// are dropped and reported as a slow consumer, so no backpressure is
// exerted on the socket.
const maxChanLen = 65536

// MsgHandler processes messages delivered to asynchronous subscribers.
type MsgHandler func(msg *Msg)

// Msg is delivered to subscribers and returned by Request/NextMsg.
type Msg struct {
	Subject string
	Reply   string
	Data    []byte
	Sub     *Subscription
}

// Subscription represents interest in a subject, registered under a
// NUID-generated sid (§3 "Subscription record"). The original subscribe
// parameters are retained verbatim so reconnect can resend SUB.
type Subscription struct {
	mu  sync.Mutex
	sid string

	Subject string
	Queue   string

	conn      *Conn
	mcb       MsgHandler
	mch       chan *Msg
	delivered uint64
	max       uint64
	closed    bool
}

// Sid returns the subscription id assigned at creation.
func (s *Subscription) Sid() string { return s.sid }

// IsValid reports whether the subscription is still registered.
func (s *Subscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// deliver pushes a message to this subscription's sink, or marks it a
// slow consumer if the sink is full. The caller (the connection engine's
// inbound router) is the single producer.
func (s *Subscription) deliver(nc *Conn, m *Msg) {
	s.mu.Lock()
	mch := s.mch
	s.mu.Unlock()
	if mch == nil {
		return
	}
	select {
	case mch <- m:
	default:
		nc.processSlowConsumer(s)
	}
}

// closeSink closes the delivery channel so consumers observe the close
// sentinel rather than socket EOF (§4.E).
func (s *Subscription) closeSink() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.mch != nil {
		close(s.mch)
	}
	s.conn = nil
}

// NextMsg blocks until a message arrives on a synchronous subscription
// or the timeout elapses.
func (s *Subscription) NextMsg(timeout time.Duration) (*Msg, error) {
	s.mu.Lock()
	if s.mcb != nil {
		s.mu.Unlock()
		return nil, newError(KindGeneric, ErrBadSubscription)
	}
	mch := s.mch
	conn := s.conn
	s.mu.Unlock()
	if conn == nil || mch == nil {
		return nil, ErrBadSubscription
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case msg, ok := <-mch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		atomic.AddUint64(&s.delivered, 1)
		return msg, nil
	case <-t.C:
		return nil, ErrTimeout
	}
}

// Unsubscribe removes interest in the subscription's subject.
func (s *Subscription) Unsubscribe() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil // already unsubscribed: idempotent (§8 property 3)
	}
	return conn.unsubscribe(s, 0)
}

// AutoUnsubscribe issues an automatic unsubscribe once max messages
// have been received by the server for this subscription.
func (s *Subscription) AutoUnsubscribe(max int) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrBadSubscription
	}
	return conn.unsubscribe(s, max)
}
