// Copyright 2016 Apcera Inc. All rights reserved.

package stan

import (
	"sync"
	"time"

	nats "github.com/ratsio-go/ratsio"
	"github.com/ratsio-go/ratsio/stan/pb"
)

// Msg is delivered to streaming subscribers. Unlike the Core client's
// Msg, it carries a sequence number and timestamp, and an Ack method
// that manual-ack subscriptions use to acknowledge it.
type Msg struct {
	Sequence    uint64
	Subject     string
	ReplyTo     string
	Data        []byte
	Timestamp   int64
	Redelivered bool
	AckInbox    string

	sub *Subscription
}

// Time returns the server-assigned delivery timestamp.
func (m *Msg) Time() time.Time {
	return time.Unix(0, m.Timestamp)
}

// Ack acknowledges this message. Only meaningful on a subscription
// created with SetManualAckMode; automatic subscriptions ack once the
// handler returns, and calling Ack on such a message publishes a second
// Ack envelope for the same sequence.
func (m *Msg) Ack() error {
	if m.sub == nil {
		return ErrBadSubscription
	}
	return m.sub.ackMessage(m)
}

// Subscription represents interest in a streaming channel.
type Subscription struct {
	mu sync.Mutex

	sc          *Conn
	subject     string
	queue       string
	durableName string
	inbox       string
	ackInbox    string
	manualAcks  bool

	natsSub *nats.Subscription
}

// MsgHandler processes messages delivered to a streaming subscription.
type MsgHandler func(*Msg)

func (s *Subscription) deliver(mp *pb.MsgProto, cb MsgHandler) {
	s.mu.Lock()
	ackInbox := s.ackInbox
	s.mu.Unlock()

	m := &Msg{
		Sequence:    mp.Sequence,
		Subject:     mp.Subject,
		ReplyTo:     mp.Reply,
		Data:        mp.Data,
		Timestamp:   mp.Timestamp,
		Redelivered: mp.Redelivered,
		AckInbox:    ackInbox,
		sub:         s,
	}

	if cb != nil {
		cb(m)
	}
	if !s.manualAcks {
		s.ackMessage(m)
	}
}

func (s *Subscription) ackMessage(m *Msg) error {
	s.mu.Lock()
	ackInbox := s.ackInbox
	sc := s.sc
	s.mu.Unlock()
	if sc == nil {
		return ErrBadSubscription
	}
	return sc.ackMessage(ackInbox, m.Subject, m.Sequence)
}

// Unsubscribe removes interest in the subscription's subject, forgetting
// a durable registration if one was set.
func (s *Subscription) Unsubscribe() error {
	s.mu.Lock()
	sc := s.sc
	s.mu.Unlock()
	if sc == nil {
		return nil
	}
	return sc.unsubscribe(s, false)
}

// Close removes local interest while preserving a durable registration
// server-side, so a later Subscribe with the same DurableName resumes
// where this one left off.
func (s *Subscription) Close() error {
	s.mu.Lock()
	sc := s.sc
	s.mu.Unlock()
	if sc == nil {
		return nil
	}
	return sc.unsubscribe(s, true)
}
