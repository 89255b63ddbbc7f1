// Copyright 2012 Apcera Inc. All rights reserved.

package nats

import (
	"testing"
	"time"
)

func newTestSub() *Subscription {
	return &Subscription{
		sid:     "1",
		Subject: "foo",
		conn:    &Conn{},
		mch:     make(chan *Msg, maxChanLen),
	}
}

func TestSubscriptionDeliverAndNextMsg(t *testing.T) {
	s := newTestSub()
	s.deliver(s.conn, &Msg{Subject: "foo", Data: []byte("hi")})

	msg, err := s.NextMsg(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Data) != "hi" {
		t.Fatalf("got %q", msg.Data)
	}
}

func TestSubscriptionNextMsgTimeout(t *testing.T) {
	s := newTestSub()
	if _, err := s.NextMsg(10 * time.Millisecond); err != ErrTimeout {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestSubscriptionCloseSinkIsIdempotent(t *testing.T) {
	s := newTestSub()
	s.closeSink()
	s.closeSink() // must not panic on double-close

	if _, err := s.NextMsg(10 * time.Millisecond); err != ErrBadSubscription {
		t.Fatalf("got %v, want ErrBadSubscription", err)
	}
}

func TestSubscriptionUnsubscribeIsIdempotent(t *testing.T) {
	s := newTestSub()
	// The sid is not in the attached Conn's (empty) registry: Unsubscribe
	// must be a no-op success, not a panic.
	if err := s.Unsubscribe(); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
}

func TestSubscriptionDeliverDropsOnFullChannelWithoutBlocking(t *testing.T) {
	s := &Subscription{sid: "1", Subject: "foo", mch: make(chan *Msg, 1)}
	nc := &Conn{opts: Options{AsyncErrorCB: func(*Conn, *Subscription, error) {}}}

	s.deliver(nc, &Msg{Data: []byte("a")})
	done := make(chan struct{})
	go func() {
		s.deliver(nc, &Msg{Data: []byte("b")}) // channel full: must not block
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliver blocked on a full channel instead of dropping")
	}
}
