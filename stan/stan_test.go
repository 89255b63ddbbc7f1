// Copyright 2016 Apcera Inc. All rights reserved.

package stan

import (
	"testing"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/ratsio-go/ratsio/stan/pb"
)

func TestConnectRequestRoundTrip(t *testing.T) {
	req := &pb.ConnectRequest{
		ClientID:       "client-1",
		ConnID:         []byte("conn-1"),
		HeartbeatInbox: "_HB.abc",
		Protocol:       1,
	}
	buf, err := proto.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}

	got := &pb.ConnectRequest{}
	if err := proto.Unmarshal(buf, got); err != nil {
		t.Fatal(err)
	}
	if got.ClientID != req.ClientID || string(got.ConnID) != string(req.ConnID) ||
		got.HeartbeatInbox != req.HeartbeatInbox || got.Protocol != req.Protocol {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, req)
	}
}

func TestPubMsgRoundTripWithSha256(t *testing.T) {
	msg := &pb.PubMsg{
		ClientID: "client-1",
		Subject:  "orders",
		Data:     []byte("hello"),
		Guid:     "g1",
		Sha256:   []byte{1, 2, 3, 4},
	}
	buf, err := proto.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	got := &pb.PubMsg{}
	if err := proto.Unmarshal(buf, got); err != nil {
		t.Fatal(err)
	}
	if got.Subject != msg.Subject || string(got.Data) != string(msg.Data) || string(got.Sha256) != string(msg.Sha256) {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestSubscriptionRequestStartPositionRoundTrip(t *testing.T) {
	req := &pb.SubscriptionRequest{
		ClientID:       "client-1",
		Subject:        "orders",
		StartPosition:  pb.StartPosition_SequenceStart,
		StartSequence:  42,
		StartTimeDelta: 0,
	}
	buf, err := proto.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}

	got := &pb.SubscriptionRequest{}
	if err := proto.Unmarshal(buf, got); err != nil {
		t.Fatal(err)
	}
	if got.StartPosition != pb.StartPosition_SequenceStart || got.StartSequence != 42 {
		t.Fatalf("got %+v", got)
	}
}

func TestAckRoundTrip(t *testing.T) {
	ack := &pb.Ack{Subject: "orders", Sequence: 7}
	buf, err := proto.Marshal(ack)
	if err != nil {
		t.Fatal(err)
	}
	got := &pb.Ack{}
	if err := proto.Unmarshal(buf, got); err != nil {
		t.Fatal(err)
	}
	if got.Subject != "orders" || got.Sequence != 7 {
		t.Fatalf("got %+v", got)
	}
}

func TestDefaultSubOptions(t *testing.T) {
	o := DefaultOptions()
	so := defaultSubOptions(o)
	if so.startPosition != StartAt_NewOnly {
		t.Fatalf("expected NewOnly default start position, got %v", so.startPosition)
	}
	if so.maxInFlight != DefaultMaxInFlight {
		t.Fatalf("expected default max in flight, got %d", so.maxInFlight)
	}
}

func TestSubscriptionOptionsCompose(t *testing.T) {
	so := defaultSubOptions(DefaultOptions())
	opts := []SubscriptionOption{
		DurableName("durable-1"),
		SetManualAckMode(),
		MaxInflight(10),
		AckWait(5 * time.Second),
		StartAtSequence(100),
	}
	for _, fn := range opts {
		if err := fn(&so); err != nil {
			t.Fatal(err)
		}
	}
	if so.durableName != "durable-1" || !so.manualAcks || so.maxInFlight != 10 ||
		so.ackWait != 5*time.Second || so.startPosition != StartAt_SequenceStart || so.startSequence != 100 {
		t.Fatalf("unexpected composed options: %+v", so)
	}
}

func TestDeliverAutomaticallyAcksWhenNotManual(t *testing.T) {
	sc := &Conn{clientID: "c1"}
	// An empty ack inbox makes ackMessage return ErrAckInboxMissing
	// before it would otherwise reach the network, so deliver can take
	// the automatic ack path here without a live broker (streaming has
	// none embeddable here, unlike the Core client's nats-server-backed
	// integration tests). The test observes the callback and that the
	// automatic path completes; the ack attempt itself is not observed.
	sub := &Subscription{sc: sc, ackInbox: "", manualAcks: false}

	var called bool
	sub.deliver(&pb.MsgProto{Sequence: 5, Subject: "orders"}, func(m *Msg) {
		called = true
		if m.Sequence != 5 {
			t.Fatalf("got sequence %d", m.Sequence)
		}
	})
	if !called {
		t.Fatal("expected callback to run before the automatic ack attempt")
	}
}

func TestDeliverDoesNotAckWhenManual(t *testing.T) {
	sc := &Conn{clientID: "c1"}
	sub := &Subscription{sc: sc, ackInbox: "_ACK.1", manualAcks: true}

	var called bool
	sub.deliver(&pb.MsgProto{Sequence: 9, Subject: "orders"}, func(m *Msg) {
		called = true
		if m.Sequence != 9 {
			t.Fatalf("got sequence %d", m.Sequence)
		}
		if m.AckInbox != "_ACK.1" {
			t.Fatalf("got ack inbox %q, want _ACK.1", m.AckInbox)
		}
	})
	if !called {
		t.Fatal("expected callback to run")
	}
	// No panic means ackMessage (which would dereference sc.nc) was never
	// called, confirming manual-ack mode suppresses the automatic ack.
}

func TestDeliverCarriesRedeliveredAndReplyTo(t *testing.T) {
	sc := &Conn{clientID: "c1"}
	sub := &Subscription{sc: sc, ackInbox: "", manualAcks: false}

	var got *Msg
	sub.deliver(&pb.MsgProto{
		Sequence:    3,
		Subject:     "orders",
		Reply:       "_INBOX.reply",
		Redelivered: true,
	}, func(m *Msg) { got = m })

	if got == nil {
		t.Fatal("expected callback to run")
	}
	if !got.Redelivered {
		t.Fatal("expected Redelivered to be true")
	}
	if got.ReplyTo != "_INBOX.reply" {
		t.Fatalf("got ReplyTo %q, want _INBOX.reply", got.ReplyTo)
	}
}

func TestMsgAckFailsWithoutASubscription(t *testing.T) {
	m := &Msg{Sequence: 1}
	if err := m.Ack(); err != ErrBadSubscription {
		t.Fatalf("got %v, want ErrBadSubscription", err)
	}
}

func TestMsgTime(t *testing.T) {
	now := time.Now()
	m := &Msg{Timestamp: now.UnixNano()}
	if !m.Time().Equal(time.Unix(0, now.UnixNano())) {
		t.Fatalf("unexpected Time(): %v", m.Time())
	}
}
