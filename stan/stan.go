// Copyright 2016 Apcera Inc. All rights reserved.

package stan

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"

	nats "github.com/ratsio-go/ratsio"
	"github.com/ratsio-go/ratsio/idgen"
	"github.com/ratsio-go/ratsio/stan/pb"
)

// Conn is a streaming session layered on top of a Core PubSub
// connection: a discovery handshake establishes per-session subjects,
// a heartbeat responder keeps the session alive, and Subscribe/Publish
// exchange binary protobuf-shaped envelopes instead of raw bytes
// (§4.G "Streaming overlay").
type Conn struct {
	opts      Options
	clusterID string
	clientID  string
	connID    []byte

	nc        *nats.Conn
	ownsNatsC bool

	ids *idgen.Generator

	pubPrefix     string
	subRequests   string
	unsubRequests string
	closeRequests string

	heartbeatInbox string
	heartbeatSub   *nats.Subscription

	mu   sync.Mutex
	subs map[string]*Subscription

	selfMu  sync.Mutex
	selfRef *Conn
}

// Connect performs the discovery handshake against clusterID and returns
// a ready-to-use streaming session.
func Connect(clusterID, clientID string, options ...Option) (*Conn, error) {
	o := DefaultOptions()
	for _, fn := range options {
		if err := fn(&o); err != nil {
			return nil, err
		}
	}

	sc := &Conn{
		opts:      o,
		clusterID: clusterID,
		clientID:  clientID,
		ids:       idgen.New(),
		subs:      make(map[string]*Subscription),
	}
	sc.ids.Randomize()

	if o.NatsConn != nil {
		sc.nc = o.NatsConn
	} else {
		nc, err := nats.ConnectWithOptions([]string{o.NatsURL}, nats.Name(clientID))
		if err != nil {
			return nil, errors.Wrap(err, "stan: connecting underlying nats connection")
		}
		sc.nc = nc
		sc.ownsNatsC = true
	}

	sc.connID = []byte(sc.ids.Next())
	sc.heartbeatInbox = "_HB." + sc.ids.Next()

	sc.processHeartbeats()
	if err := sc.handshake(); err != nil {
		if sc.heartbeatSub != nil {
			sc.heartbeatSub.Unsubscribe()
		}
		if sc.ownsNatsC {
			sc.nc.Close()
		}
		return nil, err
	}

	sc.selfMu.Lock()
	sc.selfRef = sc
	sc.selfMu.Unlock()

	sc.nc.AddDisconnectHandler(func(*nats.Conn) {
		// The Core client already resumes raw SUB delivery on its own
		// reconnect (SubscribeOnReconnect); the streaming layer does not
		// replay subscription requests from scratch here. A caller that
		// needs gap-free resumption across a disconnect should use a
		// durable name, per §9's streaming reconnect resolution.
	})

	return sc, nil
}

func (sc *Conn) handshake() error {
	discoverSubject := fmt.Sprintf("%s.%s", sc.opts.DiscoverPrefix, sc.clusterID)

	req := &pb.ConnectRequest{
		ClientID:       sc.clientID,
		ConnID:         sc.connID,
		HeartbeatInbox: sc.heartbeatInbox,
		Protocol:       1,
	}
	buf, err := proto.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "stan: encoding ConnectRequest")
	}

	timeout := sc.opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectWait
	}
	reply, err := sc.nc.Request(discoverSubject, buf, timeout)
	if err != nil {
		if err == nats.ErrTimeout {
			return ErrConnectReqTimeout
		}
		return err
	}

	resp := &pb.ConnectResponse{}
	if err := proto.Unmarshal(reply.Data, resp); err != nil {
		return errors.Wrap(err, "stan: decoding ConnectResponse")
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}

	sc.pubPrefix = resp.PubPrefix
	sc.subRequests = resp.SubRequests
	sc.unsubRequests = resp.UnsubRequests
	sc.closeRequests = resp.CloseRequests
	return nil
}

// processHeartbeats answers every heartbeat probe the server sends to
// this session's heartbeat inbox, for as long as the session is open.
func (sc *Conn) processHeartbeats() {
	sub, err := sc.nc.Subscribe(sc.heartbeatInbox, func(m *nats.Msg) {
		if m.Reply == "" {
			return
		}
		reply := &pb.PubMsg{
			ClientID: sc.clientID,
			ConnID:   sc.connID,
			Subject:  sc.heartbeatInbox,
			Guid:     sc.ids.Next(),
		}
		buf, err := proto.Marshal(reply)
		if err != nil {
			return
		}
		sc.nc.Publish(m.Reply, buf)
	})
	if err != nil {
		return
	}

	sc.selfMu.Lock()
	sc.heartbeatSub = sub
	sc.selfMu.Unlock()
}

// Publish sends payload on subject with implicit, unacknowledged
// delivery to the streaming server (§4.G "Publish is fire-and-forget").
func (sc *Conn) Publish(subject string, data []byte) error {
	return sc.publish(subject, "", data)
}

// PublishWithReply is Publish with a reply-to subject set on the
// envelope, for callers layering their own request/response on top.
func (sc *Conn) PublishWithReply(subject, reply string, data []byte) error {
	return sc.publish(subject, reply, data)
}

// isClosed reports whether Close has already run.
func (sc *Conn) isClosed() bool {
	sc.selfMu.Lock()
	defer sc.selfMu.Unlock()
	return sc.selfRef == nil
}

func (sc *Conn) publish(subject, reply string, data []byte) error {
	if sc.isClosed() {
		return ErrConnectionClosed
	}
	sum := sha256.Sum256(data)

	msg := &pb.PubMsg{
		ClientID: sc.clientID,
		ConnID:   sc.connID,
		Subject:  subject,
		Reply:    reply,
		Data:     data,
		Guid:     sc.ids.Next(),
		Sha256:   sum[:],
	}
	buf, err := proto.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "stan: encoding PubMsg")
	}

	return sc.nc.Publish(fmt.Sprintf("%s.%s", sc.pubPrefix, subject), buf)
}

// Subscribe registers interest in subject, beginning at NewOnly unless
// overridden by a SubscriptionOption (e.g. DeliverAllAvailable).
func (sc *Conn) Subscribe(subject string, cb MsgHandler, options ...SubscriptionOption) (*Subscription, error) {
	return sc.subscribe(subject, "", cb, options...)
}

// QueueSubscribe registers a queue-group subscriber: only one member of
// the group receives each message.
func (sc *Conn) QueueSubscribe(subject, queue string, cb MsgHandler, options ...SubscriptionOption) (*Subscription, error) {
	return sc.subscribe(subject, queue, cb, options...)
}

func (sc *Conn) subscribe(subject, queue string, cb MsgHandler, options ...SubscriptionOption) (*Subscription, error) {
	if sc.isClosed() {
		return nil, ErrConnectionClosed
	}
	so := defaultSubOptions(sc.opts)
	for _, fn := range options {
		if err := fn(&so); err != nil {
			return nil, err
		}
	}

	inbox := "_SUB." + sc.ids.Next()

	req := &pb.SubscriptionRequest{
		ClientID:       sc.clientID,
		Subject:        subject,
		QGroup:         queue,
		DurableName:    so.durableName,
		MaxInFlight:    so.maxInFlight,
		AckWaitInSecs:  int32(so.ackWait / time.Second),
		StartPosition:  pb.StartPosition(so.startPosition),
		StartSequence:  so.startSequence,
		StartTimeDelta: int64(so.startTimeDelta),
		Inbox:          inbox,
	}
	buf, err := proto.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "stan: encoding SubscriptionRequest")
	}

	timeout := sc.opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectWait
	}
	reply, err := sc.nc.Request(sc.subRequests, buf, timeout)
	if err != nil {
		if err == nats.ErrTimeout {
			return nil, ErrSubReqTimeout
		}
		return nil, err
	}

	resp := &pb.SubscriptionResponse{}
	if err := proto.Unmarshal(reply.Data, resp); err != nil {
		return nil, errors.Wrap(err, "stan: decoding SubscriptionResponse")
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}

	sub := &Subscription{
		sc:          sc,
		subject:     subject,
		queue:       queue,
		durableName: so.durableName,
		inbox:       inbox,
		ackInbox:    resp.AckInbox,
		manualAcks:  so.manualAcks,
	}

	natsSub, err := sc.nc.Subscribe(inbox, func(m *nats.Msg) {
		mp := &pb.MsgProto{}
		if err := proto.Unmarshal(m.Data, mp); err != nil {
			return
		}
		sub.deliver(mp, cb)
	})
	if err != nil {
		return nil, err
	}
	sub.natsSub = natsSub

	sc.mu.Lock()
	sc.subs[inbox] = sub
	sc.mu.Unlock()

	return sub, nil
}

// unsubscribe tears down a subscription; keepDurable preserves the
// durable registration server-side (Subscription.Close) instead of
// forgetting it (Subscription.Unsubscribe).
func (sc *Conn) unsubscribe(sub *Subscription, keepDurable bool) error {
	sc.mu.Lock()
	_, present := sc.subs[sub.inbox]
	delete(sc.subs, sub.inbox)
	sc.mu.Unlock()
	if !present {
		return nil
	}

	if sub.natsSub != nil {
		sub.natsSub.Unsubscribe()
	}

	if keepDurable && sub.durableName != "" {
		return nil
	}

	req := &pb.UnsubscribeRequest{
		ClientID:    sc.clientID,
		Subject:     sub.subject,
		Inbox:       sub.inbox,
		DurableName: sub.durableName,
	}
	buf, err := proto.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "stan: encoding UnsubscribeRequest")
	}
	return sc.nc.Publish(sc.unsubRequests, buf)
}

// ackMessage publishes an Ack envelope to ackInbox.
func (sc *Conn) ackMessage(ackInbox, subject string, sequence uint64) error {
	if ackInbox == "" {
		return ErrAckInboxMissing
	}
	ack := &pb.Ack{Subject: subject, Sequence: sequence}
	buf, err := proto.Marshal(ack)
	if err != nil {
		return errors.Wrap(err, "stan: encoding Ack")
	}
	return sc.nc.Publish(ackInbox, buf)
}

// Close ends the session: it stops answering heartbeats, notifies the
// server via CloseRequest, then closes the underlying Core connection if
// this Conn dialed it itself.
func (sc *Conn) Close() error {
	sc.selfMu.Lock()
	if sc.selfRef == nil {
		sc.selfMu.Unlock()
		return nil
	}
	sc.selfRef = nil
	hb := sc.heartbeatSub
	sc.selfMu.Unlock()

	if hb != nil {
		hb.Unsubscribe()
	}

	req := &pb.CloseRequest{ClientID: sc.clientID}
	buf, err := proto.Marshal(req)
	if err == nil {
		sc.nc.Publish(sc.closeRequests, buf)
	}

	if sc.ownsNatsC {
		sc.nc.Close()
	}
	return nil
}
