// Copyright 2012 Apcera Inc. All rights reserved.

package nats

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ratsio-go/ratsio/idgen"
)

// Status is one of the five connection states in §3.
type Status int32

const (
	Connecting Status = iota
	Connected
	Disconnected
	Reconnecting
	Shutdown
)

// Conn is a single long-lived connection to one of the candidate NATS
// servers. It fuses the connection engine (§4.D) and the core client
// facade (§4.F) into one exported type, keeping Conn as the sole entry
// point rather than splitting it across two Go types.
type Conn struct {
	opts Options

	status  int32  // atomic Status
	version uint64 // atomic; reconnect fencing counter, §9

	// writeMu serializes everything written to the socket and is the
	// only lock ever held across the write syscall itself (§5).
	writeMu sync.Mutex
	conn    net.Conn
	bw      *bufio.Writer
	br      *bufio.Reader
	fch     chan struct{}
	pongs   []chan error

	lastActivity int64 // atomic, UnixNano

	infoMu sync.RWMutex
	info   ServerInfo

	// subsMu guards the subscription registry (§4.E).
	subsMu sync.Mutex
	subs   map[string]*Subscription

	handlersMu         sync.Mutex
	disconnectHandlers []ConnHandler

	// selfMu guards selfRef, the owned strong handle §9 describes
	// ("Cyclic self-reference"). It is explicitly nilled on Shutdown
	// rather than relied on for GC to break the cycle.
	selfMu  sync.Mutex
	selfRef *Conn

	ids *idgen.Generator
}

// Connect dials one of servers and performs the CONNECT handshake.
func Connect(servers ...string) (*Conn, error) {
	o := DefaultOptions()
	o.Servers = servers
	return o.Connect()
}

// ConnectWithOptions applies options on top of DefaultOptions and connects.
func ConnectWithOptions(servers []string, options ...Option) (*Conn, error) {
	o := DefaultOptions()
	o.Servers = servers
	for _, fn := range options {
		if err := fn(&o); err != nil {
			return nil, newError(KindConfiguration, err)
		}
	}
	return o.Connect()
}

// Connect dials using the receiver's options. Configuration and no-route
// errors surface synchronously here, per §7.
func (o Options) Connect() (*Conn, error) {
	nc := &Conn{
		opts: o,
		subs: make(map[string]*Subscription),
		fch:  make(chan struct{}, 1),
		ids:  idgen.New(),
	}
	atomic.StoreInt32(&nc.status, int32(Connecting))

	tcp, err := dial(o)
	if err != nil {
		return nil, err
	}
	if err := nc.start(tcp, 1); err != nil {
		return nil, err
	}

	nc.selfMu.Lock()
	nc.selfRef = nc
	nc.selfMu.Unlock()

	go nc.monitorHeartbeat()
	return nc, nil
}

// start wires up a freshly dialed socket: wraps it in buffered
// reader/writer, reads the mandatory first INFO frame, spins the reader
// and flusher, and sends CONNECT. version fences this reader generation
// against a later reconnect (§4.D "Inbound router").
func (nc *Conn) start(stream net.Conn, version uint64) error {
	nc.writeMu.Lock()
	if nc.conn != nil {
		nc.conn.Close()
	}
	nc.conn = stream
	nc.bw = bufio.NewWriterSize(stream, defaultBufSize)
	nc.br = bufio.NewReaderSize(stream, defaultBufSize)
	nc.writeMu.Unlock()

	atomic.StoreUint64(&nc.version, version)
	atomic.StoreInt64(&nc.lastActivity, time.Now().UnixNano())

	if err := nc.processExpectedInfo(); err != nil {
		return err
	}

	go nc.readLoop(version)
	go nc.flusher(version)

	if err := nc.sendConnect(); err != nil {
		return err
	}
	atomic.StoreInt32(&nc.status, int32(Connected))
	return nil
}

// processExpectedInfo reads the first frame off a freshly dialed socket
// and requires it to be INFO, per the NATS handshake.
func (nc *Conn) processExpectedInfo() error {
	nc.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer nc.conn.SetReadDeadline(time.Time{})

	cl, err := readControlLine(nc.br)
	if err != nil {
		return newError(KindProtocolDecode, errors.Wrap(err, "reading initial INFO"))
	}
	if cl.op != opInfoText {
		return newError(KindProtocolDecode, errors.New("nats: protocol exception, INFO not received"))
	}
	op, err := decodeOp(cl)
	if err != nil {
		return err
	}
	nc.infoMu.Lock()
	nc.info = op.Info
	nc.infoMu.Unlock()
	return nil
}

func (nc *Conn) connectInfo() connectInfo {
	o := nc.opts
	return connectInfo{
		Verbose:     o.Verbose,
		Pedantic:    o.Pedantic,
		TLSRequired: o.TLSRequired,
		AuthToken:   o.AuthToken,
		User:        o.Username,
		Pass:        o.Password,
		Name:        o.Name,
		Lang:        langString,
		Version:     Version,
		Protocol:    1,
		Echo:        false,
	}
}

func (nc *Conn) sendConnect() error {
	b, err := encodeConnect(nc.connectInfo())
	if err != nil {
		return err
	}
	return nc.writeAndFlush(b)
}

// writeAndFlush writes b to the socket sink under writeMu and kicks the
// flusher, failing with KindSendFailure if the sink is broken.
func (nc *Conn) writeAndFlush(b []byte) error {
	nc.writeMu.Lock()
	defer nc.writeMu.Unlock()
	if Status(atomic.LoadInt32(&nc.status)) == Shutdown {
		return ErrConnectionClosed
	}
	if nc.bw == nil {
		return newError(KindSendFailure, errors.New("nats: no active connection"))
	}
	if _, err := nc.bw.Write(b); err != nil {
		return newError(KindSendFailure, errors.Wrap(err, "write"))
	}
	nc.kickFlusherLocked()
	return nil
}

func (nc *Conn) kickFlusherLocked() {
	select {
	case nc.fch <- struct{}{}:
	default:
	}
}

// flusher coalesces writes to the socket; exits once its connection
// generation is fenced out by a reconnect or the connection shuts down.
func (nc *Conn) flusher(version uint64) {
	for {
		_, ok := <-nc.fch
		if !ok {
			return
		}
		if atomic.LoadUint64(&nc.version) != version {
			return
		}
		if Status(atomic.LoadInt32(&nc.status)) == Shutdown {
			return
		}
		nc.writeMu.Lock()
		if nc.bw != nil && atomic.LoadUint64(&nc.version) == version {
			nc.bw.Flush()
		}
		nc.writeMu.Unlock()
	}
}

// readLoop demultiplexes inbound frames for one connection generation.
// A reader whose version no longer matches the engine's current version
// exits without touching shared state (§4.D "Inbound router").
func (nc *Conn) readLoop(version uint64) {
	for {
		if atomic.LoadUint64(&nc.version) != version {
			return
		}
		if Status(atomic.LoadInt32(&nc.status)) == Shutdown {
			return
		}

		cl, err := readControlLine(nc.br)
		if err != nil {
			nc.handleReadError(version, err)
			return
		}

		op, err := decodeOp(cl)
		if err != nil {
			nc.handleReadError(version, err)
			return
		}

		if op.Kind == OpMsg {
			if _, err := io.ReadFull(nc.br, op.Payload); err != nil {
				nc.handleReadError(version, err)
				return
			}
		}

		atomic.StoreInt64(&nc.lastActivity, time.Now().UnixNano())
		nc.route(op)
	}
}

// route dispatches one decoded op (§4.D "Inbound router" rules).
func (nc *Conn) route(op Op) {
	switch op.Kind {
	case OpPing:
		nc.writeAndFlush(encodePong())
	case OpInfo:
		nc.infoMu.Lock()
		nc.info = op.Info
		nc.infoMu.Unlock()
	case OpMsg:
		nc.subsMu.Lock()
		sub := nc.subs[op.Sid]
		nc.subsMu.Unlock()
		if sub == nil {
			return // unknown sid: dropped per §4.D
		}
		sub.deliver(nc, &Msg{Subject: op.Subject, Reply: op.ReplyTo, Data: op.Payload, Sub: sub})
	case OpOK:
		// nothing to do; verbose-mode acknowledgement.
	case OpErr:
		nc.handleServerErr(op.ErrText)
	case OpPong:
		nc.writeMu.Lock()
		var ch chan error
		if len(nc.pongs) > 0 {
			ch = nc.pongs[0]
			nc.pongs = nc.pongs[1:]
		}
		nc.writeMu.Unlock()
		if ch != nil {
			ch <- nil
		}
	case OpClose:
		// Server-initiated CLOSE: invoke the same shutdown path Close()
		// uses, from a separate goroutine since stop() closes nc.conn and
		// would otherwise deadlock the reader unwinding out of route().
		go nc.stop()
	}
}

func (nc *Conn) handleServerErr(text string) {
	err := newError(KindInternalServer, errors.Errorf("nats: %s", text))
	nc.transitionDisconnected(err)
}

// handleReadError treats a decode or socket failure as connection-fatal
// but process-survivable: it flips to Disconnected and fires the
// disconnect handlers. It never propagates to unrelated callers; the
// next failing Publish/Subscribe/Request surfaces the problem instead
// (§7 propagation policy).
func (nc *Conn) handleReadError(version uint64, err error) {
	if atomic.LoadUint64(&nc.version) != version {
		return
	}
	if Status(atomic.LoadInt32(&nc.status)) == Shutdown {
		return
	}
	nc.transitionDisconnected(err)
}

// transitionDisconnected is called from both the reader and the
// heartbeat monitor whenever either detects a dead connection; only the
// caller that actually flips the status fires the handlers, so a
// simultaneous failure on both goroutines still fires each handler
// exactly once (§8 testable property 7).
func (nc *Conn) transitionDisconnected(err error) {
	old := atomic.SwapInt32(&nc.status, int32(Disconnected))
	if Status(old) == Disconnected || Status(old) == Shutdown {
		return
	}
	nc.fireDisconnectHandlers()
	_ = err // surfaces via the next failing call, not here (§7)
}

// processSlowConsumer fires the async error handler for a subscription
// whose delivery sink could not keep up.
func (nc *Conn) processSlowConsumer(s *Subscription) {
	if nc.opts.AsyncErrorCB != nil {
		go nc.opts.AsyncErrorCB(nc, s, ErrSlowConsumer)
	}
}

// monitorHeartbeat is the ping/pong liveness loop (§4.D "Heartbeat
// monitor"). Exactly one runs per connected Conn: a monitor exits once a
// reconnect has moved the version past the one it started under.
func (nc *Conn) monitorHeartbeat() {
	version := atomic.LoadUint64(&nc.version)
	interval := nc.opts.PingInterval
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	maxOut := nc.opts.MaxPingsOut
	if maxOut <= 0 {
		maxOut = DefaultMaxPingOut
	}

	for {
		time.Sleep(interval / 2)
		if Status(atomic.LoadInt32(&nc.status)) == Shutdown || atomic.LoadUint64(&nc.version) != version {
			return
		}

		if err := nc.writeAndFlush(encodePing()); err != nil {
			nc.transitionDisconnected(err)
			return
		}

		time.Sleep(interval / 2)
		if atomic.LoadUint64(&nc.version) != version {
			return
		}

		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&nc.lastActivity)
		elapsed := now - last
		if elapsed < 0 {
			// guard against clock regression (§9)
			elapsed = 0
		}
		if time.Duration(elapsed) > interval*time.Duration(maxOut) {
			nc.transitionDisconnected(newError(KindGeneric, errors.New("nats: stale connection, missed heartbeats")))
			return
		}
	}
}

// fireDisconnectHandlers invokes every registered handler in
// registration order, recovering individual panics so one bad handler
// can't silence the rest (§9 "Dynamic dispatch over disconnect handlers").
func (nc *Conn) fireDisconnectHandlers() {
	nc.handlersMu.Lock()
	handlers := make([]ConnHandler, len(nc.disconnectHandlers))
	copy(handlers, nc.disconnectHandlers)
	nc.handlersMu.Unlock()

	if nc.opts.DisconnectedCB != nil {
		handlers = append([]ConnHandler{nc.opts.DisconnectedCB}, handlers...)
	}

	for _, h := range handlers {
		func(h ConnHandler) {
			defer func() { recover() }()
			h(nc)
		}(h)
	}
}

// AddDisconnectHandler appends a handler invoked on every disconnect
// notification, in registration order (§4.F).
func (nc *Conn) AddDisconnectHandler(h ConnHandler) {
	nc.handlersMu.Lock()
	defer nc.handlersMu.Unlock()
	nc.disconnectHandlers = append(nc.disconnectHandlers, h)
}

// Reconnect attempts to re-establish the connection. Only eligible from
// Disconnected; a duplicate concurrent call is a no-op (§3 transitions).
func (nc *Conn) Reconnect() error {
	if !nc.opts.AllowReconnect {
		return newError(KindCannotReconnect, errors.New("nats: reconnection disabled by options"))
	}
	if !atomic.CompareAndSwapInt32(&nc.status, int32(Disconnected), int32(Reconnecting)) {
		return nil
	}

	nc.selfMu.Lock()
	self := nc.selfRef
	nc.selfMu.Unlock()
	if self == nil {
		atomic.StoreInt32(&nc.status, int32(Disconnected))
		return newError(KindCannotReconnect, errors.New("nats: no self-reference available"))
	}

	attempts := nc.opts.MaxReconnect
	if attempts <= 0 {
		attempts = DefaultMaxReconnect
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = nc.doReconnect(); err == nil {
			break
		}
		wait := nc.opts.ReconnectWait
		if wait <= 0 {
			wait = DefaultReconnectWait
		}
		time.Sleep(wait)
	}
	if err != nil {
		atomic.StoreInt32(&nc.status, int32(Disconnected))
		return newError(KindCannotReconnect, errors.Wrap(err, "exhausted reconnect attempts"))
	}

	atomic.StoreInt32(&nc.status, int32(Connected))
	if nc.opts.ReconnectedCB != nil {
		nc.opts.ReconnectedCB(nc)
	}
	return nil
}

func (nc *Conn) doReconnect() error {
	tcp, err := dial(nc.opts)
	if err != nil {
		return err
	}

	// Bump the version before starting the new reader so the freshly
	// incremented value is what fences out the old one — resolving the
	// §9 open question in favor of "use the freshly bumped version",
	// never restarting at 1.
	newVersion := atomic.AddUint64(&nc.version, 1)

	if err := nc.start(tcp, newVersion); err != nil {
		return err
	}

	if nc.opts.SubscribeOnReconnect {
		nc.subsMu.Lock()
		snapshot := make([]*Subscription, 0, len(nc.subs))
		for _, s := range nc.subs {
			snapshot = append(snapshot, s)
		}
		nc.subsMu.Unlock()

		for _, s := range snapshot {
			s.mu.Lock()
			subj, q, sid := s.Subject, s.Queue, s.sid
			s.mu.Unlock()
			nc.writeAndFlush(encodeSub(subj, q, sid))
		}
	}

	go nc.monitorHeartbeat()
	return nil
}

// Publish sends data on subject, with no reply-to set.
func (nc *Conn) Publish(subject string, data []byte) error {
	return nc.publish(subject, "", data)
}

// PublishMsg publishes m.Subject/m.Reply/m.Data.
func (nc *Conn) PublishMsg(m *Msg) error {
	return nc.publish(m.Subject, m.Reply, m.Data)
}

// PublishRequest publishes data on subject expecting a response on reply.
func (nc *Conn) PublishRequest(subject, reply string, data []byte) error {
	return nc.publish(subject, reply, data)
}

func (nc *Conn) publish(subject, reply string, data []byte) error {
	if Status(atomic.LoadInt32(&nc.status)) == Shutdown {
		return ErrConnectionClosed
	}
	return nc.writeAndFlush(encodePub(subject, reply, data))
}

// NewInbox returns a NUID-based private reply subject.
func (nc *Conn) NewInbox() string {
	return "_INBOX." + nc.ids.Next()
}

// subscribe is the shared implementation behind Subscribe/QueueSubscribe
// and their synchronous variants.
func (nc *Conn) subscribe(subject, queue string, cb MsgHandler) (*Subscription, error) {
	if Status(atomic.LoadInt32(&nc.status)) == Shutdown {
		return nil, ErrConnectionClosed
	}

	sid := nc.ids.Next()
	sub := &Subscription{
		sid:     sid,
		Subject: subject,
		Queue:   queue,
		conn:    nc,
		mcb:     cb,
		mch:     make(chan *Msg, maxChanLen),
	}

	nc.subsMu.Lock()
	nc.subs[sid] = sub
	nc.subsMu.Unlock()

	if cb != nil {
		go nc.deliverMsgs(sub)
	}

	if err := nc.writeAndFlush(encodeSub(subject, queue, sid)); err != nil {
		return nil, err
	}
	return sub, nil
}

// deliverMsgs runs the async callback loop for one subscription until
// its delivery channel is closed (the close sentinel, §4.E).
func (nc *Conn) deliverMsgs(sub *Subscription) {
	for m := range sub.mch {
		if sub.mcb == nil {
			continue
		}
		atomic.AddUint64(&sub.delivered, 1)
		sub.mcb(m)
	}
}

// Subscribe expresses interest in subject. With a non-nil cb this is an
// asynchronous subscription; with nil, use Subscription.NextMsg.
func (nc *Conn) Subscribe(subject string, cb MsgHandler) (*Subscription, error) {
	return nc.subscribe(subject, "", cb)
}

// SubscribeSync is Subscribe(subject, nil).
func (nc *Conn) SubscribeSync(subject string) (*Subscription, error) {
	return nc.subscribe(subject, "", nil)
}

// QueueSubscribe creates an asynchronous queue subscriber.
func (nc *Conn) QueueSubscribe(subject, queue string, cb MsgHandler) (*Subscription, error) {
	return nc.subscribe(subject, queue, cb)
}

// QueueSubscribeSync creates a synchronous queue subscriber.
func (nc *Conn) QueueSubscribeSync(subject, queue string) (*Subscription, error) {
	return nc.subscribe(subject, queue, nil)
}

// unsubscribe removes sid from the registry (unless max > 0, an
// auto-unsubscribe-after-N which the server tracks) and sends UNSUB.
// Idempotent: an already-removed sid is a no-op success (§8 property 3).
func (nc *Conn) unsubscribe(sub *Subscription, max int) error {
	sub.mu.Lock()
	sid := sub.sid
	sub.mu.Unlock()

	nc.subsMu.Lock()
	_, present := nc.subs[sid]
	if present && max <= 0 {
		delete(nc.subs, sid)
	}
	nc.subsMu.Unlock()

	if !present {
		return nil
	}

	if max <= 0 {
		sub.closeSink()
	}

	if Status(atomic.LoadInt32(&nc.status)) == Shutdown {
		return nil
	}
	return nc.writeAndFlush(encodeUnsub(sid, max))
}

// Request publishes data on subject and waits up to timeout for the
// first reply, per §9's added explicit timeout. It fails with
// ErrRequestStreamClosed if the reply subscription's sequence ends
// without ever delivering a message.
func (nc *Conn) Request(subject string, data []byte, timeout time.Duration) (*Msg, error) {
	inbox := nc.NewInbox()
	sub, err := nc.SubscribeSync(inbox)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := nc.PublishRequest(subject, inbox, data); err != nil {
		return nil, err
	}

	msg, err := sub.NextMsg(timeout)
	if err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			return nil, newError(KindRequestStreamClosed, ErrRequestStreamClosed)
		}
		return nil, err
	}
	return msg, nil
}

// FlushTimeout performs a round trip (PING/PONG) to the server.
func (nc *Conn) FlushTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return errors.New("nats: bad timeout value")
	}
	ch := make(chan error, 1)

	nc.writeMu.Lock()
	if nc.bw == nil {
		nc.writeMu.Unlock()
		return ErrConnectionClosed
	}
	nc.pongs = append(nc.pongs, ch)
	nc.bw.Write(encodePing())
	nc.bw.Flush()
	nc.writeMu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case err := <-ch:
		return err
	case <-t.C:
		return ErrTimeout
	}
}

// Flush is FlushTimeout with a long default timeout.
func (nc *Conn) Flush() error {
	return nc.FlushTimeout(60 * time.Second)
}

// NumSubscriptions returns the number of subscriptions currently
// registered.
func (nc *Conn) NumSubscriptions() int {
	nc.subsMu.Lock()
	defer nc.subsMu.Unlock()
	return len(nc.subs)
}

// LastError exists for API familiarity; this implementation favors
// returning errors directly from calls (§7) so it always reports nil.
func (nc *Conn) LastError() error { return nil }

// stop is the Shutdown path shared by Close. For each open subscription
// it sends the close sentinel and an UNSUB, then clears the registry and
// drops the self back-reference (§4.D "stop()").
func (nc *Conn) stop() {
	if !atomic.CompareAndSwapInt32(&nc.status, int32(Connected), int32(Shutdown)) {
		// Allow stopping from any other non-terminal state too; Shutdown
		// is idempotent and never fails (§7).
		if Status(atomic.LoadInt32(&nc.status)) == Shutdown {
			return
		}
		atomic.StoreInt32(&nc.status, int32(Shutdown))
	}

	nc.subsMu.Lock()
	subs := make([]*Subscription, 0, len(nc.subs))
	for sid, s := range nc.subs {
		subs = append(subs, s)
		delete(nc.subs, sid)
	}
	nc.subsMu.Unlock()

	for _, s := range subs {
		s.closeSink()
	}

	nc.writeMu.Lock()
	for _, ch := range nc.pongs {
		if ch != nil {
			ch <- ErrConnectionClosed
		}
	}
	nc.pongs = nil
	if nc.bw != nil {
		// Written directly: writeAndFlush refuses once status is Shutdown.
		for _, s := range subs {
			nc.bw.Write(encodeUnsub(s.sid, 0))
		}
		nc.bw.Flush()
	}
	if nc.conn != nil {
		nc.conn.Close()
	}
	nc.writeMu.Unlock()

	nc.selfMu.Lock()
	nc.selfRef = nil
	nc.selfMu.Unlock()

	if nc.opts.ClosedCB != nil {
		nc.opts.ClosedCB(nc)
	}
}

// Close shuts the connection down. Idempotent and never fails (§7).
func (nc *Conn) Close() {
	nc.stop()
}

// IsClosed reports whether the connection has reached Shutdown.
func (nc *Conn) IsClosed() bool {
	return Status(atomic.LoadInt32(&nc.status)) == Shutdown
}

// Status returns the connection's current state.
func (nc *Conn) Status() Status {
	return Status(atomic.LoadInt32(&nc.status))
}
