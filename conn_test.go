// Copyright 2012 Apcera Inc. All rights reserved.

package nats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ratsio-go/ratsio/idgen"
	"github.com/ratsio-go/ratsio/internal/nstest"
)

// awaitStatus polls until nc reaches want or the deadline passes.
func awaitStatus(t *testing.T, nc *Conn, want Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if nc.Status() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status never reached %v, stuck at %v", want, nc.Status())
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	s := nstest.RunDefaultServer()
	defer s.Shutdown()
	nstest.AwaitServerUp(t)

	nc, err := Connect(nstest.DefaultURL...)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	done := make(chan *Msg, 1)
	if _, err := nc.Subscribe("greet", func(m *Msg) { done <- m }); err != nil {
		t.Fatal(err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	if err := nc.Publish("greet", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-done:
		if string(m.Data) != "hello" {
			t.Fatalf("got %q", m.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestQueueSubscribeFansOutOnceEach(t *testing.T) {
	s := nstest.RunDefaultServer()
	defer s.Shutdown()
	nstest.AwaitServerUp(t)

	nc, err := Connect(nstest.DefaultURL...)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	var received int32
	var wg sync.WaitGroup
	wg.Add(1)
	cb := func(*Msg) {
		if atomic.AddInt32(&received, 1) == 1 {
			wg.Done()
		}
	}

	if _, err := nc.QueueSubscribe("work", "workers", cb); err != nil {
		t.Fatal(err)
	}
	if _, err := nc.QueueSubscribe("work", "workers", cb); err != nil {
		t.Fatal(err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	if err := nc.Publish("work", []byte("job")); err != nil {
		t.Fatal(err)
	}

	wg.Wait()
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&received); got != 1 {
		t.Fatalf("expected exactly one delivery across the queue group, got %d", got)
	}
}

func TestRequestReply(t *testing.T) {
	s := nstest.RunDefaultServer()
	defer s.Shutdown()
	nstest.AwaitServerUp(t)

	nc, err := Connect(nstest.DefaultURL...)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	if _, err := nc.Subscribe("svc.echo", func(m *Msg) {
		nc.Publish(m.Reply, append([]byte("echo: "), m.Data...))
	}); err != nil {
		t.Fatal(err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	resp, err := nc.Request("svc.echo", []byte("ping"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.Data) != "echo: ping" {
		t.Fatalf("got %q", resp.Data)
	}
}

func TestRequestTimesOutWithoutAResponder(t *testing.T) {
	s := nstest.RunDefaultServer()
	defer s.Shutdown()
	nstest.AwaitServerUp(t)

	nc, err := Connect(nstest.DefaultURL...)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	if _, err := nc.Request("nobody.listening", nil, 100*time.Millisecond); err != ErrTimeout {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	s := nstest.RunDefaultServer()
	defer s.Shutdown()
	nstest.AwaitServerUp(t)

	nc, err := Connect(nstest.DefaultURL...)
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("foo")
	if err != nil {
		t.Fatal(err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatal(err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("second Unsubscribe must be a no-op, got %v", err)
	}
}

func TestCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	s := nstest.RunDefaultServer()
	defer s.Shutdown()
	nstest.AwaitServerUp(t)

	nc, err := Connect(nstest.DefaultURL...)
	if err != nil {
		t.Fatal(err)
	}

	sub, err := nc.SubscribeSync("foo")
	if err != nil {
		t.Fatal(err)
	}

	nc.Close()
	nc.Close() // must not panic or block

	if !nc.IsClosed() {
		t.Fatal("expected IsClosed after Close")
	}
	if _, err := sub.NextMsg(50 * time.Millisecond); err == nil {
		t.Fatal("expected NextMsg to fail once the connection is closed")
	}
}

func TestConnectFailsSynchronouslyWithNoServers(t *testing.T) {
	o := DefaultOptions()
	if _, err := o.Connect(); err == nil {
		t.Fatal("expected a configuration error with an empty server list")
	}
}

func TestConnectSurfacesNoRouteWhenEveryServerRefuses(t *testing.T) {
	o := DefaultOptions()
	o.Servers = []string{"127.0.0.1:1"}
	o.Timeout = 200 * time.Millisecond
	if _, err := o.Connect(); err == nil {
		t.Fatal("expected a no-route error when no server accepts the connection")
	}
}

func TestReconnectPreservesSubscriptions(t *testing.T) {
	port := nstest.DefaultPort + 1
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	s := nstest.RunServerOnPort(port)
	nstest.AwaitServerUp(t)

	o := DefaultOptions()
	o.Servers = []string{addr}
	nc, err := o.Connect()
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	done := make(chan *Msg, 1)
	if _, err := nc.Subscribe("foo", func(m *Msg) { done <- m }); err != nil {
		t.Fatal(err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}

	s.Shutdown()
	awaitStatus(t, nc, Disconnected, 2*time.Second)

	s2 := nstest.RunServerOnPort(port)
	defer s2.Shutdown()
	nstest.AwaitServerUp(t)

	if err := nc.Reconnect(); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if got := nc.Status(); got != Connected {
		t.Fatalf("got status %v after Reconnect, want Connected", got)
	}

	if err := nc.Publish("foo", []byte("hello")); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-done:
		if string(m.Data) != "hello" {
			t.Fatalf("got %q", m.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not re-registered on the new connection after Reconnect")
	}
}

func TestHeartbeatTimeoutFiresDisconnectHandlersExactlyOnce(t *testing.T) {
	port := nstest.DefaultPort + 2
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	s := nstest.RunServerOnPort(port)
	nstest.AwaitServerUp(t)

	var cbCount, handler1Count, handler2Count int32

	o := DefaultOptions()
	o.Servers = []string{addr}
	o.PingInterval = 50 * time.Millisecond
	o.MaxPingsOut = 2
	o.DisconnectedCB = func(*Conn) { atomic.AddInt32(&cbCount, 1) }

	nc, err := o.Connect()
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	nc.AddDisconnectHandler(func(*Conn) { atomic.AddInt32(&handler1Count, 1) })
	nc.AddDisconnectHandler(func(*Conn) { atomic.AddInt32(&handler2Count, 1) })

	// Suppress all inbound traffic by tearing down the broker; the
	// heartbeat monitor's elapsed-time check (and, racing it, the
	// reader's own read error) must settle on exactly one disconnect
	// notification per handler (§8 testable property 7).
	s.Shutdown()
	awaitStatus(t, nc, Disconnected, 2*time.Second)

	// Give any racing detector goroutine a moment to also observe the
	// failure, to make sure transitionDisconnected's guard actually
	// suppresses a second round of handler calls.
	time.Sleep(300 * time.Millisecond)

	if got := atomic.LoadInt32(&cbCount); got != 1 {
		t.Fatalf("DisconnectedCB fired %d times, want exactly 1", got)
	}
	if got := atomic.LoadInt32(&handler1Count); got != 1 {
		t.Fatalf("first handler fired %d times, want exactly 1", got)
	}
	if got := atomic.LoadInt32(&handler2Count); got != 1 {
		t.Fatalf("second handler fired %d times, want exactly 1", got)
	}
}

func TestNewInboxIsUnique(t *testing.T) {
	nc := &Conn{ids: idgen.New()}
	a, b := nc.NewInbox(), nc.NewInbox()
	if a == b {
		t.Fatalf("expected distinct inboxes, got %q twice", a)
	}
	if len(a) < len("_INBOX.") {
		t.Fatalf("unexpected inbox shape: %q", a)
	}
}
