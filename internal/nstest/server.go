// Package nstest embeds a real nats-server broker for integration-style
// tests, rather than mocking the wire protocol, following the common
// RunServerOnPort/RunDefaultServer helper pattern for NATS client tests.
package nstest

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
)

// DefaultPort is used by RunDefaultServer when callers don't care which
// port the broker binds to.
const DefaultPort = 14222

// RunServerOnPort starts a broker bound to port and returns it running.
// The caller must Shutdown() it.
func RunServerOnPort(port int) *server.Server {
	opts := natsserver.DefaultTestOptions
	opts.Port = port
	return natsserver.RunServer(&opts)
}

// RunDefaultServer starts a broker on DefaultPort.
func RunDefaultServer() *server.Server {
	return RunServerOnPort(DefaultPort)
}

// DefaultURL is the dial target for a broker started with
// RunDefaultServer.
var DefaultURL = []string{"127.0.0.1:14222"}

// AwaitServerUp gives a freshly started broker a moment to accept
// connections before the first dial attempt, using a short fixed delay
// rather than a retry loop.
func AwaitServerUp(t *testing.T) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
}
