// Package stan implements the streaming overlay: durable, ordered,
// acknowledged delivery layered on top of a Core PubSub connection via a
// discovery handshake, a heartbeat responder, and binary protobuf-shaped
// message envelopes (see the pb subpackage).
package stan
