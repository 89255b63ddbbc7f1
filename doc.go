// Copyright 2012 Apcera Inc. All rights reserved.

// Package nats is a Go client for the Core PubSub wire protocol: a
// single long-lived TCP connection, line-oriented control ops (CONNECT,
// PUB, SUB, UNSUB, MSG, PING/PONG, INFO, +OK/-ERR), reconnect with
// interest resubscription (Conn.Reconnect; a disconnect does not start it
// by itself), and a registry of subject subscriptions
// delivered either synchronously (Subscription.NextMsg) or through an
// async callback.
//
// The streaming overlay (durable, ordered, acknowledged delivery layered
// on top of this package's raw pub/sub) lives in the stan subpackage.
package nats
