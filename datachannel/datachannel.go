// Package datachannel declares the transport contract the lockstep core
// consumes: a connected, reliable, ordered, message-framed
// bidirectional byte-message channel. The WebRTC-backed implementation
// lives in package transport; tests use the in-memory pipe here.
package datachannel

import (
	"context"
	"errors"
)

// MaxMessageSize is the largest single message the channel guarantees to
// deliver.
const MaxMessageSize = 256 * 1024

var ErrClosed = errors.New("datachannel: closed")

// DataChannel is a connected bidirectional reliable ordered message
// channel. Delivery is ordered and message-framed; Receive returns
// (nil, nil) when the channel has closed cleanly.
type DataChannel interface {
	Send(ctx context.Context, msg []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Split() (Sender, Receiver)
	Close() error
}

// Sender is the send half of a split DataChannel, safe to hold behind a
// mutex and call from trap handlers via a non-blocking wrapper.
type Sender interface {
	Send(ctx context.Context, msg []byte) error
}

// Receiver is the receive half of a split DataChannel, owned exclusively by
// the match orchestrator's receive loop.
type Receiver interface {
	Receive(ctx context.Context) ([]byte, error)
}
