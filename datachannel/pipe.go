package datachannel

import (
	"context"
	"sync"
)

// pipeEnd is an in-memory DataChannel used by package tests to exercise
// negotiation, the round orchestrator, and the match orchestrator without a
// real network or WebRTC stack.
type pipeEnd struct {
	out       chan<- []byte
	in        <-chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// NewPipe returns two connected DataChannels: writes to one arrive as reads
// on the other.
func NewPipe(bufSize int) (DataChannel, DataChannel) {
	ab := make(chan []byte, bufSize)
	ba := make(chan []byte, bufSize)

	a := &pipeEnd{out: ab, in: ba, closed: make(chan struct{})}
	b := &pipeEnd{out: ba, in: ab, closed: make(chan struct{})}
	return a, b
}

func (p *pipeEnd) Send(ctx context.Context, msg []byte) error {
	if len(msg) > MaxMessageSize {
		return ErrClosed
	}

	cp := make([]byte, len(msg))
	copy(cp, msg)

	select {
	case p.out <- cp:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-p.in:
		if !ok {
			return nil, nil
		}
		return msg, nil
	case <-p.closed:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Split() (Sender, Receiver) {
	return p, p
}

func (p *pipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
