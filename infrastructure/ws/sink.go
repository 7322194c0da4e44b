package ws

import (
	"chat-relay/domain/event"
	"context"
	"fmt"
	"sync"
)

var (
	errSinkFull   = fmt.Errorf("connection send buffer full")
	errSinkClosed = fmt.Errorf("connection closed")
)

// Sink adapts one connection's buffered send channel to contract.EventSink.
// Consume is called by the dispatcher's fan-out; the write pump drains the
// channel onto the wire. The send channel is never closed: a fan-out may hold
// a snapshot of this sink after the connection is torn down, so Close only
// signals done and Consume refuses further events.
type Sink struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewSink(bufferSize int) *Sink {
	return &Sink{
		send: make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
}

// Consume frames the event and queues it. A full buffer means the client is
// not keeping up: the event is dropped with an error rather than stalling
// the dispatcher behind one slow connection.
func (s *Sink) Consume(ctx context.Context, e event.Event) error {
	frame, err := EncodeEvent(e)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return errSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case s.send <- frame:
		return nil
	default:
		return errSinkFull
	}
}

// Close releases the write pump and rejects subsequent Consume calls.
func (s *Sink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed when the sink is torn down.
func (s *Sink) Done() <-chan struct{} { return s.done }

// Outbound exposes the framed event stream to the write pump.
func (s *Sink) Outbound() <-chan []byte { return s.send }
