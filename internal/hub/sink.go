package hub

import "sync"

// Sink is the transport side of a live session.
// Send must never block; it reports false when the payload was dropped.
type Sink interface {
	Send(payload []byte) bool
	Close()
}

// ChannelSink buffers payloads for a transport writer goroutine
type ChannelSink struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewChannelSink creates a sink with the given buffer size
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan []byte, buffer)}
}

// Send enqueues payload, dropping it when the buffer is full or the sink is closed
func (s *ChannelSink) Send(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- payload:
		return true
	default:
		return false
	}
}

// Close closes the outgoing channel. Safe to call more than once.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// C returns the channel drained by the writer
func (s *ChannelSink) C() <-chan []byte {
	return s.ch
}
