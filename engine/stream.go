package engine

import (
	"io"
	"sync"
)

// Stream is the streaming response surface: a channel of SSE frames fed by
// the resume replay, the session subscription and the background pipe. A
// nil frame is the terminator; pushing it closes the stream for the
// consumer, so producers never close the channel itself. Stream implements
// io.ReadCloser; Recv exposes whole frames.
type Stream struct {
	sessionID string
	frames    chan []byte
	done      chan struct{}

	mu  sync.Mutex
	err error

	closeOnce  sync.Once
	onClose    func()
	terminated bool

	leftover []byte
}

func newStream(sessionID string) *Stream {
	return &Stream{
		sessionID: sessionID,
		frames:    make(chan []byte, 64),
		done:      make(chan struct{}),
	}
}

// SessionID returns the session this stream belongs to; it is set before
// Request returns.
func (s *Stream) SessionID() string {
	return s.sessionID
}

// Recv returns the next SSE frame. It returns io.EOF after normal
// completion, or the terminal error after a failure. Receiving the
// terminator releases the session subscription.
func (s *Stream) Recv() ([]byte, error) {
	if s.terminated {
		return nil, s.terminalError()
	}
	select {
	case frame := <-s.frames:
		if frame == nil {
			s.terminated = true
			_ = s.Close()
			return nil, s.terminalError()
		}
		return frame, nil
	case <-s.done:
		s.terminated = true
		return nil, s.terminalError()
	}
}

func (s *Stream) terminalError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return io.EOF
}

// Read implements io.Reader over the frame sequence.
func (s *Stream) Read(p []byte) (int, error) {
	if len(s.leftover) == 0 {
		frame, err := s.Recv()
		if err != nil {
			return 0, err
		}
		s.leftover = frame
	}
	n := copy(p, s.leftover)
	s.leftover = s.leftover[n:]
	return n, nil
}

// Close terminates consumption: the background pipe is stopped and the
// session subscription released.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// push enqueues a frame; it reports false when the consumer is gone.
func (s *Stream) push(frame []byte) bool {
	select {
	case s.frames <- frame:
		return true
	case <-s.done:
		return false
	}
}

// finish closes the frame sequence normally by pushing the terminator.
func (s *Stream) finish() {
	s.push(nil)
}

// fail records err and pushes the terminator; the consumer observes err in
// place of io.EOF.
func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.push(nil)
}
