package audio

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"
)

// Pipe buffers assistant audio for playback. Reset drops everything not yet
// played, which is what a barge-in needs.
type Pipe struct {
	mu     sync.Mutex
	closed bool
	buf    *ringbuffer.RingBuffer
}

// NewPipe holds up to capacity of session-rate audio.
func NewPipe(capacity time.Duration) *Pipe {
	size := ChunkSize(SessionRate, capacity)
	return &Pipe{buf: ringbuffer.New(size).SetBlocking(true)}
}

func (p *Pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	return p.buf.Write(b)
}

// Read blocks until audio is buffered. A Read interrupted by Reset returns
// an error IsReset accepts; after Close it returns io.EOF.
func (p *Pipe) Read(b []byte) (int, error) {
	return p.buf.Read(b)
}

// Buffered is the number of bytes waiting to be played.
func (p *Pipe) Buffered() int {
	return p.buf.Length()
}

// Reset is a no-op once the pipe is closed; resetting the ring buffer would
// clear its close error and reopen it.
func (p *Pipe) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.buf.Reset()
}

// Close unblocks readers; playback loops stop on the returned error.
func (p *Pipe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.buf.CloseWithError(io.EOF)
}

// IsReset reports whether a Read error came from Reset rather than Close.
// Close ends the pipe with io.EOF, so any other error is a reset.
func IsReset(err error) bool {
	return err != nil && !errors.Is(err, io.EOF)
}
