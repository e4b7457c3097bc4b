// Package audio moves 16-bit little-endian mono PCM between the host
// application and a realtime session.
package audio

import (
	"fmt"
	"io"
	"time"
)

const (
	// SessionRate is the PCM16 sample rate the realtime endpoint speaks.
	SessionRate    = 24_000
	bytesPerSample = 2
)

// ChunkSize is the byte length of d worth of mono PCM16 at sampleRate.
func ChunkSize(sampleRate int, d time.Duration) int {
	frames := int(float64(sampleRate) * d.Seconds())
	return frames * bytesPerSample
}

// ChunkReader regroups an arbitrary PCM stream into fixed size chunks. The
// last chunk before EOF may be short.
type ChunkReader struct {
	r         io.Reader
	buf       []byte
	chunkSize int
	eof       bool
}

func NewChunkReader(r io.Reader, sampleRate int, latency time.Duration) *ChunkReader {
	size := ChunkSize(sampleRate, latency)
	return &ChunkReader{
		r:         r,
		chunkSize: size,
		buf:       make([]byte, 0, size*2),
	}
}

func (c *ChunkReader) ChunkSize() int {
	return c.chunkSize
}

func (c *ChunkReader) Read(p []byte) (int, error) {
	if len(p) < c.chunkSize {
		return 0, fmt.Errorf("buffer passed to Read must be at least %d bytes", c.chunkSize)
	}

	tmp := make([]byte, c.chunkSize)
	for len(c.buf) < c.chunkSize && !c.eof {
		n, err := c.r.Read(tmp)
		if n > 0 {
			c.buf = append(c.buf, tmp[:n]...)
		}
		if err == io.EOF {
			c.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if len(c.buf) == 0 && c.eof {
		return 0, io.EOF
	}

	n := min(c.chunkSize, len(c.buf))
	copy(p, c.buf[:n])
	c.buf = c.buf[n:]

	return n, nil
}
