package peer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Microphone is the local audio source offered to the endpoint.
type Microphone interface {
	Track(ctx context.Context) (webrtc.TrackLocal, error)
	Close() error
}

var ErrMicrophoneClosed = errors.New("microphone closed")

// StaticMicrophone is an Opus track fed by the host application through
// WriteSample. Capture and encoding are up to the caller. Close releases the
// track; the next Track call creates a fresh one.
type StaticMicrophone struct {
	mu    sync.Mutex
	track *webrtc.TrackLocalStaticSample
}

func NewStaticMicrophone() *StaticMicrophone {
	return &StaticMicrophone{}
}

func (m *StaticMicrophone) Track(context.Context) (webrtc.TrackLocal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.track == nil {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio",
			"orderrt",
		)
		if err != nil {
			return nil, err
		}
		m.track = track
	}
	return m.track, nil
}

// WriteSample sends one encoded Opus frame.
func (m *StaticMicrophone) WriteSample(data []byte, d time.Duration) error {
	m.mu.Lock()
	track := m.track
	m.mu.Unlock()

	if track == nil {
		return ErrMicrophoneClosed
	}
	return track.WriteSample(media.Sample{Data: data, Duration: d})
}

func (m *StaticMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track = nil
	return nil
}
