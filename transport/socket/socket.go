// Package socket negotiates a realtime session over a WebSocket and streams
// PCM16 audio as base64 events on the same socket.
package socket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/codewandler/orderrt-go/events"
	"github.com/codewandler/orderrt-go/internal/audio"
	"github.com/codewandler/orderrt-go/internal/websocket"
	"github.com/codewandler/orderrt-go/transport"
)

const DefaultURL = "wss://api.openai.com/v1/realtime"

type config struct {
	url         string
	model       string
	mic         io.Reader
	micRate     int
	speaker     io.Writer
	speakerRate int
	latency     time.Duration
	logger      *slog.Logger
}

type Option func(*config)

func WithURL(u string) Option {
	return func(c *config) { c.url = u }
}

func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithMicrophone streams PCM16 mono read from r, sampled at rate.
func WithMicrophone(r io.Reader, rate int) Option {
	return func(c *config) {
		c.mic = r
		c.micRate = rate
	}
}

// WithSpeaker plays assistant audio into w as PCM16 mono at rate.
func WithSpeaker(w io.Writer, rate int) Option {
	return func(c *config) {
		c.speaker = w
		c.speakerRate = rate
	}
}

// WithLatency sets the microphone chunk duration.
func WithLatency(d time.Duration) Option {
	return func(c *config) { c.latency = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

type Dialer struct {
	config config
}

func New(opts ...Option) *Dialer {
	c := config{
		url:         DefaultURL,
		model:       "gpt-4o-realtime-preview-2024-10-01",
		micRate:     audio.SessionRate,
		speakerRate: audio.SessionRate,
		latency:     200 * time.Millisecond,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return &Dialer{config: c}
}

func (d *Dialer) endpoint() (string, error) {
	u, err := url.Parse(d.config.url)
	if err != nil {
		return "", err
	}
	if d.config.model != "" {
		q := u.Query()
		q.Set("model", d.config.model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (d *Dialer) Dial(ctx context.Context, cred transport.Credential, h transport.Handlers) (transport.Transport, error) {
	endpoint, err := d.endpoint()
	if err != nil {
		return nil, transport.Fail(transport.StageTransport, err)
	}

	c := &conn{
		config: d.config,
		stop:   make(chan struct{}),
		logger: d.config.logger,
	}
	if d.config.speaker != nil {
		c.pipe = audio.NewPipe(60 * time.Second)
	}

	headers := http.Header{}
	headers.Add("Authorization", fmt.Sprintf("Bearer %s", cred.Key))
	headers.Add("OpenAI-Beta", "realtime=v1")

	ws, err := websocket.Connect(ctx, websocket.ClientConfig{
		URL:     endpoint,
		Headers: headers,
		Logger:  d.config.logger,
		OnText: func(data []byte) error {
			c.intercept(data)
			h.Message(data)
			return nil
		},
		OnClose: h.Close,
	})
	if err != nil {
		return c, transport.Fail(transport.StageAnswer, err)
	}
	c.ws = ws

	h.Open()

	if c.pipe != nil {
		go c.play()
		h.RemoteAudio()
	}
	if d.config.mic != nil {
		go c.record()
	}

	return c, nil
}

type conn struct {
	config   config
	ws       *websocket.Client
	pipe     *audio.Pipe
	stop     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// intercept feeds audio events to the playback pipe.
func (c *conn) intercept(data []byte) {
	if c.pipe == nil {
		return
	}

	evt, err := events.Decode(data)
	if err != nil {
		return
	}

	switch x := evt.(type) {
	case *events.ResponseAudioDeltaEvent:
		pcm, err := base64.StdEncoding.DecodeString(x.Delta)
		if err != nil {
			c.logger.Error("failed to decode audio delta", slog.Any("err", err))
			return
		}
		pcm, err = audio.Resample(pcm, audio.SessionRate, c.config.speakerRate)
		if err != nil {
			c.logger.Error("failed to resample audio delta", slog.Any("err", err))
			return
		}
		if _, err := c.pipe.Write(pcm); err != nil {
			c.logger.Error("failed to buffer audio delta", slog.Any("err", err))
		}
	case *events.SpeechStartedEvent:
		c.pipe.Reset()
	}
}

func (c *conn) play() {
	buf := make([]byte, audio.ChunkSize(c.config.speakerRate, 20*time.Millisecond))
	for {
		n, err := c.pipe.Read(buf)
		if err != nil {
			if audio.IsReset(err) {
				continue
			}
			return
		}
		if _, err := c.config.speaker.Write(buf[:n]); err != nil {
			c.logger.Error("failed to write to speaker", slog.Any("err", err))
			return
		}
	}
}

func (c *conn) record() {
	r := audio.NewChunkReader(c.config.mic, c.config.micRate, c.config.latency)
	buf := make([]byte, r.ChunkSize())

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		n, err := r.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Error("failed to read from microphone", slog.Any("err", err))
			}
			return
		}

		pcm, err := audio.Resample(buf[:n], c.config.micRate, audio.SessionRate)
		if err != nil {
			c.logger.Error("failed to resample microphone audio", slog.Any("err", err))
			return
		}

		data, err := json.Marshal(events.InputAudioBufferAppendEvent{
			BaseEvent: events.NewBaseEvent(events.TypeInputAudioBufferAppend),
			Audio:     base64.StdEncoding.EncodeToString(pcm),
		})
		if err != nil {
			c.logger.Error("failed to marshal audio append", slog.Any("err", err))
			return
		}
		if err := c.Send(data); err != nil {
			return
		}
	}
}

func (c *conn) Send(data []byte) error {
	if !c.Ready() {
		return transport.ErrClosed
	}
	if err := c.ws.WriteText(data); err != nil {
		return transport.ErrClosed
	}
	return nil
}

func (c *conn) Ready() bool {
	return c.ws != nil && !c.ws.Closed()
}

func (c *conn) CloseChannel() error {
	if c.ws == nil || c.ws.Closed() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.ws.Close(ctx)
}

// ClosePeer is a no-op: the socket is both the channel and the peer.
func (c *conn) ClosePeer() error {
	return nil
}

func (c *conn) ReleaseMedia() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		if c.pipe != nil {
			c.pipe.Close()
		}
		if closer, ok := c.config.mic.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}
