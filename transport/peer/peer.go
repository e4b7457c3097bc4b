// Package peer negotiates a realtime session over WebRTC: one local audio
// track, one remote audio track and a data channel carrying JSON events.
package peer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/codewandler/orderrt-go/transport"
)

const (
	DefaultCallsURL = "https://api.openai.com/v1/realtime/calls"

	// EventChannelLabel is the data channel the endpoint exchanges events on.
	EventChannelLabel = "oai-events"
)

type config struct {
	callsURL string
	http     *http.Client
	mic      Microphone
	onAudio  func(*webrtc.TrackRemote)
	webrtc   webrtc.Configuration
	logger   *slog.Logger
}

type Option func(*config)

func WithCallsURL(u string) Option {
	return func(c *config) { c.callsURL = u }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.http = client }
}

func WithMicrophone(m Microphone) Option {
	return func(c *config) { c.mic = m }
}

// WithRemoteAudio hands the assistant's audio track to f. Without it the
// track is read and discarded.
func WithRemoteAudio(f func(*webrtc.TrackRemote)) Option {
	return func(c *config) { c.onAudio = f }
}

func WithConfiguration(cfg webrtc.Configuration) Option {
	return func(c *config) { c.webrtc = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

type Dialer struct {
	config config
}

func New(opts ...Option) *Dialer {
	c := config{
		callsURL: DefaultCallsURL,
		http:     http.DefaultClient,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.mic == nil {
		c.mic = NewStaticMicrophone()
	}
	return &Dialer{config: c}
}

func (d *Dialer) Dial(ctx context.Context, cred transport.Credential, h transport.Handlers) (transport.Transport, error) {
	c := &conn{logger: d.config.logger}

	track, err := d.config.mic.Track(ctx)
	if err != nil {
		return c, transport.Fail(transport.StageMedia, err)
	}
	c.mic = d.config.mic

	pc, err := webrtc.NewPeerConnection(d.config.webrtc)
	if err != nil {
		return c, transport.Fail(transport.StageTransport, err)
	}
	c.pc = pc

	if _, err := pc.AddTrack(track); err != nil {
		return c, transport.Fail(transport.StageMedia, err)
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		d.config.logger.Debug("remote audio attached", slog.String("codec", remote.Codec().MimeType))
		h.RemoteAudio()
		if d.config.onAudio != nil {
			go d.config.onAudio(remote)
			return
		}
		go discard(remote)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		d.config.logger.Debug("peer connection state", slog.String("state", state.String()))
	})

	dc, err := pc.CreateDataChannel(EventChannelLabel, nil)
	if err != nil {
		return c, transport.Fail(transport.StageTransport, err)
	}
	c.dc = dc
	dc.OnOpen(h.Open)
	dc.OnClose(h.Close)
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			h.Message(msg.Data)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return c, transport.Fail(transport.StageOffer, err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return c, transport.Fail(transport.StageOffer, err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return c, transport.Fail(transport.StageOffer, ctx.Err())
	}

	answer, err := d.exchange(ctx, cred.Key, pc.LocalDescription().SDP)
	if err != nil {
		return c, transport.Fail(transport.StageAnswer, err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return c, transport.Fail(transport.StageAnswer, err)
	}

	return c, nil
}

// exchange posts the offer and returns the answer SDP.
func (d *Dialer) exchange(ctx context.Context, key, offer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.callsURL, strings.NewReader(offer))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", key))
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := d.config.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

func discard(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

type conn struct {
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	mic    Microphone
	logger *slog.Logger

	channelOnce sync.Once
	peerOnce    sync.Once
	mediaOnce   sync.Once
}

func (c *conn) Ready() bool {
	return c.dc != nil && c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (c *conn) Send(data []byte) error {
	if !c.Ready() {
		return transport.ErrClosed
	}
	if err := c.dc.SendText(string(data)); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrClosed, err)
	}
	return nil
}

func (c *conn) CloseChannel() (err error) {
	c.channelOnce.Do(func() {
		if c.dc != nil {
			err = c.dc.Close()
		}
	})
	return err
}

func (c *conn) ClosePeer() (err error) {
	c.peerOnce.Do(func() {
		if c.pc != nil {
			err = c.pc.Close()
		}
	})
	return err
}

func (c *conn) ReleaseMedia() (err error) {
	c.mediaOnce.Do(func() {
		if c.mic != nil {
			err = c.mic.Close()
		}
	})
	return err
}
