package peer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/orderrt-go/transport"
)

type deniedMicrophone struct {
	closed atomic.Bool
}

func (m *deniedMicrophone) Track(context.Context) (webrtc.TrackLocal, error) {
	return nil, errors.New("permission denied")
}

func (m *deniedMicrophone) Close() error {
	m.closed.Store(true)
	return nil
}

func TestDialMediaDenied(t *testing.T) {
	mic := &deniedMicrophone{}
	d := New(WithMicrophone(mic))

	tr, err := d.Dial(context.Background(), transport.Credential{Key: "k"}, transport.Handlers{})
	require.Error(t, err)
	require.Equal(t, transport.StageMedia, transport.StageOf(err))
	require.NotNil(t, tr)
	require.False(t, tr.Ready())
	require.NoError(t, transport.Teardown(tr))
}

func TestDialAnswerRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer ek_bad", r.Header.Get("Authorization"))
		require.Equal(t, "application/sdp", r.Header.Get("Content-Type"))
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	mic := NewStaticMicrophone()
	d := New(WithCallsURL(srv.URL), WithMicrophone(mic))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tr, err := d.Dial(ctx, transport.Credential{Key: "ek_bad"}, transport.Handlers{})
	require.Error(t, err)
	require.Equal(t, transport.StageAnswer, transport.StageOf(err))
	require.ErrorContains(t, err, "invalid key")
	require.NoError(t, transport.Teardown(tr))
	require.ErrorIs(t, mic.WriteSample([]byte{0}, 20*time.Millisecond), ErrMicrophoneClosed)
}

// answerer plays the hosted endpoint: it answers the offer and greets the
// client over the event channel once it opens.
func answerer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offer, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = pc.Close() })

		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			dc.OnOpen(func() {
				_ = dc.SendText(`{"type":"session.created"}`)
			})
		})

		require.NoError(t, pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(offer)}))
		answer, err := pc.CreateAnswer(nil)
		require.NoError(t, err)
		gathered := webrtc.GatheringCompletePromise(pc)
		require.NoError(t, pc.SetLocalDescription(answer))
		<-gathered

		w.Header().Set("Content-Type", "application/sdp")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(pc.LocalDescription().SDP))
	}))
}

func TestDialLoopback(t *testing.T) {
	srv := answerer(t)
	defer srv.Close()

	opened := make(chan struct{}, 1)
	messages := make(chan string, 4)
	closed := make(chan struct{}, 1)

	d := New(WithCallsURL(srv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	tr, err := d.Dial(ctx, transport.Credential{Key: "ek_1"}, transport.Handlers{
		OnOpen:    func() { opened <- struct{}{} },
		OnMessage: func(data []byte) { messages <- string(data) },
		OnClose:   func() { closed <- struct{}{} },
	})
	require.NoError(t, err)

	select {
	case <-opened:
	case <-ctx.Done():
		t.Fatal("data channel never opened")
	}
	require.True(t, tr.Ready())

	select {
	case msg := <-messages:
		require.JSONEq(t, `{"type":"session.created"}`, msg)
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	require.NoError(t, tr.Send([]byte(`{"type":"response.create"}`)))
	require.NoError(t, transport.Teardown(tr))
	require.False(t, tr.Ready())
	require.ErrorIs(t, tr.Send([]byte(`{}`)), transport.ErrClosed)
}
