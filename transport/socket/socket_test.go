package socket

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/orderrt-go/transport"
)

type fakeRealtime struct {
	url      string
	auth     chan string
	model    chan string
	received chan map[string]any
}

func newFakeRealtime(t *testing.T, greeting []byte) *fakeRealtime {
	t.Helper()
	f := &fakeRealtime{
		auth:     make(chan string, 1),
		model:    make(chan string, 1),
		received: make(chan map[string]any, 16),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.auth <- r.Header.Get("Authorization")
		f.model <- r.URL.Query().Get("model")
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()
		if greeting != nil {
			_ = wsutil.WriteServerText(conn, greeting)
		}
		for {
			data, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				return
			}
			if op != ws.OpText {
				continue
			}
			var m map[string]any
			if json.Unmarshal(data, &m) == nil {
				f.received <- m
			}
		}
	}))
	t.Cleanup(srv.Close)
	f.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return f
}

type speaker struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *speaker) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *speaker) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

func TestDialStreamsAudioAndEvents(t *testing.T) {
	pcm := make([]byte, 960)
	delta, err := json.Marshal(map[string]any{
		"type":  "response.audio.delta",
		"delta": base64.StdEncoding.EncodeToString(pcm),
	})
	require.NoError(t, err)

	fake := newFakeRealtime(t, delta)
	spk := &speaker{}

	d := New(
		WithURL(fake.url),
		WithModel("test-model"),
		WithSpeaker(spk, 24_000),
		WithMicrophone(bytes.NewReader(make([]byte, 4800)), 24_000),
		WithLatency(100*time.Millisecond),
	)

	var (
		mu       sync.Mutex
		opened   bool
		audible  bool
		messages []string
	)
	h := transport.Handlers{
		OnOpen:        func() { mu.Lock(); opened = true; mu.Unlock() },
		OnRemoteAudio: func() { mu.Lock(); audible = true; mu.Unlock() },
		OnMessage: func(data []byte) {
			mu.Lock()
			messages = append(messages, string(data))
			mu.Unlock()
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := d.Dial(ctx, transport.Credential{SessionID: "s1", Key: "ek_1"}, h)
	require.NoError(t, err)
	require.Equal(t, "Bearer ek_1", <-fake.auth)
	require.Equal(t, "test-model", <-fake.model)
	require.True(t, tr.Ready())

	select {
	case m := <-fake.received:
		require.Equal(t, "input_audio_buffer.append", m["type"])
		require.NotEmpty(t, m["audio"])
	case <-ctx.Done():
		t.Fatal("no audio appended")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return opened && audible && len(messages) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return spk.Len() == len(pcm) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, tr.Send([]byte(`{"type":"response.create"}`)))
	select {
	case m := <-fake.received:
		require.Equal(t, "response.create", m["type"])
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}

	_ = transport.Teardown(tr)
	require.False(t, tr.Ready())
	require.ErrorIs(t, tr.Send([]byte(`{}`)), transport.ErrClosed)
	require.NoError(t, transport.Teardown(tr))
}

func TestDialFailure(t *testing.T) {
	d := New(WithURL("ws://127.0.0.1:1"))
	_, err := d.Dial(context.Background(), transport.Credential{Key: "k"}, transport.Handlers{})
	require.Error(t, err)
	require.Equal(t, transport.StageAnswer, transport.StageOf(err))
}
