package orderrt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/orderrt-go/store"
	"github.com/codewandler/orderrt-go/transport"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	bridge  *Bridge
	store   *store.Store
	backend *fakeBackend
	dialer  *fakeDialer
	tr      *fakeTransport

	mu       sync.Mutex
	notices  []error
	statuses []Status
}

func newHarness(t *testing.T, opts ...ClientOption) *harness {
	t.Helper()

	s, w := store.New()
	h := &harness{
		store:   s,
		backend: &fakeBackend{},
		tr:      &fakeTransport{ready: true},
	}
	h.dialer = &fakeDialer{dial: func(context.Context, transport.Handlers) (transport.Transport, error) {
		return h.tr, nil
	}}

	opts = append([]ClientOption{
		WithNotice(func(err error) {
			h.mu.Lock()
			h.notices = append(h.notices, err)
			h.mu.Unlock()
		}),
		WithStatusListener(func(s Status) {
			h.mu.Lock()
			h.statuses = append(h.statuses, s)
			h.mu.Unlock()
		}),
	}, opts...)

	h.bridge = New(h.backend, h.dialer, w, opts...)
	t.Cleanup(h.bridge.Close)
	return h
}

func (h *harness) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, h.bridge.Connect(context.Background()))
	require.True(t, h.bridge.IsConnected())
}

func (h *harness) noticeCount() int {
	h.sync()
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.notices)
}

// sync waits for every task queued on the bridge loop so far and for the
// listener callbacks those tasks queued.
func (h *harness) sync() {
	h.bridge.Session()
	done := make(chan struct{})
	if h.bridge.notify.post(func() { close(done) }) {
		<-done
	}
}

func outputs(tr *fakeTransport) []map[string]any {
	var out []map[string]any
	for _, e := range tr.ofType("conversation.item.create") {
		out = append(out, e["item"].(map[string]any))
	}
	return out
}

func resultOf(t *testing.T, item map[string]any) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(item["output"].(string)), &m))
	return m
}

func TestConnectConfiguresSession(t *testing.T) {
	h := newHarness(t, WithVoice("alloy"))
	h.store.LoadCatalog([]store.Product{{ID: "p1", Name: "Classic", Price: 5}})

	h.connect(t)

	s, ok := h.bridge.Session()
	require.True(t, ok)
	assert.Equal(t, "sess-1", s.ID)
	assert.Equal(t, "ek_test", s.Credential)
	assert.Equal(t, TransportOpen, s.TransportState)
	assert.Equal(t, "sess-1", h.store.Snapshot().SessionID)
	assert.Equal(t, []transport.Credential{{SessionID: "sess-1", Key: "ek_test"}}, h.dialer.creds)

	updates := h.tr.ofType("session.update")
	require.Len(t, updates, 1)
	session := updates[0]["session"].(map[string]any)
	assert.Contains(t, session["instructions"], "sess-1")
	assert.Equal(t, "alloy", session["voice"])
	assert.Equal(t, []any{"text", "audio"}, session["modalities"])
	assert.Equal(t, "server_vad", session["turn_detection"].(map[string]any)["type"])
	assert.Equal(t, "whisper-1", session["input_audio_transcription"].(map[string]any)["model"])
}

func TestConnectReusesStoredSessionID(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.bridge.Disconnect()
	h.connect(t)

	assert.Equal(t, []string{"", "sess-1"}, h.backend.requested)
}

func TestConnectConfiguresWhenChannelOpensLater(t *testing.T) {
	h := newHarness(t)
	h.tr.ready = false

	h.connect(t)
	require.Empty(t, h.tr.ofType("session.update"))

	h.tr.mu.Lock()
	h.tr.ready = true
	h.tr.mu.Unlock()
	h.dialer.last().Open()
	h.dialer.last().Open()

	require.Eventually(t, func() bool { return len(h.tr.ofType("session.update")) == 1 }, waitFor, tick)
	h.sync()
	assert.Len(t, h.tr.ofType("session.update"), 1)
}

func TestConnectIsNoOpWhileConnected(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	require.NoError(t, h.bridge.Connect(context.Background()))
	assert.Equal(t, 1, h.dialer.count())
	assert.Len(t, h.tr.ofType("session.update"), 1)
}

func TestConnectCredentialFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.credErr = errors.New("status 500")

	err := h.bridge.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredential)

	assert.Zero(t, h.dialer.count())
	assert.False(t, h.bridge.IsConnected())
	assert.Equal(t, StateDisconnected, h.bridge.Status().State)
	assert.Equal(t, 1, h.noticeCount())
}

func TestConnectMediaFailureReleasesPartialTransport(t *testing.T) {
	h := newHarness(t)
	partial := &fakeTransport{}
	h.dialer.dial = func(context.Context, transport.Handlers) (transport.Transport, error) {
		return partial, transport.Fail(transport.StageMedia, errors.New("permission denied"))
	}

	err := h.bridge.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMediaAccess)

	var nerr *NegotiationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, transport.StageMedia, nerr.Stage)

	assert.Equal(t, []string{"channel", "peer", "media"}, partial.teardownSteps())
	assert.False(t, h.bridge.IsConnected())
	_, ok := h.bridge.Session()
	assert.False(t, ok)
	assert.Equal(t, 1, h.noticeCount())

	// a failed attempt can be retried
	h.dialer.dial = func(context.Context, transport.Handlers) (transport.Transport, error) { return h.tr, nil }
	h.connect(t)
	assert.Equal(t, 1, h.noticeCount())
}

func TestConnectAnswerFailureIsNegotiation(t *testing.T) {
	h := newHarness(t)
	h.dialer.dial = func(context.Context, transport.Handlers) (transport.Transport, error) {
		return &fakeTransport{}, transport.Fail(transport.StageAnswer, errors.New("status 401"))
	}

	err := h.bridge.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNegotiation)
	assert.NotErrorIs(t, err, ErrMediaAccess)
}

func TestDisconnectWhileConnecting(t *testing.T) {
	h := newHarness(t)
	entered := make(chan struct{})
	partial := &fakeTransport{}
	h.dialer.dial = func(ctx context.Context, _ transport.Handlers) (transport.Transport, error) {
		close(entered)
		<-ctx.Done()
		return partial, transport.Fail(transport.StageOffer, ctx.Err())
	}

	errc := make(chan error, 1)
	go func() { errc <- h.bridge.Connect(context.Background()) }()
	<-entered

	require.Equal(t, StateConnecting, h.bridge.Status().State)
	require.NoError(t, h.bridge.Connect(context.Background()))

	h.bridge.Disconnect()
	require.Error(t, <-errc)

	assert.Equal(t, 1, h.dialer.count())
	assert.Equal(t, StateDisconnected, h.bridge.Status().State)
	assert.Equal(t, []string{"channel", "peer", "media"}, partial.teardownSteps())
	assert.Zero(t, h.noticeCount())
}

func TestCloseWhileConnectingReleasesTransport(t *testing.T) {
	h := newHarness(t)
	entered := make(chan struct{})
	proceed := make(chan struct{})
	dialed := &fakeTransport{ready: true}
	h.dialer.dial = func(context.Context, transport.Handlers) (transport.Transport, error) {
		close(entered)
		<-proceed
		return dialed, nil
	}

	errc := make(chan error, 1)
	go func() { errc <- h.bridge.Connect(context.Background()) }()
	<-entered

	h.bridge.Close()
	close(proceed)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("connect did not return")
	}
	assert.False(t, h.bridge.IsConnected())
	assert.Equal(t, []string{"channel", "peer", "media"}, dialed.teardownSteps())
}

func TestNoticeListenerMayDisconnect(t *testing.T) {
	h := newHarness(t)
	done := make(chan struct{})
	h.bridge.config.onNotice = func(error) {
		h.bridge.Disconnect()
		close(done)
	}
	h.backend.credErr = errors.New("status 500")

	require.Error(t, h.bridge.Connect(context.Background()))
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("notice listener blocked")
	}

	h.backend.mu.Lock()
	h.backend.credErr = nil
	h.backend.mu.Unlock()
	h.connect(t)
}

func TestRemoteCloseWhileConnectingIsReported(t *testing.T) {
	h := newHarness(t)
	partial := &fakeTransport{}
	h.dialer.dial = func(ctx context.Context, hd transport.Handlers) (transport.Transport, error) {
		hd.Close()
		<-ctx.Done()
		return partial, transport.Fail(transport.StageAnswer, ctx.Err())
	}

	err := h.bridge.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelUnavailable)
	assert.ErrorIs(t, err, ErrNegotiation)

	assert.Equal(t, StateDisconnected, h.bridge.Status().State)
	assert.Equal(t, []string{"channel", "peer", "media"}, partial.teardownSteps())
	assert.Equal(t, 1, h.noticeCount())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.bridge.Disconnect()

	h.connect(t)
	h.bridge.Disconnect()
	h.bridge.Disconnect()

	assert.Equal(t, []string{"channel", "peer", "media"}, h.tr.teardownSteps())
	assert.False(t, h.bridge.IsConnected())
	assert.False(t, h.bridge.IsListening())
	_, ok := h.bridge.Session()
	assert.False(t, ok)
}

func TestRemoteCloseDisconnects(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.dialer.last().Close()

	require.Eventually(t, func() bool { return !h.bridge.IsConnected() }, waitFor, tick)
	assert.Equal(t, []string{"channel", "peer", "media"}, h.tr.teardownSteps())
}

func TestListeningFollowsRemoteAudio(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	require.False(t, h.bridge.IsListening())

	h.dialer.last().RemoteAudio()
	require.Eventually(t, h.bridge.IsListening, waitFor, tick)

	h.bridge.Disconnect()
	assert.False(t, h.bridge.IsListening())

	h.sync()
	h.mu.Lock()
	defer h.mu.Unlock()
	var states []State
	for _, s := range h.statuses {
		states = append(states, s.State)
	}
	assert.Equal(t, []State{StateConnecting, StateConnected, StateConnected, StateDisconnected}, states)
}

func TestStaleHandlersAreIgnored(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	stale := h.dialer.last()
	h.bridge.Disconnect()

	h.tr = &fakeTransport{ready: true}
	h.connect(t)

	stale.Message(functionCall("c1", "get_cart", `{}`))
	stale.Close()
	h.sync()

	assert.Empty(t, h.backend.calls())
	assert.True(t, h.bridge.IsConnected())
}

func TestTranscript(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []TranscriptEntry
	)
	h := newHarness(t, WithTranscriptWindow(2), WithTranscriptListener(func(e TranscriptEntry) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	}))
	h.connect(t)

	hd := h.dialer.last()
	hd.Message(transcriptEvent("conversation.item.input_audio_transcription.completed", "  one burger please \n"))
	hd.Message(transcriptEvent("conversation.item.input_audio_transcription.completed", "   "))
	hd.Message(transcriptEvent("response.audio_transcript.done", "Added one burger."))
	hd.Message([]byte(`{"type":"error","error":{"code":"bad","message":"nope"}}`))
	hd.Message([]byte(`not json`))
	hd.Message(transcriptEvent("conversation.item.input_audio_transcription.completed", "that's all"))
	h.sync()

	log := h.bridge.TranscriptLog().Entries()
	require.Len(t, log, 3)
	assert.Equal(t, TranscriptEntry{Speaker: SpeakerUser, Text: "one burger please", Sequence: 1}, log[0])
	assert.Equal(t, SpeakerAssistant, log[1].Speaker)
	assert.Equal(t, "that's all", log[2].Text)

	recent := h.bridge.Transcript()
	require.Len(t, recent, 2)
	assert.Equal(t, "Added one burger.", recent[0].Text)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 3)
	assert.True(t, h.bridge.IsConnected())
}

func TestTranscriptSurvivesReconnect(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.dialer.last().Message(transcriptEvent("response.audio_transcript.done", "Hello"))
	h.sync()

	h.bridge.Disconnect()
	h.connect(t)
	assert.Equal(t, 1, h.bridge.TranscriptLog().Len())
}
