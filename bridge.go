// Package orderrt bridges a voice ordering conversation with a hosted
// realtime model.
//
// A [Bridge] negotiates the realtime transport, configures the session,
// executes the functions the model calls against the commerce backend and
// reconciles their results into the shared order store.
package orderrt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codewandler/orderrt-go/backend"
	"github.com/codewandler/orderrt-go/store"
	"github.com/codewandler/orderrt-go/transport"
)

// Backend executes model function calls and issues realtime credentials.
type Backend interface {
	IssueEphemeralCredential(ctx context.Context, sessionID string) (backend.Credential, error)
	InvokeFunction(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
}

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type TransportState int

const (
	TransportIdle TransportState = iota
	TransportNegotiating
	TransportOpen
	TransportClosed
	TransportFailed
)

func (s TransportState) String() string {
	return [...]string{"idle", "negotiating", "open", "closed", "failed"}[s]
}

// Session is one live realtime connection.
type Session struct {
	ID             string
	Credential     string
	TransportState TransportState
}

type Status struct {
	State     State
	Connected bool
	Listening bool
}

type Bridge struct {
	config     *clientConfig
	backend    Backend
	dialer     transport.Dialer
	store      *store.Writer
	transcript *Transcript
	metrics    *metrics
	logger     *slog.Logger
	loop       *loop
	notify     *notifier

	// owned by the loop
	state      State
	attempt    int
	session    *Session
	tr         transport.Transport
	opened     bool
	configured bool
	lost       bool
	cancelDial context.CancelFunc

	mu     sync.RWMutex
	status Status
}

// New creates a bridge writing to w. The bridge holds the only write handle
// on the business state; the interface observes w.Store().
func New(b Backend, d transport.Dialer, w *store.Writer, opts ...ClientOption) *Bridge {
	config := &clientConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)

	return &Bridge{
		config:     config,
		backend:    b,
		dialer:     d,
		store:      w,
		transcript: &Transcript{},
		metrics:    newMetrics(config.meter, config.logger),
		logger:     config.logger,
		loop:       newLoop(),
		notify:     newNotifier(),
	}
}

// Connect negotiates a session. It is a no-op while connecting or connected.
// A failed attempt leaves the bridge disconnected and returns a
// *NegotiationError.
func (b *Bridge) Connect(ctx context.Context) error {
	var (
		attempt   int
		sessionID string
		dialCtx   context.Context
		busy      bool
	)
	if !b.loop.do(func() {
		if b.state != StateDisconnected {
			busy = true
			return
		}
		b.attempt++
		attempt = b.attempt
		dialCtx, b.cancelDial = context.WithCancel(ctx)
		b.opened, b.configured, b.lost = false, false, false
		b.setState(StateConnecting, false)
		sessionID = b.store.Store().Snapshot().SessionID
	}) {
		return context.Canceled
	}
	if busy {
		return nil
	}

	session, tr, err := b.negotiate(dialCtx, attempt, sessionID)

	var result error
	if !b.loop.do(func() {
		if attempt != b.attempt {
			// disconnected while negotiating
			b.release(tr)
			result = context.Canceled
			return
		}
		b.cancelDial()
		b.cancelDial = nil

		if b.lost {
			err = &NegotiationError{
				Stage: transport.StageTransport,
				Err:   fmt.Errorf("%w: closed during negotiation", ErrChannelUnavailable),
			}
		}
		if err != nil {
			b.release(tr)
			b.setState(StateDisconnected, false)
			stage := transport.StageTransport
			var nerr *NegotiationError
			if errors.As(err, &nerr) {
				stage = nerr.Stage
			}
			b.metrics.count(b.metrics.connectFailures, "stage", string(stage))
			b.logger.Error("connect failed", slog.Any("err", err))
			if f := b.config.onNotice; f != nil {
				notice := err
				b.notify.post(func() { f(notice) })
			}
			result = err
			return
		}

		b.session = session
		b.tr = tr
		b.setState(StateConnected, b.status.Listening)
		if b.opened || tr.Ready() {
			b.configure()
		}
		b.logger.Info("connected", slog.String("session_id", session.ID))
	}) {
		// closed while negotiating
		b.release(tr)
		if err != nil {
			return err
		}
		return context.Canceled
	}
	return result
}

// negotiate runs off the loop. On failure the returned transport holds
// whatever was acquired.
func (b *Bridge) negotiate(ctx context.Context, attempt int, sessionID string) (*Session, transport.Transport, error) {
	cred, err := b.backend.IssueEphemeralCredential(ctx, sessionID)
	if err != nil {
		return nil, nil, &NegotiationError{Stage: transport.StageCredential, Err: err}
	}

	b.loop.do(func() {
		if attempt == b.attempt {
			b.store.SetSessionID(cred.SessionID)
		}
	})

	tr, err := b.dialer.Dial(ctx, transport.Credential{SessionID: cred.SessionID, Key: cred.Key}, b.handlers(attempt))
	if err != nil {
		return nil, tr, &NegotiationError{Stage: transport.StageOf(err), Err: err}
	}

	return &Session{
		ID:             cred.SessionID,
		Credential:     cred.Key,
		TransportState: TransportNegotiating,
	}, tr, nil
}

// handlers bind transport callbacks to one connect attempt. Callbacks from
// an earlier attempt are ignored.
func (b *Bridge) handlers(attempt int) transport.Handlers {
	on := func(f func()) func() {
		return func() {
			b.loop.post(func() {
				if attempt == b.attempt {
					f()
				}
			})
		}
	}

	return transport.Handlers{
		OnOpen: on(func() {
			b.opened = true
			if b.tr != nil {
				b.configure()
			}
		}),
		OnMessage: func(data []byte) {
			b.loop.post(func() {
				if attempt == b.attempt {
					b.handleMessage(data)
				}
			})
		},
		OnClose: on(func() {
			b.handle(ChannelClosed{})
		}),
		OnRemoteAudio: on(func() {
			b.setState(b.state, true)
		}),
	}
}

// configure sends the session configuration once per connection.
func (b *Bridge) configure() {
	if b.configured {
		return
	}
	b.configured = true
	if b.session != nil {
		b.session.TransportState = TransportOpen
	}

	sessionID := b.store.Store().Snapshot().SessionID
	if err := send(b.tr, configureSession(b.config, sessionID)); err != nil {
		b.logger.Warn("failed to configure session", slog.Any("err", err))
	}
}

func (b *Bridge) handleMessage(data []byte) {
	evt, err := decodeEvent(data)
	if err != nil {
		b.logger.Warn("inbound event", slog.Any("err", err))
		return
	}
	if evt != nil {
		b.handle(evt)
	}
}

func (b *Bridge) handle(evt Event) {
	switch x := evt.(type) {
	case TranscriptAppended:
		if x.Text == "" {
			return
		}
		entry := b.transcript.Append(x.Speaker, x.Text)
		if f := b.config.onTranscript; f != nil {
			b.notify.post(func() { f(entry) })
		}
	case FunctionCallRequested:
		b.dispatch(x)
	case ChannelClosed:
		b.logger.Info("event channel closed")
		if b.state == StateConnecting {
			// Connect reports the failure
			b.lost = true
			b.cancelDial()
			return
		}
		if b.session != nil {
			b.session.TransportState = TransportClosed
		}
		b.teardown()
	}
}

// Disconnect tears the session down. It is idempotent and safe while
// connecting. In-flight function calls are not cancelled.
func (b *Bridge) Disconnect() {
	b.loop.do(b.teardown)
}

func (b *Bridge) teardown() {
	switch b.state {
	case StateDisconnected:
		return
	case StateConnecting:
		// Connect releases whatever the dialer acquired.
		b.cancelDial()
	}

	b.attempt++
	b.release(b.tr)
	b.tr = nil
	b.session = nil
	b.setState(StateDisconnected, false)
	b.logger.Info("disconnected")
}

func (b *Bridge) release(tr transport.Transport) {
	if err := transport.Teardown(tr); err != nil {
		b.logger.Warn("teardown", slog.Any("err", err))
	}
}

// Close disconnects and stops the bridge. Results of function calls still in
// flight are discarded.
func (b *Bridge) Close() {
	b.Disconnect()
	b.loop.stop()
	b.notify.stop()
}

func (b *Bridge) setState(state State, listening bool) {
	b.state = state

	b.mu.Lock()
	changed := b.status.State != state || b.status.Listening != listening
	b.status = Status{
		State:     state,
		Connected: state == StateConnected,
		Listening: listening,
	}
	status := b.status
	b.mu.Unlock()

	if f := b.config.onStatus; changed && f != nil {
		b.notify.post(func() { f(status) })
	}
}

func (b *Bridge) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// IsConnected reports transport readiness.
func (b *Bridge) IsConnected() bool {
	return b.Status().Connected
}

// IsListening reports whether the assistant's audio is attached.
func (b *Bridge) IsListening() bool {
	return b.Status().Listening
}

// Transcript returns the recent window of the conversation.
func (b *Bridge) Transcript() []TranscriptEntry {
	return b.transcript.Recent(b.config.transcriptWindow)
}

// TranscriptLog is the full conversation log.
func (b *Bridge) TranscriptLog() *Transcript {
	return b.transcript
}

// Session returns a copy of the live session.
func (b *Bridge) Session() (Session, bool) {
	var (
		s  Session
		ok bool
	)
	b.loop.do(func() {
		if b.session != nil {
			s, ok = *b.session, true
		}
	})
	return s, ok
}
