package orderrt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/codewandler/orderrt-go/backend"
	"github.com/codewandler/orderrt-go/transport"
)

type fakeTransport struct {
	mu     sync.Mutex
	ready  bool
	sent   []map[string]any
	closed []string
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return transport.ErrClosed
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	t.sent = append(t.sent, m)
	return nil
}

func (t *fakeTransport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

func (t *fakeTransport) teardown(step string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ready = false
	t.closed = append(t.closed, step)
	return nil
}

func (t *fakeTransport) CloseChannel() error { return t.teardown("channel") }
func (t *fakeTransport) ClosePeer() error    { return t.teardown("peer") }
func (t *fakeTransport) ReleaseMedia() error { return t.teardown("media") }

func (t *fakeTransport) events() []map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]map[string]any, len(t.sent))
	copy(out, t.sent)
	return out
}

// ofType returns the sent events of the given wire type.
func (t *fakeTransport) ofType(typ string) []map[string]any {
	var out []map[string]any
	for _, e := range t.events() {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

func (t *fakeTransport) teardownSteps() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.closed...)
}

type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	handlers []transport.Handlers
	creds    []transport.Credential
	dial     func(ctx context.Context, h transport.Handlers) (transport.Transport, error)
}

func (d *fakeDialer) Dial(ctx context.Context, cred transport.Credential, h transport.Handlers) (transport.Transport, error) {
	d.mu.Lock()
	d.dials++
	d.handlers = append(d.handlers, h)
	d.creds = append(d.creds, cred)
	dial := d.dial
	d.mu.Unlock()

	if dial != nil {
		return dial(ctx, h)
	}
	return &fakeTransport{ready: true}, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() transport.Handlers {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handlers[len(d.handlers)-1]
}

type invocation struct {
	Name string
	Args map[string]any
}

type fakeBackend struct {
	mu          sync.Mutex
	sessionID   string
	credErr     error
	requested   []string
	invocations []invocation
	invoke      func(name string, args map[string]any) (json.RawMessage, error)
}

func (b *fakeBackend) IssueEphemeralCredential(_ context.Context, sessionID string) (backend.Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requested = append(b.requested, sessionID)
	if b.credErr != nil {
		return backend.Credential{}, b.credErr
	}
	id := b.sessionID
	if id == "" {
		id = "sess-1"
	}
	return backend.Credential{SessionID: id, Key: "ek_test"}, nil
}

func (b *fakeBackend) InvokeFunction(_ context.Context, name string, args map[string]any) (json.RawMessage, error) {
	b.mu.Lock()
	b.invocations = append(b.invocations, invocation{Name: name, Args: args})
	invoke := b.invoke
	b.mu.Unlock()

	if invoke == nil {
		return nil, errors.New("no handler")
	}
	return invoke(name, args)
}

func (b *fakeBackend) calls() []invocation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]invocation(nil), b.invocations...)
}

func functionCall(callID, name, args string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":      "response.function_call_arguments.done",
		"event_id":  "evt_" + callID,
		"call_id":   callID,
		"name":      name,
		"arguments": args,
	})
	return data
}

func transcriptEvent(typ, text string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":       typ,
		"transcript": text,
	})
	return data
}
