// Package transport defines the realtime connection between the bridge and
// the hosted conversational endpoint: one bidirectional event channel plus
// audio in both directions.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Credential authorizes one negotiation.
type Credential struct {
	SessionID string
	Key       string
}

// Stage names the negotiation step that failed.
type Stage string

const (
	StageCredential Stage = "credential"
	StageMedia      Stage = "media"
	StageTransport  Stage = "transport"
	StageOffer      Stage = "offer"
	StageAnswer     Stage = "answer"
)

// StageError tags a dialer failure with its stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Fail wraps err as a failure of stage.
func Fail(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage err is tagged with, or StageTransport.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageTransport
}

// ErrClosed is returned by Send when the event channel is not open.
var ErrClosed = errors.New("event channel not open")

// Handlers receive transport notifications. They may be called from any
// goroutine.
type Handlers struct {
	OnOpen        func()
	OnMessage     func(data []byte)
	OnClose       func()
	OnRemoteAudio func()
}

func (h Handlers) Open() {
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

func (h Handlers) Message(data []byte) {
	if h.OnMessage != nil {
		h.OnMessage(data)
	}
}

func (h Handlers) Close() {
	if h.OnClose != nil {
		h.OnClose()
	}
}

func (h Handlers) RemoteAudio() {
	if h.OnRemoteAudio != nil {
		h.OnRemoteAudio()
	}
}

// Transport is an established connection. Teardown methods are idempotent.
type Transport interface {
	// Send writes one event. It returns ErrClosed when the channel is not open.
	Send(data []byte) error
	// Ready reports whether the event channel is open.
	Ready() bool
	CloseChannel() error
	ClosePeer() error
	ReleaseMedia() error
}

// Dialer negotiates a Transport. On error it may return a non-nil Transport
// holding partially acquired resources which the caller must tear down.
type Dialer interface {
	Dial(ctx context.Context, cred Credential, h Handlers) (Transport, error)
}

// Teardown releases t in order: event channel, peer transport, local media.
func Teardown(t Transport) error {
	if t == nil {
		return nil
	}
	return errors.Join(t.CloseChannel(), t.ClosePeer(), t.ReleaseMedia())
}
