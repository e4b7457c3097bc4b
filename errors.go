package orderrt

import (
	"errors"
	"fmt"

	"github.com/codewandler/orderrt-go/transport"
)

var (
	// ErrCredential means the ephemeral credential could not be fetched.
	ErrCredential = errors.New("credential fetch failed")
	// ErrMediaAccess means the local audio source could not be acquired.
	ErrMediaAccess = errors.New("media access failed")
	// ErrNegotiation means the offer/answer exchange failed.
	ErrNegotiation = errors.New("negotiation failed")
	// ErrChannelUnavailable means an event could not be sent because the
	// event channel is not open. The event is dropped.
	ErrChannelUnavailable = errors.New("event channel unavailable")
	// ErrBackendInvocation means the commerce backend failed to execute a
	// function call.
	ErrBackendInvocation = errors.New("backend invocation failed")
)

// NegotiationError is a failed connect attempt tagged with the failing stage.
// It matches ErrCredential, ErrMediaAccess or ErrNegotiation with errors.Is.
type NegotiationError struct {
	Stage transport.Stage
	Err   error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiate (%s): %v", e.Stage, e.Err)
}

func (e *NegotiationError) Unwrap() []error {
	return []error{e.kind(), e.Err}
}

func (e *NegotiationError) kind() error {
	switch e.Stage {
	case transport.StageCredential:
		return ErrCredential
	case transport.StageMedia:
		return ErrMediaAccess
	default:
		return ErrNegotiation
	}
}
