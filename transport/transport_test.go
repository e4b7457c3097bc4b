package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []string
	err   error
}

func (r *recorder) Send([]byte) error { return ErrClosed }
func (r *recorder) Ready() bool       { return false }
func (r *recorder) CloseChannel() error {
	r.calls = append(r.calls, "channel")
	return nil
}
func (r *recorder) ClosePeer() error {
	r.calls = append(r.calls, "peer")
	return r.err
}
func (r *recorder) ReleaseMedia() error {
	r.calls = append(r.calls, "media")
	return nil
}

func TestTeardownOrder(t *testing.T) {
	r := &recorder{err: errors.New("peer gone")}
	err := Teardown(r)
	require.ErrorContains(t, err, "peer gone")
	require.Equal(t, []string{"channel", "peer", "media"}, r.calls)

	require.NoError(t, Teardown(nil))
}

func TestStageOf(t *testing.T) {
	err := Fail(StageMedia, errors.New("permission denied"))
	require.Equal(t, StageMedia, StageOf(err))
	require.Equal(t, "media: permission denied", err.Error())
	require.Equal(t, StageTransport, StageOf(errors.New("other")))
}

func TestHandlersNilSafe(t *testing.T) {
	var h Handlers
	h.Open()
	h.Message(nil)
	h.Close()
	h.RemoteAudio()

	opened := false
	Handlers{OnOpen: func() { opened = true }}.Open()
	require.True(t, opened)
}
