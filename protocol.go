package orderrt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/codewandler/orderrt-go/events"
	"github.com/codewandler/orderrt-go/tool"
	"github.com/codewandler/orderrt-go/transport"
)

// Event is an inbound domain event.
type Event interface {
	event()
}

type TranscriptAppended struct {
	Speaker Speaker
	Text    string
}

type FunctionCallRequested struct {
	CallID    string
	Name      string
	Arguments map[string]any
	// Err is set when the arguments could not be decoded.
	Err error
}

type ChannelClosed struct{}

func (TranscriptAppended) event()    {}
func (FunctionCallRequested) event() {}
func (ChannelClosed) event()         {}

// decodeEvent maps one wire message to a domain event. Wire events without a
// domain meaning yield nil. Server error events are returned as errors.
func decodeEvent(data []byte) (Event, error) {
	evt, err := events.Decode(data)
	if err != nil {
		return nil, err
	}

	switch x := evt.(type) {
	case *events.ErrorEvent:
		return nil, fmt.Errorf("server error: %w", x)
	case *events.ResponseAudioTranscriptDoneEvent:
		return TranscriptAppended{Speaker: SpeakerAssistant, Text: x.Transcript}, nil
	case *events.InputAudioTranscriptionCompletedEvent:
		return TranscriptAppended{Speaker: SpeakerUser, Text: strings.TrimSpace(x.Transcript)}, nil
	case *events.FunctionCallArgumentsDoneEvent:
		call := FunctionCallRequested{CallID: x.CallID, Name: x.Name, Arguments: map[string]any{}}
		if strings.TrimSpace(x.Arguments) != "" {
			if err := json.Unmarshal([]byte(x.Arguments), &call.Arguments); err != nil {
				call.Arguments = map[string]any{}
				call.Err = fmt.Errorf("decode arguments of %s: %w", x.Name, err)
			}
		}
		return call, nil
	}

	return nil, nil
}

// configureSession is sent once per connection when the channel opens.
func configureSession(cfg *clientConfig, sessionID string) events.SessionUpdateEvent {
	session := events.SessionUpdate{
		Modalities:   []string{"text", "audio"},
		Instructions: cfg.instructions(sessionID),
		Voice:        cfg.voice,
		TurnDetection: &events.TurnDetection{
			Type:              "server_vad",
			Threshold:         cfg.vadThreshold,
			PrefixPaddingMs:   cfg.vadPrefixPaddingMS,
			SilenceDurationMs: cfg.vadSilenceMS,
		},
	}
	if cfg.transcriptionModel != "" {
		session.InputAudioTranscription = &events.InputAudioTranscription{Model: cfg.transcriptionModel}
	}
	if len(cfg.tools) > 0 {
		session.Tools = cfg.tools
		session.ToolChoice = tool.ChoiceFor(cfg.tools)
	}
	return events.NewSessionUpdate(session)
}

// send writes evt to t. Delivery is at most once, with no retry and no
// acknowledgement.
func send(t transport.Transport, evt any) error {
	if t == nil || !t.Ready() {
		return ErrChannelUnavailable
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := t.Send(data); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
		}
		return err
	}
	return nil
}

// submitFunctionResult answers callID and asks the assistant to speak.
func submitFunctionResult(t transport.Transport, callID string, payload json.RawMessage) error {
	if err := send(t, events.NewFunctionCallOutput(callID, string(payload))); err != nil {
		return err
	}
	return send(t, events.NewResponseCreate())
}
