package events

import (
	"encoding/json"
	"fmt"
)

// Decode parses a server event. Event types without a registered struct are
// returned as nil with no error.
func Decode(data []byte) (any, error) {
	var x struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	switch x.Type {
	case TypeError:
		return decode[ErrorEvent](x.Type, data)
	case TypeSessionCreated:
		return decode[SessionCreatedEvent](x.Type, data)
	case TypeSessionUpdated:
		return decode[SessionUpdatedEvent](x.Type, data)
	case TypeResponseAudioTranscriptDone:
		return decode[ResponseAudioTranscriptDoneEvent](x.Type, data)
	case TypeInputAudioTranscriptionDone:
		return decode[InputAudioTranscriptionCompletedEvent](x.Type, data)
	case TypeResponseFunctionCallArgsDone:
		return decode[FunctionCallArgumentsDoneEvent](x.Type, data)
	case TypeResponseAudioDelta:
		return decode[ResponseAudioDeltaEvent](x.Type, data)
	case TypeInputAudioBufferSpeechStarted:
		return decode[SpeechStartedEvent](x.Type, data)
	case TypeInputAudioBufferSpeechStopped:
		return decode[SpeechStoppedEvent](x.Type, data)
	}

	return nil, nil
}

func decode[T any](eventType string, data []byte) (any, error) {
	evt, err := Parse[T](data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return evt, nil
}
