package events

// Client event types.
const (
	TypeSessionUpdate           = "session.update"
	TypeConversationItemCreate  = "conversation.item.create"
	TypeResponseCreate          = "response.create"
	TypeInputAudioBufferAppend  = "input_audio_buffer.append"
	TypeFunctionCallOutputItem  = "function_call_output"
	TypeConversationItemMessage = "message"
)

// Server event types.
const (
	TypeError                         = "error"
	TypeSessionCreated                = "session.created"
	TypeSessionUpdated                = "session.updated"
	TypeResponseAudioTranscriptDone   = "response.audio_transcript.done"
	TypeInputAudioTranscriptionDone   = "conversation.item.input_audio_transcription.completed"
	TypeResponseFunctionCallArgsDone  = "response.function_call_arguments.done"
	TypeResponseAudioDelta            = "response.audio.delta"
	TypeInputAudioBufferSpeechStarted = "input_audio_buffer.speech_started"
	TypeInputAudioBufferSpeechStopped = "input_audio_buffer.speech_stopped"
)
