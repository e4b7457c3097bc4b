package orderrt

import (
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/codewandler/orderrt-go/tool"
)

const instrumentationName = "github.com/codewandler/orderrt-go"

type clientConfig struct {
	logger             *slog.Logger
	instructions       func(sessionID string) string
	voice              string
	vadThreshold       float64
	vadPrefixPaddingMS int
	vadSilenceMS       int
	transcriptionModel string
	tools              []tool.Tool
	transcriptWindow   int
	onStatus           func(Status)
	onTranscript       func(TranscriptEntry)
	onNotice           func(error)
	meter              metric.Meter
}

type ClientOption func(*clientConfig)

func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() ClientOption {
	return WithLogger(slog.Default())
}

// WithInstruction sets the system instructions. The template receives the
// session id through a single %s verb; without one the id is appended.
func WithInstruction(template string) ClientOption {
	return func(o *clientConfig) {
		o.instructions = func(sessionID string) string {
			if !strings.Contains(template, "%s") {
				return strings.TrimSpace(template) + " Session ID: " + sessionID + "."
			}
			return fmt.Sprintf(template, sessionID)
		}
	}
}

// WithInstructionFunc builds the system instructions from the session id.
func WithInstructionFunc(f func(sessionID string) string) ClientOption {
	return func(o *clientConfig) {
		o.instructions = f
	}
}

func WithVoice(voice string) ClientOption {
	return func(o *clientConfig) {
		o.voice = voice
	}
}

// WithTurnDetection sets the server-side voice activity parameters.
func WithTurnDetection(threshold float64, prefixPaddingMS, silenceMS int) ClientOption {
	return func(o *clientConfig) {
		o.vadThreshold = threshold
		o.vadPrefixPaddingMS = prefixPaddingMS
		o.vadSilenceMS = silenceMS
	}
}

func WithTranscriptionModel(model string) ClientOption {
	return func(o *clientConfig) {
		o.transcriptionModel = model
	}
}

// WithTools declares tools in the session configuration. Without it the
// tools attached to the ephemeral credential apply.
func WithTools(tools ...tool.Tool) ClientOption {
	return func(o *clientConfig) {
		o.tools = tools
	}
}

// WithTranscriptWindow sets how many recent entries Transcript returns.
func WithTranscriptWindow(n int) ClientOption {
	return func(o *clientConfig) {
		o.transcriptWindow = n
	}
}

// WithStatusListener is called with every connection status change.
// Listeners run in order on a goroutine of their own and may call back into
// the bridge. A listener that blocks delays the ones after it.
func WithStatusListener(f func(Status)) ClientOption {
	return func(o *clientConfig) {
		o.onStatus = f
	}
}

// WithTranscriptListener is called with every appended transcript entry,
// on the same goroutine as the status listener.
func WithTranscriptListener(f func(TranscriptEntry)) ClientOption {
	return func(o *clientConfig) {
		o.onTranscript = f
	}
}

// WithNotice is called once per failed connect attempt with the error to
// show to the user, on the same goroutine as the status listener.
func WithNotice(f func(error)) ClientOption {
	return func(o *clientConfig) {
		o.onNotice = f
	}
}

func WithMeter(m metric.Meter) ClientOption {
	return func(o *clientConfig) {
		o.meter = m
	}
}

func WithOptions(opts ...ClientOption) ClientOption {
	return func(o *clientConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func withDefaults() ClientOption {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithInstruction("You are the voice assistant of a restaurant. Session ID: %s. "+
			"Always include session_id in function calls and always answer verbally."),
		WithTurnDetection(0.5, 300, 500),
		WithTranscriptionModel("whisper-1"),
		WithTranscriptWindow(5),
		WithMeter(otel.Meter(instrumentationName)),
	)
}
