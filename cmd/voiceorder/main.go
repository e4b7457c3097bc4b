// Command voiceorder is a terminal client for voice ordering. It streams raw
// PCM16 mono audio from a file or stdin, plays the assistant into a file and
// prints the conversation and the cart as they change.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/codewandler/orderrt-go"
	"github.com/codewandler/orderrt-go/backend"
	"github.com/codewandler/orderrt-go/commerce"
	"github.com/codewandler/orderrt-go/internal/config"
	"github.com/codewandler/orderrt-go/store"
	"github.com/codewandler/orderrt-go/transport"
	"github.com/codewandler/orderrt-go/transport/peer"
	"github.com/codewandler/orderrt-go/transport/socket"
)

func main() {
	var (
		configPath = ""
		envFile    = ".env"
		micPath    = "-"
		speakPath  = ""
		debug      = false
	)
	flag.StringVar(&configPath, "config", configPath, "path to a YAML config file")
	flag.StringVar(&envFile, "env", envFile, "path to an env file")
	flag.StringVar(&micPath, "mic", micPath, "raw PCM16 mono input, - for stdin")
	flag.StringVar(&speakPath, "speaker", speakPath, "file receiving the assistant audio as raw PCM16 mono")
	flag.BoolVar(&debug, "debug", debug, "enable debug logs")
	flag.Parse()

	if err := run(configPath, envFile, micPath, speakPath, debug); err != nil {
		fmt.Fprintln(os.Stderr, "voiceorder:", err)
		os.Exit(1)
	}
}

func run(configPath, envFile, micPath, speakPath string, debug bool) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.Telemetry.LogLevel)
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be := backend.New(cfg.Client.BackendURL, backend.WithLogger(logger))
	st, w := store.New()

	if products, err := be.Products(ctx); err != nil {
		logger.Warn("failed to load catalog", slog.Any("err", err))
	} else {
		st.LoadCatalog(products)
	}
	unsubscribe := st.Subscribe(printChanges())
	defer unsubscribe()

	dialer, err := newDialer(cfg, micPath, speakPath, logger)
	if err != nil {
		return err
	}

	bridge := orderrt.New(be, dialer, w,
		orderrt.WithLogger(logger),
		orderrt.WithVoice(cfg.OpenAI.Voice),
		orderrt.WithInstructionFunc(commerce.Instructions),
		orderrt.WithTools(commerce.Tools()...),
		orderrt.WithTranscriptListener(func(e orderrt.TranscriptEntry) {
			fmt.Printf("%s> %s\n", e.Speaker, e.Text)
		}),
		orderrt.WithStatusListener(func(s orderrt.Status) {
			logger.Info("status", slog.String("state", s.State.String()), slog.Bool("listening", s.Listening))
		}),
		orderrt.WithNotice(func(err error) {
			fmt.Fprintln(os.Stderr, "could not connect:", err)
		}),
	)
	defer bridge.Close()

	if err := bridge.Connect(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	bridge.Disconnect()

	final := st.Snapshot()
	fmt.Printf("cart total: %.2f (%d items)\n", final.Total(), len(final.Items))
	return nil
}

func newDialer(cfg config.Config, micPath, speakPath string, logger *slog.Logger) (transport.Dialer, error) {
	if cfg.Client.Transport == "peer" {
		return peer.New(
			peer.WithCallsURL(cfg.OpenAI.CallsURL),
			peer.WithMicrophone(peer.NewStaticMicrophone()),
			peer.WithLogger(logger),
		), nil
	}

	var (
		mic     io.Reader = os.Stdin
		speaker io.Writer = io.Discard
	)
	if micPath != "-" && micPath != "" {
		f, err := os.Open(micPath)
		if err != nil {
			return nil, fmt.Errorf("open microphone input: %w", err)
		}
		mic = f
	}
	if speakPath != "" {
		f, err := os.Create(speakPath)
		if err != nil {
			return nil, fmt.Errorf("create speaker output: %w", err)
		}
		speaker = f
	}

	return socket.New(
		socket.WithURL(cfg.OpenAI.RealtimeURL),
		socket.WithModel(cfg.OpenAI.Model),
		socket.WithMicrophone(mic, cfg.Client.SampleRate),
		socket.WithSpeaker(speaker, cfg.Client.SampleRate),
		socket.WithLatency(time.Duration(cfg.Client.LatencyMS)*time.Millisecond),
		socket.WithLogger(logger),
	), nil
}

// printChanges prints the cart, the focused product and the checkout view
// whenever they change.
func printChanges() store.Listener {
	var (
		mu   sync.Mutex
		prev store.State
	)
	return func(s store.State) {
		mu.Lock()
		defer mu.Unlock()

		if !slices.Equal(prev.Items, s.Items) {
			fmt.Printf("cart: %d items, total %.2f\n", len(s.Items), s.Total())
			for _, item := range s.Items {
				fmt.Printf("  %dx %s  %.2f\n", item.Quantity, item.Product.Name, item.Subtotal())
			}
		}
		if p, ok := s.FocusedProduct(); ok && s.FocusedProductID != prev.FocusedProductID {
			fmt.Printf("showing: %s (%.2f)\n", p.Name, p.Price)
		}
		if s.Customer != prev.Customer {
			fmt.Printf("customer: %s %s %s\n", s.Customer.Name, s.Customer.Phone, s.Customer.Address)
		}
		if s.CheckoutVisible && !prev.CheckoutVisible {
			fmt.Println("checkout: enter your card on screen")
		}
		prev = s
	}
}
