package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var ErrClosed = errors.New("websocket closed")

type HandlerFunc func(data []byte) error

func Json[T any](j func(x T) error) HandlerFunc {
	return func(data []byte) error {
		var t T
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}

		return j(t)
	}
}

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	OnText      HandlerFunc
	OnClose     func()
	Logger      *slog.Logger
}

type Client struct {
	conn     net.Conn
	out      chan wsutil.Message
	done     chan struct{}
	doneOnce sync.Once
	onClose  func()
	logger   *slog.Logger
}

func (c *Client) setDone() {
	c.doneOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) WriteText(data []byte) error {
	return c.Write(ws.OpText, data)
}

func (c *Client) Ping(data []byte) error {
	return c.Write(ws.OpPing, data)
}

func (c *Client) Write(opcode ws.OpCode, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
		return nil
	}
}

// Close sends a close frame and waits for the peer to acknowledge it. The
// connection is dropped regardless once ctx is done.
func (c *Client) Close(ctx context.Context) error {
	if err := c.Write(ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, "closing")); err != nil {
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		c.setDone()
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

func Connect(ctx context.Context, config ClientConfig) (*Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("url", config.URL))

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, buf, _, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, err
	}
	if buf != nil {
		ws.PutReader(buf)
	}

	logger.Debug("connected to websocket")

	onText := config.OnText
	if onText == nil {
		onText = func([]byte) error { return nil }
	}

	client := &Client{
		conn:    conn,
		out:     make(chan wsutil.Message, 1000),
		done:    make(chan struct{}),
		onClose: config.OnClose,
		logger:  logger,
	}

	input := make(chan wsutil.Message, 1000)

	// websocket -> input channel
	go func() {
		defer close(input)
		for {
			messages, err := wsutil.ReadServerMessage(conn, nil)
			if err != nil {
				if !errors.Is(err, io.EOF) && !client.Closed() {
					logger.Error("ws read failed", slog.Any("err", err))
				}
				return
			}
			for _, msg := range messages {
				input <- msg
			}
		}
	}()

	// output channel -> websocket
	go func() {
		for {
			select {
			case <-client.done:
				return
			case msg := <-client.out:
				if err := wsutil.WriteClientMessage(conn, msg.OpCode, msg.Payload); err != nil {
					logger.Error("ws write failed", slog.Any("err", err))
					client.setDone()
					return
				}
			}
		}
	}()

	// input channel processing
	go func() {
		defer client.setDone()
		for msg := range input {
			if msg.OpCode.IsControl() {
				if msg.OpCode == ws.OpClose {
					logger.Debug("rcv: close", slog.String("reason", string(msg.Payload)))
					return
				}
				if err := wsutil.HandleServerControlMessage(conn, msg); err != nil {
					logger.Error("handling of control message failed", slog.Any("err", err))
				}
				continue
			}

			if msg.OpCode == ws.OpText {
				if err := onText(msg.Payload); err != nil {
					logger.Error("text message handler failed", slog.Any("err", err))
				}
			}
		}
	}()

	return client, nil
}
