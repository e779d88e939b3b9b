// Package transport carries encore's messages to and from the remote player.
//
// Client wraps a gorilla/websocket connection and turns its lifecycle into a
// stream of Events. Beacon posts a single best-effort message over HTTP when
// the session is torn down.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by Send when there is no open connection.
var ErrNotConnected = errors.New("transport: not connected")

const writeTimeout = 10 * time.Second

// EventKind identifies a connection lifecycle event.
type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventClose
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by the Client. Data is set for EventMessage, Err for
// EventError.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

// Client is a websocket connection to the remote player. Events are
// delivered on the channel passed to NewClient, in the order they happened.
type Client struct {
	url    string
	dialer *websocket.Dialer
	events chan<- Event
	logger zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// NewClient creates a client for url. Nothing is dialed until Connect.
func NewClient(url string, events chan<- Event, logger zerolog.Logger) *Client {
	return &Client{
		url:    url,
		dialer: websocket.DefaultDialer,
		events: events,
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// Connect dials the server. On success an EventOpen is emitted, followed by
// an EventMessage per text frame, and finally EventClose.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.logger.Debug().Str("url", c.url).Msg("Dialing")
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	go c.readLoop(conn, done)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	c.emit(done, Event{Kind: EventOpen})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			ours := c.conn == conn
			if ours {
				c.conn = nil
			}
			c.mu.Unlock()
			conn.Close()

			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) && ours {
				c.emit(done, Event{Kind: EventError, Err: err})
			}
			c.emit(done, Event{Kind: EventClose})
			return
		}

		if msgType != websocket.TextMessage {
			c.logger.Debug().Int("type", msgType).Msg("Ignoring non-text frame")
			continue
		}
		c.emit(done, Event{Kind: EventMessage, Data: data})
	}
}

func (c *Client) emit(done chan struct{}, ev Event) {
	select {
	case c.events <- ev:
	case <-done:
	}
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one text message.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close sends a close frame and tears the connection down. Events still
// pending for a consumer that has stopped reading are dropped.
func (c *Client) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := conn.Close()
	if done != nil {
		close(done)
	}
	return err
}
