package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/encore/internal/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer replies to every text message with the same text and closes
// the connection when it receives "bye".
func echoServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "bye" {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestClient_Lifecycle(t *testing.T) {
	events := make(chan Event, 8)
	c := NewClient(echoServer(t), events, zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Send([]byte("early")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() before connect error = %v, want ErrNotConnected", err)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if ev := next(t, events); ev.Kind != EventOpen {
		t.Fatalf("first event = %v, want open", ev.Kind)
	}
	if !c.Connected() {
		t.Error("Connected() = false after open")
	}

	if err := c.Send([]byte(`{"opcode":101}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	ev := next(t, events)
	if ev.Kind != EventMessage || string(ev.Data) != `{"opcode":101}` {
		t.Errorf("event = %v %q, want echoed message", ev.Kind, ev.Data)
	}

	if err := c.Send([]byte("bye")); err != nil {
		t.Fatalf("Send(bye) error = %v", err)
	}
	if ev := next(t, events); ev.Kind != EventClose {
		t.Errorf("event = %v, want close", ev.Kind)
	}
	if c.Connected() {
		t.Error("Connected() = true after server close")
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	events := make(chan Event, 1)
	c := NewClient("ws://127.0.0.1:1/", events, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := c.Connect(ctx); err == nil {
		t.Fatal("Connect() to closed port should fail")
	}
	if c.Connected() {
		t.Error("Connected() = true after failed dial")
	}
}

func TestClient_CloseIsQuiet(t *testing.T) {
	events := make(chan Event)
	c := NewClient(echoServer(t), events, zerolog.Nop())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	<-events // open

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := c.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() after close error = %v, want ErrNotConnected", err)
	}
}

func TestBeacon_Posts(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		got <- string(body)
	}))
	defer srv.Close()

	b := NewBeacon(srv.URL, zerolog.Nop())
	done := b.Send(protocol.StartHeadless{Data: protocol.HeadlessStart{PlaylistID: "p1", RepeatingType: protocol.RepeatingAll}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("beacon did not finish")
	}

	body := <-got
	if !strings.Contains(body, `"opcode":901`) || !strings.Contains(body, `"playlistId":"p1"`) {
		t.Errorf("body = %s, want 901 packet", body)
	}
}

func TestBeacon_FailureIsSilent(t *testing.T) {
	b := NewBeacon("http://127.0.0.1:1/start-headless-on-close", zerolog.Nop())
	select {
	case <-b.Send(protocol.StopHeadless{}):
	case <-time.After(6 * time.Second):
		t.Fatal("beacon did not finish")
	}
}
