package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfmyers9/encore/internal/player"
	"github.com/jfmyers9/encore/internal/playlist"
	"github.com/jfmyers9/encore/internal/protocol"
	"github.com/jfmyers9/encore/internal/store"
	"github.com/jfmyers9/encore/internal/track"
	"github.com/jfmyers9/encore/internal/transport"
)

func mk(title string) track.Track {
	return track.Track{Info: track.Info{Author: "Band", Title: title}, Encoded: "enc-" + title}
}

// fakeConn opens immediately and records what is sent.
type fakeConn struct {
	events chan transport.Event
	err    error

	mu     sync.Mutex
	sent   []string
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan transport.Event, 16)}
}

func (f *fakeConn) Connect(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.events <- transport.Event{Kind: transport.EventOpen}
	return nil
}

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, string(data))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeBeacon struct {
	mu   sync.Mutex
	sent []protocol.Command
}

func (f *fakeBeacon) Send(cmd protocol.Command) <-chan struct{} {
	f.mu.Lock()
	f.sent = append(f.sent, cmd)
	f.mu.Unlock()
	done := make(chan struct{})
	close(done)
	return done
}

func (f *fakeBeacon) commands() []protocol.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Command(nil), f.sent...)
}

type running struct {
	s      *Session
	conn   *fakeConn
	beacon *fakeBeacon
	kv     *store.Memory
	cancel context.CancelFunc
	errc   chan error
}

func start(t *testing.T) *running {
	t.Helper()
	r := &running{
		conn:   newFakeConn(),
		beacon: &fakeBeacon{},
		kv:     store.NewMemory(),
		errc:   make(chan error, 1),
	}
	r.s = New(Config{BeaconGrace: 100 * time.Millisecond}, Deps{
		Store:  r.kv,
		Conn:   r.conn,
		Events: r.conn.events,
		Beacon: r.beacon,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() { r.errc <- r.s.RunContext(ctx) }()
	t.Cleanup(r.stop)

	select {
	case <-r.s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("session never became ready")
	}
	return r
}

func (r *running) stop() {
	r.cancel()
	<-r.s.stopped
}

func (r *running) do(t *testing.T, op Op) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.s.Do(ctx, op))
}

func (r *running) push(raw string) {
	r.conn.events <- transport.Event{Kind: transport.EventMessage, Data: []byte(raw)}
}

func TestSession_HandshakeOnOpen(t *testing.T) {
	r := start(t)

	var conn player.Connection
	r.do(t, func(p *player.Player, _ *playlist.Manager) { conn = p.State().Connection })
	assert.Equal(t, player.Connected, conn)

	msgs := r.conn.messages()
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"opcode":101}`, msgs[0])
	assert.JSONEq(t, `{"opcode":117,"volume":75}`, msgs[1])
}

func TestSession_MessagesAreHandledInOrder(t *testing.T) {
	r := start(t)

	r.push(`{"opcode":200,"volume":10}`)
	r.push(`{"opcode":200,"volume":20}`)
	r.push(`{"opcode":200,"volume":30}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.s.WaitFor(ctx, func(p *player.Player, _ *playlist.Manager) bool {
		return p.State().Volume == 30
	}))
}

func TestSession_WaitForTimeoutReleasesWaiter(t *testing.T) {
	r := start(t)

	var calls atomic.Int32
	never := func(*player.Player, *playlist.Manager) bool {
		calls.Add(1)
		return false
	}
	for range 3 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		err := r.s.WaitFor(ctx, never)
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}
	abandoned := calls.Load()

	for i := range 5 {
		r.push(fmt.Sprintf(`{"opcode":202,"position":%d,"duration":200000}`, i*1000))
	}

	require.Eventually(t, func() bool {
		waiting := -1
		err := r.s.Do(context.Background(), func(*player.Player, *playlist.Manager) {
			waiting = len(r.s.waiters)
		})
		return err == nil && waiting == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, abandoned, calls.Load(), "cond ran after WaitFor returned")
}

func TestSession_AfterFuncRunsOnLoop(t *testing.T) {
	r := start(t)

	ran := make(chan player.State, 1)
	r.do(t, func(p *player.Player, _ *playlist.Manager) {
		p.StartSeeking()
		r.s.AfterFunc(10*time.Millisecond, func() {
			p.StopSeeking()
			ran <- p.State()
		})
	})

	select {
	case s := <-ran:
		assert.False(t, s.IsSeeking)
	case <-time.After(2 * time.Second):
		t.Fatal("timer callback never ran")
	}
}

func TestSession_ServerCloseReleasesPlaylist(t *testing.T) {
	r := start(t)

	r.do(t, func(_ *player.Player, m *playlist.Manager) {
		pl, _ := m.CreatePlaylist("P")
		m.AddTrackToPlaylist(pl.ID, mk("A"))
		m.PlayPlaylist(pl.ID, 0)
	})
	r.conn.events <- transport.Event{Kind: transport.EventClose}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.s.WaitFor(ctx, func(p *player.Player, m *playlist.Manager) bool {
		_, _, _, active := m.Active()
		return p.State().Connection == player.Disconnected && !active
	}))
}

func TestSession_HeadlessIndexOutOfRangeThenTrackEnded(t *testing.T) {
	r := start(t)

	var id string
	r.do(t, func(_ *player.Player, m *playlist.Manager) {
		pl, _ := m.CreatePlaylist("P")
		id = pl.ID
		for _, title := range []string{"A", "B", "C"} {
			m.AddTrackToPlaylist(pl.ID, mk(title))
		}
	})

	r.push(fmt.Sprintf(`{"opcode":903,"data":{"playlistId":%q,"currentIndex":-3}}`, id))
	r.push(`{"opcode":201}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.s.WaitFor(ctx, func(_ *player.Player, m *playlist.Manager) bool {
		return m.State().ActiveTrackIndex == 0
	}))

	msgs := r.conn.messages()
	assert.Contains(t, msgs[len(msgs)-1], `"encoded":"enc-A"`)
}

func TestSession_TeardownSendsBeaconForActivePlaylist(t *testing.T) {
	r := start(t)

	var id string
	r.do(t, func(_ *player.Player, m *playlist.Manager) {
		pl, _ := m.CreatePlaylist("P")
		id = pl.ID
		for _, title := range []string{"A", "B", "C"} {
			m.AddTrackToPlaylist(pl.ID, mk(title))
		}
		m.PlayPlaylist(pl.ID, 1)
	})

	r.stop()

	cmds := r.beacon.commands()
	require.Len(t, cmds, 1)
	pkt, ok := cmds[0].(protocol.StartHeadless)
	require.True(t, ok)
	assert.Equal(t, id, pkt.Data.PlaylistID)
	assert.Equal(t, 1, pkt.Data.CurrentIndex)
	assert.Equal(t, protocol.RepeatingAll, pkt.Data.RepeatingType)
	assert.Len(t, pkt.Data.Tracks, 3)
	assert.True(t, r.conn.isClosed())

	snap := player.LoadSnapshot(r.kv, zerolog.Nop())
	assert.Equal(t, track.None, snap.CurrentSong)
}

func TestSession_NoBeaconWhenHeadless(t *testing.T) {
	r := start(t)

	r.do(t, func(_ *player.Player, m *playlist.Manager) {
		pl, _ := m.CreatePlaylist("P")
		m.AddTrackToPlaylist(pl.ID, mk("A"))
		m.PlayPlaylist(pl.ID, 0)
	})
	r.push(`{"opcode":200,"headless":true}`)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.s.WaitFor(ctx, func(p *player.Player, _ *playlist.Manager) bool {
		return p.State().Headless
	}))

	r.stop()
	assert.Empty(t, r.beacon.commands())
}

func TestSession_NoBeaconWithoutActivePlaylist(t *testing.T) {
	r := start(t)
	r.stop()
	assert.Empty(t, r.beacon.commands())
}

func TestSession_DoAfterStop(t *testing.T) {
	r := start(t)
	r.stop()

	err := r.s.Do(context.Background(), func(*player.Player, *playlist.Manager) {})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSession_ConnectFailure(t *testing.T) {
	conn := newFakeConn()
	conn.err = errors.New("connection refused")
	s := New(Config{}, Deps{Conn: conn, Events: conn.events}, zerolog.Nop())

	err := s.RunContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, player.Disconnected, s.player.State().Connection)
}

// remote is a minimal stand-in for the playback server. It answers play
// commands with a status snapshot and records every opcode it receives.
type remote struct {
	mu      sync.Mutex
	opcodes []protocol.Opcode
	conn    *websocket.Conn
}

func (r *remote) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				Opcode protocol.Opcode `json:"opcode"`
				Track  track.Track     `json:"track"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Errorf("server got bad json: %s", data)
				return
			}

			r.mu.Lock()
			r.opcodes = append(r.opcodes, msg.Opcode)
			r.mu.Unlock()

			if msg.Opcode == protocol.OpPlayTrack {
				current, _ := json.Marshal(msg.Track)
				reply := fmt.Sprintf(`{"opcode":200,"playing":true,"paused":false,"current":%s}`, current)
				r.write(reply)
			}
		}
	}
}

func (r *remote) write(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		_ = r.conn.WriteMessage(websocket.TextMessage, []byte(msg))
	}
}

func (r *remote) received() []protocol.Opcode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Opcode(nil), r.opcodes...)
}

func TestSession_EndToEnd(t *testing.T) {
	rem := &remote{}
	srv := httptest.NewServer(rem.handler(t))
	defer srv.Close()

	beaconBody := make(chan string, 1)
	beaconSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		beaconBody <- string(body)
	}))
	defer beaconSrv.Close()

	events := make(chan transport.Event, 16)
	client := transport.NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), events, zerolog.Nop())
	s := New(Config{ConnectTimeout: 2 * time.Second, BeaconGrace: 2 * time.Second}, Deps{
		Store:  store.NewMemory(),
		Conn:   client,
		Events: events,
		Beacon: transport.NewBeacon(beaconSrv.URL, zerolog.Nop()),
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.RunContext(ctx) }()

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("never connected")
	}

	wait := func(cond func(p *player.Player, m *playlist.Manager) bool) {
		t.Helper()
		wctx, wcancel := context.WithTimeout(ctx, 2*time.Second)
		defer wcancel()
		require.NoError(t, s.WaitFor(wctx, cond))
	}

	var id string
	require.NoError(t, s.Do(ctx, func(_ *player.Player, m *playlist.Manager) {
		pl, _ := m.CreatePlaylist("Road trip")
		id = pl.ID
		for _, title := range []string{"A", "B", "C"} {
			m.AddTrackToPlaylist(pl.ID, mk(title))
		}
		m.PlayPlaylist(pl.ID, 0)
	}))

	wait(func(p *player.Player, _ *playlist.Manager) bool {
		return p.State().CurrentSong.ID() == "BandA" && p.State().IsPlaying
	})

	rem.write(`{"opcode":201}`)
	wait(func(p *player.Player, m *playlist.Manager) bool {
		_, idx, _, _ := m.Active()
		return idx == 1 && p.State().CurrentSong.ID() == "BandB"
	})

	assert.Equal(t, []protocol.Opcode{
		protocol.OpRegister,
		protocol.OpSetVolume,
		protocol.OpPlayTrack,
		protocol.OpPlayTrack,
	}, rem.received())

	cancel()
	require.NoError(t, <-errc)

	select {
	case body := <-beaconBody:
		assert.Contains(t, body, `"opcode":901`)
		assert.Contains(t, body, `"playlistId":"`+id+`"`)
		assert.Contains(t, body, `"currentIndex":1`)
	case <-time.After(2 * time.Second):
		t.Fatal("beacon never arrived")
	}
}
