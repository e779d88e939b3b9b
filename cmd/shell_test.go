package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfmyers9/encore/internal/cache"
	"github.com/jfmyers9/encore/internal/protocol"
	"github.com/jfmyers9/encore/internal/session"
	"github.com/jfmyers9/encore/internal/store"
	"github.com/jfmyers9/encore/internal/transport"
)

// scriptedConn answers commands the way the server would.
type scriptedConn struct {
	events  chan transport.Event
	replies map[protocol.Opcode]string

	mu   sync.Mutex
	sent []protocol.Opcode
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{
		events:  make(chan transport.Event, 32),
		replies: map[protocol.Opcode]string{},
	}
}

func (c *scriptedConn) Connect(context.Context) error {
	c.events <- transport.Event{Kind: transport.EventOpen}
	return nil
}

func (c *scriptedConn) Send(data []byte) error {
	var env struct {
		Opcode protocol.Opcode `json:"opcode"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	c.mu.Lock()
	c.sent = append(c.sent, env.Opcode)
	reply, ok := c.replies[env.Opcode]
	c.mu.Unlock()

	if ok {
		c.push(reply)
	}
	return nil
}

func (c *scriptedConn) Close() error { return nil }

func (c *scriptedConn) reply(op protocol.Opcode, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[op] = msg
}

func (c *scriptedConn) push(msg string) {
	c.events <- transport.Event{Kind: transport.EventMessage, Data: []byte(msg)}
}

func (c *scriptedConn) opcodes() []protocol.Opcode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Opcode(nil), c.sent...)
}

type shellHarness struct {
	conn *scriptedConn
	sh   *shell
	out  *bytes.Buffer
	ctx  context.Context
}

func newShellHarness(t *testing.T) *shellHarness {
	t.Helper()

	conn := newScriptedConn()
	mem := store.NewMemory()
	images, err := cache.NewImages(16, mem, zerolog.Nop())
	require.NoError(t, err)

	s := session.New(session.Config{BeaconGrace: 10 * time.Millisecond}, session.Deps{
		Store:  mem,
		Images: images,
		Conn:   conn,
		Events: conn.events,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.RunContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("session never became ready")
	}

	out := &bytes.Buffer{}
	sh := newShell(s, out)
	sh.timeout = time.Second
	return &shellHarness{conn: conn, sh: sh, out: out, ctx: ctx}
}

func (h *shellHarness) run(t *testing.T, line string) string {
	t.Helper()
	h.out.Reset()
	require.NoError(t, h.sh.exec(h.ctx, line), "exec(%q)", line)
	return h.out.String()
}

// statusShows reports whether the status output contains want. It is safe
// to call from require.Eventually.
func (h *shellHarness) statusShows(want string) bool {
	h.out.Reset()
	if err := h.sh.exec(h.ctx, "status"); err != nil {
		return false
	}
	return strings.Contains(h.out.String(), want)
}

// playing pushes a status snapshot with a playable song and waits for it to
// land.
func (h *shellHarness) playing(t *testing.T) {
	t.Helper()
	h.conn.push(`{"opcode":200,"playing":true,"current":{"trackInfo":{"author":"Artist","title":"Song"},"encoded":"QAAA"}}`)
	require.Eventually(t, func() bool { return h.statusShows("Artist - Song") }, time.Second, 10*time.Millisecond)
}

const twoResults = `{"opcode":111,"results":[` +
	`{"track":{"trackInfo":{"author":"A","title":"One","length":61000},"encoded":"e1"}},` +
	`{"track":{"trackInfo":{"author":"B","title":"Two"},"encoded":"e2"}}]}`

func TestShell_UnknownAndEmpty(t *testing.T) {
	h := newShellHarness(t)

	assert.NoError(t, h.sh.exec(h.ctx, "   "))
	assert.ErrorContains(t, h.sh.exec(h.ctx, "dance"), "unknown command")
	assert.ErrorIs(t, h.sh.exec(h.ctx, "quit"), errQuit)
	assert.ErrorIs(t, h.sh.exec(h.ctx, "EXIT"), errQuit)
}

func TestShell_Help(t *testing.T) {
	h := newShellHarness(t)

	out := h.run(t, "help")
	for name := range shellCommands {
		assert.Contains(t, out, name)
	}
}

func TestShell_Status(t *testing.T) {
	h := newShellHarness(t)

	out := h.run(t, "status")
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "No song playing")
	assert.Contains(t, out, "Volume: 75")
}

func TestShell_VolumeAndMute(t *testing.T) {
	h := newShellHarness(t)

	assert.Equal(t, "Volume: 40\n", h.run(t, "volume 40"))
	assert.Equal(t, "Volume: 0\n", h.run(t, "mute"))
	assert.Equal(t, "Volume: 40\n", h.run(t, "vol 40"))
	assert.Equal(t, "Volume: 100\n", h.run(t, "volume 250"))
	assert.Error(t, h.sh.exec(h.ctx, "volume loud"))

	assert.Contains(t, h.conn.opcodes(), protocol.OpSetVolume)
}

func TestShell_ToggleNeedsSong(t *testing.T) {
	h := newShellHarness(t)

	assert.ErrorContains(t, h.sh.exec(h.ctx, "toggle"), "nothing to play")

	h.playing(t)
	assert.Contains(t, h.run(t, "pause"), "Artist - Song")
	assert.Contains(t, h.conn.opcodes(), protocol.OpPause)
}

func TestShell_ShuffleAndRepeat(t *testing.T) {
	h := newShellHarness(t)

	assert.Equal(t, "Shuffle: on\n", h.run(t, "shuffle"))
	assert.Equal(t, "Shuffle: off\n", h.run(t, "shuffle"))
	assert.Equal(t, "Repeat: all\n", h.run(t, "repeat"))
	assert.Equal(t, "Repeat: one\n", h.run(t, "repeat"))
	assert.Equal(t, "Repeat: none\n", h.run(t, "repeat"))
}

func TestShell_SearchAndPick(t *testing.T) {
	h := newShellHarness(t)
	h.conn.reply(protocol.OpSearch, twoResults)

	out := h.run(t, "search daft punk")
	assert.Equal(t, " 1. A - One (1:01)\n 2. B - Two\n", out)

	h.run(t, "pick 2")
	assert.Contains(t, h.conn.opcodes(), protocol.OpPlayTrack)
	assert.ErrorContains(t, h.sh.exec(h.ctx, "pick 1"), "no search result")
}

func TestShell_SearchTimesOut(t *testing.T) {
	h := newShellHarness(t)
	h.sh.timeout = 50 * time.Millisecond

	assert.ErrorContains(t, h.sh.exec(h.ctx, "search nothing"), "no answer")
}

func TestShell_PlaylistFlow(t *testing.T) {
	h := newShellHarness(t)
	h.conn.reply(protocol.OpSearch, twoResults)

	assert.Contains(t, h.run(t, "create Road Trip"), "Created ")
	h.run(t, "search anything")
	h.run(t, "add 1 Road Trip")
	h.run(t, "add 2 Road Trip")
	h.run(t, "add 2 Road Trip") // duplicate is ignored

	out := h.run(t, "playlists")
	assert.Contains(t, out, "Road Trip (2 tracks)")
	assert.NotContains(t, out, "*")

	assert.ErrorContains(t, h.sh.exec(h.ctx, "queue"), "no active playlist")

	h.run(t, "start Road Trip 2")
	assert.Contains(t, h.run(t, "playlists"), "*")
	assert.Equal(t, "Road Trip\n   1. A - One (1:01)\n>  2. B - Two\n", h.run(t, "queue"))

	h.run(t, "track 1")
	assert.Contains(t, h.run(t, "queue"), ">  1. A - One")

	assert.ErrorContains(t, h.sh.exec(h.ctx, "track 9"), "no track 9")
	assert.ErrorContains(t, h.sh.exec(h.ctx, "start Nowhere"), "playlist not found")
	assert.ErrorContains(t, h.sh.exec(h.ctx, "create"), "usage")
}

func TestShell_Lyrics(t *testing.T) {
	h := newShellHarness(t)
	h.playing(t)

	h.conn.reply(protocol.OpLyrics, `{"opcode":801,"lyrics":{"content":"la la la","source":"genius"}}`)
	assert.Equal(t, "la la la\n\n(genius)\n", h.run(t, "lyrics"))
}

func TestShell_LyricsNotFound(t *testing.T) {
	h := newShellHarness(t)
	h.playing(t)

	h.conn.reply(protocol.OpLyrics, `{"opcode":801,"lyrics":null}`)
	assert.Equal(t, "No lyrics found for this track.\n", h.run(t, "lyrics"))
}

func TestShell_Seek(t *testing.T) {
	h := newShellHarness(t)
	h.playing(t)

	// No duration known yet: nothing is sent and seeking is released.
	h.run(t, "seek 50")
	assert.NotContains(t, h.conn.opcodes(), protocol.OpSeek)

	h.conn.push(`{"opcode":202,"position":10000,"duration":200000}`)
	require.Eventually(t, func() bool { return h.statusShows("0:10 / 3:20") }, time.Second, 10*time.Millisecond)

	h.run(t, "seek 50")
	assert.Contains(t, h.conn.opcodes(), protocol.OpSeek)
	assert.Contains(t, h.run(t, "status"), "1:40 / 3:20 (50%)")
}

func TestShell_StatusRequestsLength(t *testing.T) {
	h := newShellHarness(t)
	h.conn.reply(protocol.OpDuration,
		`{"opcode":291,"track":{"trackInfo":{"author":"Artist","title":"Song"},"encoded":"QAAA"},"duration":215000}`)
	h.playing(t)

	require.Eventually(t, func() bool { return h.statusShows("Length: 3:35") }, time.Second, 10*time.Millisecond)
}

func TestShell_Artwork(t *testing.T) {
	h := newShellHarness(t)
	h.conn.reply(protocol.OpImage, `{"opcode":401,"url":"https://img/cover.jpg","base64":"aGk="}`)

	assert.ErrorContains(t, h.sh.exec(h.ctx, "artwork x.jpg"), "no artwork")

	h.conn.push(`{"opcode":200,"current":{"trackInfo":{"author":"Artist","title":"Song","artworkUrl":"https://img/cover.jpg"},"encoded":"QAAA"}}`)
	require.Eventually(t, func() bool { return h.statusShows("Artist - Song") }, time.Second, 10*time.Millisecond)

	file := filepath.Join(t.TempDir(), "cover.jpg")
	assert.Equal(t, "Saved 2 bytes to "+file+"\n", h.run(t, "artwork "+file))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}
