// Package player keeps the local model of the remote player in sync.
//
// A Player reacts to inbound protocol messages and to user commands, and is
// the only component that sends commands to the server. It is not safe for
// concurrent use: the session goroutine owns it.
package player

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/encore/internal/cache"
	"github.com/jfmyers9/encore/internal/playlist"
	"github.com/jfmyers9/encore/internal/protocol"
	"github.com/jfmyers9/encore/internal/store"
	"github.com/jfmyers9/encore/internal/track"
)

// SeekAckGrace is how long position syncs stay suppressed after the server
// acknowledges a seek.
const SeekAckGrace = 2 * time.Second

// Sender writes one encoded message to the server.
type Sender interface {
	Send(data []byte) error
}

// Scheduler runs fn on the session goroutine after d.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

// Queue is the playlist side of the player.
type Queue interface {
	PlayNext()
	PlayPrevious()
	SetShuffle(on bool)
	ClearActivePlaylist()
	HeadlessUpdate(u protocol.HeadlessUpdate)
}

// Deps are the player's collaborators. Store, Durations and Images may be
// nil.
type Deps struct {
	Store     store.KV
	Sender    Sender
	Scheduler Scheduler
	Durations *cache.Durations
	Images    *cache.Images
}

// Player owns State and keeps it consistent with the server.
type Player struct {
	state State
	deps  Deps
	queue Queue
	cell  *store.Cell[Snapshot]

	// unconfirmed holds fields changed locally and not yet reconciled by a
	// status snapshot.
	unconfirmed map[Field]struct{}

	// lyricsFor is the identity of the song lyrics were last requested for.
	lyricsFor string

	logger zerolog.Logger
}

// New creates a player, restoring the persisted snapshot from deps.Store.
func New(deps Deps, logger zerolog.Logger) *Player {
	logger = logger.With().Str("component", "player").Logger()
	if deps.Durations == nil {
		deps.Durations = cache.NewDurations()
	}

	p := &Player{
		deps:        deps,
		cell:        store.NewCell[Snapshot](deps.Store, store.PlayerStateKey, logger),
		unconfirmed: map[Field]struct{}{},
		logger:      logger,
	}
	p.state = restore(p.cell.Load(snapshotOf(DefaultState())))

	if deps.Images != nil {
		deps.Images.SetRequester(p)
	}
	return p
}

// AttachQueue connects the playlist manager. It must be called before any
// message is handled.
func (p *Player) AttachQueue(q Queue) {
	p.queue = q
}

// SetSender replaces the transport used to send commands.
func (p *Player) SetSender(s Sender) {
	p.deps.Sender = s
}

// State returns a snapshot of the current state.
func (p *Player) State() State {
	return p.state
}

// Shuffle reports whether shuffle is on.
func (p *Player) Shuffle() bool {
	return p.state.Shuffle
}

// RepeatMode returns the current repeat mode.
func (p *Player) RepeatMode() playlist.RepeatMode {
	return p.state.RepeatMode
}

// Connected reports whether commands can be sent.
func (p *Player) Connected() bool {
	return p.state.Connection == Connected
}

func (p *Player) commit(next State) {
	p.state = next
	p.cell.Save(snapshotOf(next))
}

// Send encodes and sends cmd. Commands issued while not connected are
// dropped with a warning; nothing is queued or retried.
func (p *Player) Send(cmd protocol.Command) bool {
	if p.state.Connection != Connected || p.deps.Sender == nil {
		p.logger.Warn().Str("opcode", cmd.Opcode().String()).Msg("Cannot send command, not connected")
		return false
	}

	data, err := protocol.Encode(cmd)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to encode command")
		return false
	}

	if err := p.deps.Sender.Send(data); err != nil {
		p.logger.Warn().Err(err).Str("opcode", cmd.Opcode().String()).Msg("Failed to send command")
		return false
	}

	p.logger.Debug().Str("opcode", cmd.Opcode().String()).Msg("Sent command")
	return true
}

// Connecting marks the start of a connection attempt.
func (p *Player) Connecting() {
	next := p.state
	next.Connection = Connecting
	p.commit(next)
}

// OnOpen handles an established connection: register, then re-assert the
// local volume.
func (p *Player) OnOpen() {
	p.logger.Info().Msg("Connected to player")

	next := p.state
	next.Connection = Connected
	p.commit(next)

	p.Send(protocol.Register{})
	p.ChangeVolume(p.state.Volume)
}

// OnClose handles the connection going away. The active playlist is
// released since the server may now be driving it.
func (p *Player) OnClose() {
	if p.queue != nil {
		p.queue.ClearActivePlaylist()
	}
	p.logger.Info().Msg("Disconnected from player")
	p.disconnect()
}

// OnError handles a transport failure.
func (p *Player) OnError(err error) {
	p.logger.Error().Err(err).Msg("Connection error")
	p.disconnect()
}

func (p *Player) disconnect() {
	next := p.state
	next.Connection = Disconnected
	next.IsPlaying = false
	next.CurrentSong = track.None
	p.commit(next)
	clear(p.unconfirmed)
}

// Duration returns the cached length of t.
func (p *Player) Duration(t track.Track) (time.Duration, bool) {
	return p.deps.Durations.Duration(t.ID())
}

// RequestDuration asks the server for the length of t unless it is cached.
func (p *Player) RequestDuration(t track.Track) {
	if !p.Connected() {
		return
	}
	if _, ok := p.Duration(t); ok {
		return
	}
	p.Send(protocol.RequestDuration{Track: t})
}

// Image returns artwork for url, requesting it from the server on a miss.
func (p *Player) Image(ctx context.Context, url string) ([]byte, bool) {
	if p.deps.Images == nil {
		return nil, false
	}
	return p.deps.Images.Get(ctx, url)
}
