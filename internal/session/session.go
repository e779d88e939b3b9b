// Package session runs the single event loop that owns the player and the
// playlist manager.
//
// Transport events, user calls and timer callbacks are all funnelled into
// one goroutine and handled to completion in arrival order, so the player
// and manager never see concurrent access.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/encore/internal/cache"
	"github.com/jfmyers9/encore/internal/player"
	"github.com/jfmyers9/encore/internal/playlist"
	"github.com/jfmyers9/encore/internal/protocol"
	"github.com/jfmyers9/encore/internal/store"
	"github.com/jfmyers9/encore/internal/transport"
)

// ErrStopped is returned by Do and WaitFor once the loop has exited.
var ErrStopped = errors.New("session: stopped")

// Conn is the websocket side of the session.
type Conn interface {
	Connect(ctx context.Context) error
	Send(data []byte) error
	Close() error
}

// Beacon delivers the hand-off packet when the session ends.
type Beacon interface {
	Send(cmd protocol.Command) <-chan struct{}
}

// Config holds session timing
type Config struct {
	ConnectTimeout time.Duration // How long to wait for the websocket handshake
	BeaconGrace    time.Duration // How long teardown waits for the beacon
}

// Deps are the session's collaborators. Store, Images and Beacon may be nil.
type Deps struct {
	Store  store.KV
	Images *cache.Images
	Conn   Conn
	Events <-chan transport.Event
	Beacon Beacon
}

// Op is a unit of work run on the session goroutine.
type Op func(p *player.Player, m *playlist.Manager)

// Session owns the player and playlist manager and drives them from one
// goroutine.
type Session struct {
	config    Config
	conn      Conn
	events    <-chan transport.Event
	beacon    Beacon
	player    *player.Player
	playlists *playlist.Manager

	calls   chan func()
	ready   chan struct{}
	stopped chan struct{}
	waiters []waiter

	logger zerolog.Logger
}

type waiter struct {
	ctx  context.Context
	cond func(p *player.Player, m *playlist.Manager) bool
	done chan struct{}
}

// New builds a session, restoring player and playlist state from
// deps.Store.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Session {
	s := &Session{
		config:  cfg,
		conn:    deps.Conn,
		events:  deps.Events,
		beacon:  deps.Beacon,
		calls:   make(chan func()),
		ready:   make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger.With().Str("component", "session").Logger(),
	}

	s.player = player.New(player.Deps{
		Store:     deps.Store,
		Sender:    deps.Conn,
		Scheduler: s,
		Images:    deps.Images,
	}, logger)
	s.playlists = playlist.NewManager(deps.Store, s.player, logger)
	s.player.AttachQueue(s.playlists)

	return s
}

// AfterFunc runs fn on the session goroutine after d. Callbacks that fire
// after the loop has exited are dropped.
func (s *Session) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		select {
		case s.calls <- fn:
		case <-s.stopped:
		}
	})
}

// Ready is closed once the connection has opened.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Do runs op on the session goroutine and waits for it to finish.
func (s *Session) Do(ctx context.Context, op Op) error {
	done := make(chan struct{})
	fn := func() {
		defer close(done)
		op(s.player, s.playlists)
	}

	select {
	case s.calls <- fn:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitFor blocks until cond holds. cond runs on the session goroutine, now
// and after every event until it returns true or ctx is done. Once WaitFor
// has returned, cond is not called again.
func (s *Session) WaitFor(ctx context.Context, cond func(p *player.Player, m *playlist.Manager) bool) error {
	done := make(chan struct{})
	register := func() {
		if ctx.Err() != nil {
			return
		}
		if cond(s.player, s.playlists) {
			close(done)
			return
		}
		s.waiters = append(s.waiters, waiter{ctx: ctx, cond: cond, done: done})
	}

	select {
	case s.calls <- register:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run connects and runs the loop until a shutdown signal is received.
func (s *Session) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		s.logger.Info().Msg("Shutdown signal received, closing session")
		cancel()

		select {
		case <-sigChan:
			s.logger.Warn().Msg("Second shutdown signal received, forcing exit")
			os.Exit(1)
		case <-s.stopped:
		}
	}()

	return s.RunContext(ctx)
}

// RunContext connects and runs the loop until ctx is done, then tears the
// session down.
func (s *Session) RunContext(ctx context.Context) error {
	defer close(s.stopped)

	if err := s.connect(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return nil
		case ev := <-s.events:
			s.dispatch(ev)
		case fn := <-s.calls:
			fn()
		}
		s.notify()
	}
}

func (s *Session) connect(ctx context.Context) error {
	s.player.Connecting()

	dialCtx := ctx
	if s.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.config.ConnectTimeout)
		defer cancel()
	}

	if err := s.conn.Connect(dialCtx); err != nil {
		s.player.OnError(err)
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (s *Session) dispatch(ev transport.Event) {
	switch ev.Kind {
	case transport.EventOpen:
		s.player.OnOpen()
		select {
		case <-s.ready:
		default:
			close(s.ready)
		}
	case transport.EventMessage:
		s.player.Handle(ev.Data)
	case transport.EventError:
		s.player.OnError(ev.Err)
	case transport.EventClose:
		s.player.OnClose()
	}
}

func (s *Session) notify() {
	if len(s.waiters) == 0 {
		return
	}
	kept := s.waiters[:0]
	for _, w := range s.waiters {
		if w.ctx.Err() != nil {
			continue
		}
		if w.cond(s.player, s.playlists) {
			close(w.done)
			continue
		}
		kept = append(kept, w)
	}
	clear(s.waiters[len(kept):])
	s.waiters = kept
}

// teardown hands an active playlist over to the server, then closes the
// connection. The beacon gets at most BeaconGrace to go out.
func (s *Session) teardown() {
	if s.beacon != nil && !s.player.State().Headless {
		if pkt, ok := s.playlists.HeadlessPacket(); ok && len(pkt.Data.Tracks) > 0 {
			s.logger.Info().Str("playlist", pkt.Data.PlaylistID).Msg("Handing playlist over to the server")
			select {
			case <-s.beacon.Send(pkt):
			case <-time.After(s.config.BeaconGrace):
				s.logger.Debug().Msg("Beacon still in flight at exit")
			}
		}
	}

	if err := s.conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to close connection")
	}
	s.player.OnClose()
	s.logger.Info().Msg("Session closed")
}
