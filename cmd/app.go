package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/encore/internal/cache"
	"github.com/jfmyers9/encore/internal/config"
	"github.com/jfmyers9/encore/internal/player"
	"github.com/jfmyers9/encore/internal/playlist"
	"github.com/jfmyers9/encore/internal/session"
	"github.com/jfmyers9/encore/internal/store"
	"github.com/jfmyers9/encore/internal/track"
	"github.com/jfmyers9/encore/internal/transport"
)

// eventBuffer is the capacity of the transport event channel.
const eventBuffer = 64

// app bundles the long-lived pieces a command needs.
type app struct {
	cfg     *config.Config
	db      *store.DB
	session *session.Session
	logger  zerolog.Logger
}

// openStore loads configuration and opens the state database.
func openStore() (*config.Config, *store.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	path, err := cfg.DBPath()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := store.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state database: %w", err)
	}
	return cfg, db, nil
}

// newApp wires the store, caches, transport and session together.
func newApp(logger zerolog.Logger) (*app, error) {
	cfg, db, err := openStore()
	if err != nil {
		return nil, err
	}

	images, err := cache.NewImages(cfg.ImageCacheSize, db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}

	events := make(chan transport.Event, eventBuffer)
	client := transport.NewClient(cfg.ServerURL, events, logger)

	var beacon session.Beacon
	if cfg.BeaconURL != "" {
		beacon = transport.NewBeacon(cfg.BeaconURL, logger)
	}

	s := session.New(session.Config{
		ConnectTimeout: cfg.ConnectTimeout,
		BeaconGrace:    cfg.BeaconGrace,
	}, session.Deps{
		Store:  db,
		Images: images,
		Conn:   client,
		Events: events,
		Beacon: beacon,
	}, logger)

	return &app{cfg: cfg, db: db, session: s, logger: logger}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close state database")
	}
}

// withSession connects, waits for the handshake, runs fn and then tears the
// session down.
func withSession(ctx context.Context, fn func(ctx context.Context, s *session.Session) error) error {
	logger := setupLogger(logFile, logLevel)

	a, err := newApp(logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- a.session.RunContext(ctx)
	}()

	select {
	case <-a.session.Ready():
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return fmt.Errorf("failed to connect to %s: %w", a.cfg.ServerURL, ctx.Err())
	}

	fnErr := fn(ctx, a.session)

	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return fnErr
}

// offlinePlayer lets a playlist manager run without a connection, using the
// persisted shuffle and repeat settings.
type offlinePlayer struct {
	snap player.Snapshot
}

func (o offlinePlayer) PlaySong(track.Track)            {}
func (o offlinePlayer) Shuffle() bool                   { return o.snap.Shuffle }
func (o offlinePlayer) RepeatMode() playlist.RepeatMode { return o.snap.RepeatMode }

// withPlaylists opens the store and runs fn against a manager that is not
// connected to the server.
func withPlaylists(fn func(m *playlist.Manager) error) error {
	logger := setupLogger(logFile, logLevel)

	_, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	snap := player.LoadSnapshot(db, logger)
	return fn(playlist.NewManager(db, offlinePlayer{snap: snap}, logger))
}

// loadSnapshot reads the persisted player state without connecting.
func loadSnapshot() (player.Snapshot, error) {
	logger := setupLogger(logFile, logLevel)

	_, db, err := openStore()
	if err != nil {
		return player.Snapshot{}, err
	}
	defer db.Close()

	return player.LoadSnapshot(db, logger), nil
}
