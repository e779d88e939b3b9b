package playlist

import (
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/jfmyers9/encore/internal/protocol"
	"github.com/jfmyers9/encore/internal/store"
	"github.com/jfmyers9/encore/internal/track"
)

// Player is what the Manager needs from the player: a way to play a track
// and the current shuffle and repeat settings.
type Player interface {
	PlaySong(t track.Track)
	Shuffle() bool
	RepeatMode() RepeatMode
}

// Manager owns the playlist State. It is not safe for concurrent use; all
// calls must come from the session goroutine.
type Manager struct {
	state  State
	player Player
	cell   *store.Cell[State]
	rng    *rand.Rand
	newID  func() string
	logger zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRand sets the random source used for shuffling.
func WithRand(r *rand.Rand) Option {
	return func(m *Manager) { m.rng = r }
}

// WithIDs sets the playlist id generator.
func WithIDs(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// NewManager creates a Manager, restoring the last saved state from kv.
// kv may be nil, in which case nothing is persisted.
func NewManager(kv store.KV, player Player, logger zerolog.Logger, opts ...Option) *Manager {
	logger = logger.With().Str("component", "playlist").Logger()
	m := &Manager{
		player: player,
		cell:   store.NewCell[State](kv, store.PlaylistKey, logger),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		newID:  uuid.NewString,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.state = m.cell.Load(DefaultState())
	if m.state.Playlists == nil {
		m.state.Playlists = []Playlist{}
	}
	return m
}

// State returns the current state. The returned value must not be modified.
func (m *Manager) State() State {
	return m.state
}

// Playlists returns all playlists in creation order.
func (m *Manager) Playlists() []Playlist {
	return slices.Clone(m.state.Playlists)
}

// Playlist returns the playlist with id.
func (m *Manager) Playlist(id string) (Playlist, bool) {
	p, _, ok := m.state.find(id)
	return p, ok
}

// Active returns the active playlist, the active index and the effective
// queue. ok is false when no playlist is active.
func (m *Manager) Active() (p Playlist, index int, queue []track.Track, ok bool) {
	p, ok = m.state.active()
	if !ok {
		return Playlist{}, -1, nil, false
	}
	return p, m.state.ActiveTrackIndex, m.state.queue(m.player.Shuffle()), true
}

func (m *Manager) set(next State) {
	m.state = next
	m.cell.Save(next)
}

// CreatePlaylist adds an empty playlist named name. Blank names are ignored.
func (m *Manager) CreatePlaylist(name string) (Playlist, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Playlist{}, false
	}

	p := Playlist{
		ID:        m.newID(),
		Name:      name,
		Tracks:    []track.Track{},
		CreatedBy: CreatedByUser,
	}

	next := m.state
	next.Playlists = append(slices.Clip(m.state.Playlists), p)
	m.set(next)

	m.logger.Info().Str("id", p.ID).Str("name", name).Msg("Created playlist")
	return p, true
}

// AddTrackToPlaylist appends t to the playlist with id unless a track with
// the same playable reference is already in it.
func (m *Manager) AddTrackToPlaylist(id string, t track.Track) {
	p, i, ok := m.state.find(id)
	if !ok {
		m.logger.Warn().Str("id", id).Msg("Playlist not found")
		return
	}

	if lo.ContainsBy(p.Tracks, func(existing track.Track) bool { return existing.Encoded == t.Encoded }) {
		m.logger.Debug().Str("id", id).Str("track", t.ID()).Msg("Track already in playlist")
		return
	}

	p.Tracks = append(slices.Clip(p.Tracks), t)
	m.set(m.state.withPlaylist(i, p))
}

// SetShuffle rebuilds or drops the shuffled queue. Turning shuffle on puts
// the current track first followed by the rest in random order; turning it
// off moves the active index back to the current track's place in the
// playlist.
func (m *Manager) SetShuffle(on bool) {
	next := m.state

	p, ok := m.state.active()
	if !ok {
		next.ShuffledQueue = []track.Track{}
		m.set(next)
		return
	}

	current, hasCurrent := m.current()
	origin := -1
	if hasCurrent {
		_, origin, _ = lo.FindIndexOf(p.Tracks, func(t track.Track) bool { return track.Same(t, current) })
	}

	if on {
		next.ShuffledQueue, next.ActiveTrackIndex = m.buildShuffled(p.Tracks, origin)
		m.set(next)
		return
	}

	next.ShuffledQueue = []track.Track{}
	switch {
	case origin >= 0:
		next.ActiveTrackIndex = origin
	case len(p.Tracks) > 0:
		next.ActiveTrackIndex = 0
	default:
		next.ActiveTrackIndex = -1
	}
	m.set(next)
}

// current returns the track at the active index of the queue that is
// currently in effect, whichever mode that queue was built for.
func (m *Manager) current() (track.Track, bool) {
	p, ok := m.state.active()
	if !ok {
		return track.Track{}, false
	}
	q := p.Tracks
	if len(m.state.ShuffledQueue) > 0 {
		q = m.state.ShuffledQueue
	}
	i := m.state.ActiveTrackIndex
	if i < 0 || i >= len(q) {
		return track.Track{}, false
	}
	return q[i], true
}

// buildShuffled returns [tracks[first], shuffled rest...] and index 0. With
// no valid first every track is shuffled.
func (m *Manager) buildShuffled(tracks []track.Track, first int) ([]track.Track, int) {
	if len(tracks) == 0 {
		return []track.Track{}, -1
	}
	if first < 0 || first >= len(tracks) {
		return m.permute(tracks), 0
	}
	others := lo.Filter(tracks, func(_ track.Track, i int) bool { return i != first })
	return append([]track.Track{tracks[first]}, m.permute(others)...), 0
}

// permute returns a uniformly shuffled copy of tracks (Fisher-Yates).
func (m *Manager) permute(tracks []track.Track) []track.Track {
	out := slices.Clone(tracks)
	for i := len(out) - 1; i > 0; i-- {
		j := m.rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// PlayPlaylist activates the playlist with id starting at startIndex and
// plays the first track of the resulting queue. The queue and the active
// playlist are published together before the track is played.
func (m *Manager) PlayPlaylist(id string, startIndex int) {
	p, _, ok := m.state.find(id)
	if !ok || len(p.Tracks) == 0 {
		m.logger.Error().Str("id", id).Msg("Playlist not found or is empty")
		return
	}
	if startIndex < 0 || startIndex >= len(p.Tracks) {
		m.logger.Error().Str("id", id).Int("index", startIndex).Int("tracks", len(p.Tracks)).Msg("Start index out of range")
		return
	}

	next := m.state
	next.ActivePlaylistID = id

	var first track.Track
	if m.player.Shuffle() {
		next.ShuffledQueue, next.ActiveTrackIndex = m.buildShuffled(p.Tracks, startIndex)
		first = next.ShuffledQueue[0]
	} else {
		next.ShuffledQueue = []track.Track{}
		next.ActiveTrackIndex = startIndex
		first = p.Tracks[startIndex]
	}

	m.set(next)
	m.logger.Info().Str("id", id).Str("name", p.Name).Int("index", next.ActiveTrackIndex).Msg("Playing playlist")
	m.player.PlaySong(first)
}

// PlayNext advances the queue. Past the end it wraps only in repeat-all
// mode; otherwise nothing changes.
func (m *Manager) PlayNext() {
	q := m.state.queue(m.player.Shuffle())
	if len(q) == 0 {
		return
	}

	i := max(m.state.ActiveTrackIndex+1, 0)
	if i >= len(q) {
		if m.player.RepeatMode() != RepeatAll {
			m.logger.Debug().Msg("End of queue, repeat is off")
			return
		}
		i = 0
	}

	m.advance(q, i)
}

// PlayPrevious steps back. Before the start it wraps in repeat-all mode and
// otherwise replays the first track.
func (m *Manager) PlayPrevious() {
	q := m.state.queue(m.player.Shuffle())
	if len(q) == 0 {
		return
	}

	i := m.state.ActiveTrackIndex - 1
	if i >= len(q) {
		i = len(q) - 1
	}
	if i < 0 {
		if m.player.RepeatMode() == RepeatAll {
			i = len(q) - 1
		} else {
			i = 0
		}
	}

	m.advance(q, i)
}

func (m *Manager) advance(q []track.Track, i int) {
	next := m.state
	next.ActiveTrackIndex = i
	m.set(next)
	m.player.PlaySong(q[i])
}

// PlayTrack jumps to index in the effective queue and plays t.
func (m *Manager) PlayTrack(t track.Track, index int) {
	q := m.state.queue(m.player.Shuffle())
	if q == nil {
		m.logger.Warn().Msg("No active playlist")
		return
	}
	if index < 0 || index >= len(q) {
		m.logger.Warn().Int("index", index).Int("queue", len(q)).Msg("Queue index out of range")
		return
	}

	next := m.state
	next.ActiveTrackIndex = index
	m.set(next)
	m.player.PlaySong(t)
}

// ClearActivePlaylist deactivates the active playlist.
func (m *Manager) ClearActivePlaylist() {
	if m.state.ActivePlaylistID == "" && m.state.ActiveTrackIndex == -1 {
		return
	}
	next := m.state
	next.ActivePlaylistID = ""
	next.ActiveTrackIndex = -1
	m.set(next)
}

// HeadlessUpdate adopts the active playlist and index reported by the
// server while it drives playback. Playlists and queues are left alone.
func (m *Manager) HeadlessUpdate(u protocol.HeadlessUpdate) {
	if _, _, ok := m.state.find(u.PlaylistID); !ok && u.PlaylistID != "" {
		m.logger.Warn().Str("id", u.PlaylistID).Msg("Server reported an unknown playlist")
	}
	index := u.CurrentIndex
	if index < -1 {
		m.logger.Warn().Int("index", index).Msg("Server reported a negative queue index")
		index = -1
	}
	next := m.state
	next.ActivePlaylistID = u.PlaylistID
	next.ActiveTrackIndex = index
	m.set(next)
}

// HeadlessPacket builds the hand-off sent when this client goes away: the
// effective queue, the active playlist and index, and the repeat behaviour
// the server should apply. ok is false when no playlist is active.
func (m *Manager) HeadlessPacket() (protocol.StartHeadless, bool) {
	p, ok := m.state.active()
	if !ok {
		return protocol.StartHeadless{}, false
	}

	shuffle := m.player.Shuffle()
	repeating := protocol.RepeatingAll
	switch {
	case shuffle:
		repeating = protocol.RepeatingShuffle
	case m.player.RepeatMode() == RepeatOne:
		repeating = protocol.RepeatingOne
	}

	tracks := m.state.queue(shuffle)
	if tracks == nil {
		tracks = []track.Track{}
	}

	return protocol.StartHeadless{Data: protocol.HeadlessStart{
		Tracks:        tracks,
		RepeatingType: repeating,
		PlaylistID:    p.ID,
		CurrentIndex:  m.state.ActiveTrackIndex,
	}}, true
}
