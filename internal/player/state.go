package player

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/encore/internal/playlist"
	"github.com/jfmyers9/encore/internal/store"
	"github.com/jfmyers9/encore/internal/track"
)

// Defaults applied to a fresh player.
const (
	DefaultVolume = 75
	NoLyricsError = "No lyrics found for this track."
)

// Connection is the state of the link to the remote player.
type Connection int

const (
	Disconnected Connection = iota
	Connecting
	Connected
)

func (c Connection) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Lyrics is idle when every field is zero. Otherwise exactly one of
// Loading, Error or Content+Source is set.
type Lyrics struct {
	Content string `json:"content,omitempty"`
	Source  string `json:"source,omitempty"`
	Loading bool   `json:"loading,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Idle reports whether no lyrics are loaded, loading or failed.
func (l Lyrics) Idle() bool {
	return l == Lyrics{}
}

// Loaded reports whether lyrics are available.
func (l Lyrics) Loaded() bool {
	return l.Content != "" && l.Source != ""
}

// State is the player's view of the remote player. A State returned by
// Player.State is a snapshot; it is never modified afterwards.
type State struct {
	Connection  Connection
	CurrentSong track.Track

	// Transport position. Progress is a percentage in [0, 100] and is 0
	// whenever Duration is not positive.
	CurrentTime float64
	Duration    float64
	Progress    float64

	IsPlaying bool
	IsSeeking bool

	Volume     int
	LastVolume int

	Shuffle    bool
	RepeatMode playlist.RepeatMode

	Lyrics   Lyrics
	Headless bool

	SearchResults []track.Track
}

// DefaultState is the state of a player that has never connected.
func DefaultState() State {
	return State{
		Connection:    Disconnected,
		CurrentSong:   track.None,
		Volume:        DefaultVolume,
		LastVolume:    DefaultVolume,
		RepeatMode:    playlist.RepeatNone,
		SearchResults: []track.Track{},
	}
}

// Snapshot is the persisted part of State.
type Snapshot struct {
	CurrentSong   track.Track         `json:"currentSong"`
	IsPlaying     bool                `json:"isPlaying"`
	Volume        int                 `json:"volume"`
	LastVolume    int                 `json:"lastVolume"`
	Shuffle       bool                `json:"shuffle"`
	RepeatMode    playlist.RepeatMode `json:"repeatMode"`
	Headless      bool                `json:"headless"`
	SearchResults []track.Track       `json:"searchResults"`
}

func snapshotOf(s State) Snapshot {
	return Snapshot{
		CurrentSong:   s.CurrentSong,
		IsPlaying:     s.IsPlaying,
		Volume:        s.Volume,
		LastVolume:    s.LastVolume,
		Shuffle:       s.Shuffle,
		RepeatMode:    s.RepeatMode,
		Headless:      s.Headless,
		SearchResults: s.SearchResults,
	}
}

// restore builds a State from a snapshot. Fields that cannot have survived
// a restart (connection, transport position, seeking, playing, headless and
// lyrics) keep their defaults.
func restore(snap Snapshot) State {
	s := DefaultState()
	s.CurrentSong = snap.CurrentSong
	s.Volume = clampVolume(snap.Volume)
	s.LastVolume = clampVolume(snap.LastVolume)
	if s.LastVolume == 0 {
		s.LastVolume = DefaultVolume
	}
	s.Shuffle = snap.Shuffle
	if snap.RepeatMode.Valid() {
		s.RepeatMode = snap.RepeatMode
	}
	if snap.SearchResults != nil {
		s.SearchResults = snap.SearchResults
	}
	return s
}

// LoadSnapshot reads the last persisted player snapshot without starting a
// player. Missing or unreadable data yields the defaults.
func LoadSnapshot(kv store.KV, logger zerolog.Logger) Snapshot {
	return store.NewCell[Snapshot](kv, store.PlayerStateKey, logger).Load(snapshotOf(DefaultState()))
}

func clampVolume(v int) int {
	return min(max(v, 0), 100)
}

// position converts a position report in milliseconds into seconds and a
// progress percentage. A non-positive duration yields zero duration and
// zero progress.
func position(positionMs, durationMs float64) (current, duration, progress float64) {
	if math.IsNaN(positionMs) || positionMs < 0 {
		positionMs = 0
	}
	current = positionMs / 1000
	if math.IsNaN(durationMs) || durationMs <= 0 {
		return current, 0, 0
	}
	return current, durationMs / 1000, clampPercent(positionMs / durationMs * 100)
}

func clampPercent(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	return math.Min(p, 100)
}
