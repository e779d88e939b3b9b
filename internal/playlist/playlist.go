// Package playlist owns the user's playlists and the active queue.
//
// The active queue is either the active playlist in its own order or, while
// shuffle is on, a shuffled copy whose first entry is the track that was
// playing when shuffle was turned on. The Manager decides what plays next
// and asks the player to play it.
package playlist

import (
	"slices"

	"github.com/jfmyers9/encore/internal/track"
)

// CreatedByUser marks playlists created from this client.
const CreatedByUser = "User"

// RepeatMode controls what happens at the end of a track or queue.
type RepeatMode string

const (
	RepeatNone RepeatMode = "none"
	RepeatAll  RepeatMode = "all"
	RepeatOne  RepeatMode = "one"
)

// Next cycles none -> all -> one -> none.
func (r RepeatMode) Next() RepeatMode {
	switch r {
	case RepeatAll:
		return RepeatOne
	case RepeatOne:
		return RepeatNone
	default:
		return RepeatAll
	}
}

// Valid reports whether r is a known mode.
func (r RepeatMode) Valid() bool {
	return r == RepeatNone || r == RepeatAll || r == RepeatOne
}

// Playlist is a named, ordered list of tracks.
type Playlist struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Tracks    []track.Track `json:"tracks"`
	CreatedBy string        `json:"createdBy"`
}

// State is the persisted playlist store. Values are never modified in place
// once published; every change builds a new State.
type State struct {
	Playlists        []Playlist    `json:"playlists"`
	ActivePlaylistID string        `json:"activePlaylistId"`
	ActiveTrackIndex int           `json:"activeTrackIndex"`
	ShuffledQueue    []track.Track `json:"shuffledQueue"`
}

// DefaultState is the state before anything has been created or played.
func DefaultState() State {
	return State{
		Playlists:        []Playlist{},
		ActiveTrackIndex: -1,
		ShuffledQueue:    []track.Track{},
	}
}

// find returns the playlist with id.
func (s State) find(id string) (Playlist, int, bool) {
	if id == "" {
		return Playlist{}, -1, false
	}
	i := slices.IndexFunc(s.Playlists, func(p Playlist) bool { return p.ID == id })
	if i < 0 {
		return Playlist{}, -1, false
	}
	return s.Playlists[i], i, true
}

// active returns the active playlist, if any.
func (s State) active() (Playlist, bool) {
	p, _, ok := s.find(s.ActivePlaylistID)
	return p, ok
}

// queue returns the effective queue for the given shuffle mode.
func (s State) queue(shuffle bool) []track.Track {
	p, ok := s.active()
	if !ok {
		return nil
	}
	if shuffle {
		return s.ShuffledQueue
	}
	return p.Tracks
}

// withPlaylist returns a copy of s with the playlist at i replaced by p.
func (s State) withPlaylist(i int, p Playlist) State {
	next := s
	next.Playlists = slices.Clone(s.Playlists)
	next.Playlists[i] = p
	return next
}
