package player

import (
	"math"
	"strings"

	"github.com/jfmyers9/encore/internal/protocol"
	"github.com/jfmyers9/encore/internal/track"
)

// PlaySong asks the server to play t and clears the search results.
func (p *Player) PlaySong(t track.Track) {
	p.Send(protocol.PlayTrack{Track: t})
	p.ClearSearchResults()
}

// PlayPauseToggle flips play/pause ahead of the server. Nothing happens
// without a playable song or a connection. The local flip waits on a
// successful send; a disconnect resets the song to None anyway.
func (p *Player) PlayPauseToggle() {
	if !p.state.CurrentSong.Playable() {
		return
	}

	playing := !p.state.IsPlaying
	var cmd protocol.Command = protocol.Pause{}
	if playing {
		cmd = protocol.Resume{}
	}
	if !p.Send(cmd) {
		return
	}

	next := p.state
	next.IsPlaying = playing
	p.commit(next)
	p.optimistic(FieldPlaying)
}

// ToggleShuffle flips shuffle and rebuilds the queue to match.
func (p *Player) ToggleShuffle() {
	next := p.state
	next.Shuffle = !p.state.Shuffle
	p.commit(next)

	if p.queue != nil {
		p.queue.SetShuffle(next.Shuffle)
	}
}

// CycleRepeatMode steps none -> all -> one -> none.
func (p *Player) CycleRepeatMode() {
	next := p.state
	next.RepeatMode = p.state.RepeatMode.Next()
	p.commit(next)
}

// Seek jumps to percent of the current song. The local position moves
// immediately; IsSeeking is left to StartSeeking and StopSeeking.
func (p *Player) Seek(percent float64) {
	if !p.state.CurrentSong.Playable() || p.state.Duration <= 0 || math.IsNaN(percent) {
		return
	}
	percent = clampPercent(percent)

	positionMs := math.Round(p.state.Duration * 1000 * percent / 100)
	if !p.Send(protocol.Seek{Position: int64(positionMs)}) {
		return
	}

	next := p.state
	next.Progress = percent
	next.CurrentTime = p.state.Duration * percent / 100
	p.commit(next)
	p.optimistic(FieldPosition)
}

// StartSeeking suppresses position syncs while the user drags.
func (p *Player) StartSeeking() {
	p.setSeeking(true)
}

// StopSeeking resumes position syncs.
func (p *Player) StopSeeking() {
	p.setSeeking(false)
}

func (p *Player) setSeeking(on bool) {
	if p.state.IsSeeking == on {
		return
	}
	next := p.state
	next.IsSeeking = on
	p.commit(next)
}

// RequestLyrics asks for the current song's lyrics unless a request is
// already in flight.
func (p *Player) RequestLyrics() {
	if !p.state.CurrentSong.Playable() || p.state.Lyrics.Loading {
		return
	}
	if !p.Send(protocol.RequestLyrics{Track: p.state.CurrentSong}) {
		return
	}

	next := p.state
	next.Lyrics = Lyrics{Loading: true}
	p.lyricsFor = p.state.CurrentSong.ID()
	p.commit(next)
}

// Search sends query to the server. A blank query clears the results
// locally instead.
func (p *Player) Search(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		p.ClearSearchResults()
		return
	}
	p.Send(protocol.Search{Query: query})
}

// ClearSearchResults empties the search results.
func (p *Player) ClearSearchResults() {
	if len(p.state.SearchResults) == 0 {
		return
	}
	next := p.state
	next.SearchResults = []track.Track{}
	p.commit(next)
}

// ChangeVolume sets the volume, clamped to [0, 100]. A non-zero volume is
// remembered for unmuting. The local value changes even when offline; it is
// re-sent on the next connect.
func (p *Player) ChangeVolume(v int) {
	v = clampVolume(v)

	next := p.state
	next.Volume = v
	if v > 0 {
		next.LastVolume = v
	}
	p.commit(next)

	if p.Send(protocol.SetVolume{Volume: v}) {
		p.optimistic(FieldVolume)
	}
}

// ToggleMute mutes, or restores the last non-zero volume.
func (p *Player) ToggleMute() {
	v := 0
	if p.state.Volume == 0 {
		v = p.state.LastVolume
	}

	next := p.state
	next.Volume = v
	p.commit(next)

	if p.Send(protocol.SetVolume{Volume: v}) {
		p.optimistic(FieldVolume)
	}
}

// Next advances the queue.
func (p *Player) Next() {
	if p.queue != nil {
		p.queue.PlayNext()
	}
}

// Back steps the queue back.
func (p *Player) Back() {
	if p.queue != nil {
		p.queue.PlayPrevious()
	}
}

// StopHeadless takes playback back from the server.
func (p *Player) StopHeadless() {
	p.Send(protocol.StopHeadless{})
}
