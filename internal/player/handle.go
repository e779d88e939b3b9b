package player

import (
	"context"
	"time"

	"github.com/jfmyers9/encore/internal/playlist"
	"github.com/jfmyers9/encore/internal/protocol"
	"github.com/jfmyers9/encore/internal/track"
)

// Handle decodes and applies one inbound message. Malformed messages are
// logged once and leave the state untouched.
func (p *Player) Handle(raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		p.logger.Error().Err(err).Int("bytes", len(raw)).Msg("Dropping malformed message")
		return
	}
	p.Apply(msg)
}

// Apply handles a decoded inbound message.
func (p *Player) Apply(msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.CommandFailed:
		p.logger.Error().Str("packet", m.PacketOpcode.String()).Msg("Command failed")

	case protocol.CommandAcked:
		p.onAck(m)

	case protocol.StatusSnapshot:
		p.onStatus(m)

	case protocol.LyricsResult:
		p.onLyrics(m)

	case protocol.PositionSync:
		p.onPosition(m)

	case protocol.SearchResults:
		next := p.state
		next.SearchResults = m.Tracks
		if next.SearchResults == nil {
			next.SearchResults = []track.Track{}
		}
		p.commit(next)

	case protocol.HeadlessUpdate:
		if p.queue != nil {
			p.queue.HeadlessUpdate(m)
		}

	case protocol.TrackEnded:
		p.onTrackEnded()

	case protocol.ImageFetched:
		if p.deps.Images != nil {
			p.deps.Images.Fill(context.Background(), m.URL, m.Payload)
		}

	case protocol.DurationFetched:
		if m.Track == nil || m.Duration <= 0 {
			return
		}
		p.deps.Durations.Set(m.Track.ID(), time.Duration(m.Duration)*time.Millisecond)

	case protocol.Unknown:
		p.logger.Warn().Int("opcode", int(m.Code)).Msg("Received unknown opcode from server")

	default:
		p.logger.Warn().Str("opcode", msg.Opcode().String()).Msg("Unhandled message")
	}
}

func (p *Player) onAck(m protocol.CommandAcked) {
	if m.PacketOpcode != protocol.OpSeek {
		p.logger.Debug().Str("packet", m.PacketOpcode.String()).Msg("Command acknowledged")
		return
	}

	p.logger.Debug().Msg("Seek acknowledged, resuming sync shortly")
	if p.deps.Scheduler == nil {
		p.StopSeeking()
		return
	}
	p.deps.Scheduler.AfterFunc(SeekAckGrace, p.StopSeeking)
}

// onStatus merges a status snapshot. It is the only place a song change is
// recognised.
func (p *Player) onStatus(m protocol.StatusSnapshot) {
	local := p.state
	next := p.state

	if m.Playing != nil && m.Paused != nil {
		next.IsPlaying = *m.Playing && !*m.Paused
	}
	if m.Volume != nil {
		next.Volume = clampVolume(*m.Volume)
	}
	if m.Headless != nil {
		next.Headless = *m.Headless
	}

	if m.Current != nil && m.Current.ID() != local.CurrentSong.ID() {
		p.logger.Info().Str("author", m.Current.Info.Author).Str("title", m.Current.Info.Title).Msg("New song detected")
		next.CurrentSong = *m.Current
		next.CurrentTime = 0
		next.Duration = 0
		next.Progress = 0
		next.Lyrics = Lyrics{}
		p.lyricsFor = ""
	}

	p.commit(next)

	view := statusView{volume: m.Volume}
	if m.Playing != nil && m.Paused != nil {
		playing := next.IsPlaying
		view.playing = &playing
	}
	p.reconcile(local, view)
}

// onLyrics applies a lyrics result if it answers the outstanding request for
// the current song. Anything else is stale.
func (p *Player) onLyrics(m protocol.LyricsResult) {
	if !p.state.Lyrics.Loading || p.lyricsFor != p.state.CurrentSong.ID() {
		p.logger.Debug().Msg("Discarding stale lyrics")
		return
	}

	next := p.state
	if m.Content != "" && m.Source != "" {
		next.Lyrics = Lyrics{Content: m.Content, Source: m.Source}
	} else {
		next.Lyrics = Lyrics{Error: NoLyricsError}
	}
	p.lyricsFor = ""
	p.commit(next)
}

func (p *Player) onPosition(m protocol.PositionSync) {
	if p.state.IsSeeking {
		return
	}
	next := p.state
	next.CurrentTime, next.Duration, next.Progress = position(m.Position, m.Duration)
	p.commit(next)
}

func (p *Player) onTrackEnded() {
	if p.state.Headless {
		return
	}

	if p.state.RepeatMode == playlist.RepeatOne {
		if !p.state.CurrentSong.Playable() {
			p.logger.Debug().Msg("Track ended with nothing to repeat")
			return
		}
		p.logger.Debug().Msg("Track ended, repeating current song")
		p.PlaySong(p.state.CurrentSong)
		return
	}

	if p.queue != nil {
		p.logger.Debug().Msg("Track ended, advancing queue")
		p.queue.PlayNext()
	}
}
