package player

import (
	"slices"
)

// Field names a piece of State that can be changed ahead of the server.
type Field string

const (
	FieldPlaying  Field = "isPlaying"
	FieldVolume   Field = "volume"
	FieldPosition Field = "position"
)

// optimistic records that f was applied locally and awaits confirmation.
func (p *Player) optimistic(f Field) {
	p.unconfirmed[f] = struct{}{}
}

// Unconfirmed returns the fields changed locally since the last status
// snapshot, sorted by name.
func (p *Player) Unconfirmed() []Field {
	out := make([]Field, 0, len(p.unconfirmed))
	for f := range p.unconfirmed {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// reconcile clears the optimistic marks once a status snapshot has been
// merged. Disagreements are only logged: the snapshot already won.
func (p *Player) reconcile(local State, s statusView) {
	for f := range p.unconfirmed {
		switch f {
		case FieldPlaying:
			if s.playing != nil && *s.playing != local.IsPlaying {
				p.logger.Debug().Bool("local", local.IsPlaying).Bool("server", *s.playing).Msg("Server overrode optimistic play state")
			}
		case FieldVolume:
			if s.volume != nil && *s.volume != local.Volume {
				p.logger.Debug().Int("local", local.Volume).Int("server", *s.volume).Msg("Server overrode optimistic volume")
			}
		}
	}
	clear(p.unconfirmed)
}

// statusView is the subset of a status snapshot used for reconciliation.
type statusView struct {
	playing *bool
	volume  *int
}
