package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"github.com/jfmyers9/encore/internal/track"
)

// Inbound is a decoded server message. The set of implementations is closed;
// switch over the concrete types to handle them.
type Inbound interface {
	Opcode() Opcode
	inbound()
}

// CommandFailed reports that the server rejected a command.
type CommandFailed struct {
	PacketOpcode Opcode
}

// CommandAcked reports that the server accepted a command.
type CommandAcked struct {
	PacketOpcode Opcode
}

// StatusSnapshot is a full or partial player state from the server.
// Nil fields were absent from the message.
type StatusSnapshot struct {
	Playing  *bool
	Paused   *bool
	Volume   *int
	Headless *bool
	Current  *track.Track
}

// PositionSync reports the transport position in milliseconds.
type PositionSync struct {
	Position float64
	Duration float64
}

// TrackEnded reports that the current track finished playing.
type TrackEnded struct{}

// SearchResults carries the tracks matching a search query.
type SearchResults struct {
	Tracks []track.Track
}

// LyricsResult answers a lyrics request. Empty fields mean nothing was found.
type LyricsResult struct {
	Content string
	Source  string
}

// HeadlessUpdate is pushed while the server drives playback on its own.
type HeadlessUpdate struct {
	PlaylistID   string `json:"playlistId"`
	CurrentIndex int    `json:"currentIndex"`
}

// ImageFetched delivers artwork as base64 text.
type ImageFetched struct {
	URL     string
	Payload string
}

// DurationFetched delivers the length of a track in milliseconds.
type DurationFetched struct {
	Track    *track.Track
	Duration int64
}

// Unknown is any message whose opcode this client does not understand.
type Unknown struct {
	Code Opcode
	Raw  json.RawMessage
}

func (CommandFailed) Opcode() Opcode   { return OpCommandFailed }
func (CommandAcked) Opcode() Opcode    { return OpCommandAcked }
func (StatusSnapshot) Opcode() Opcode  { return OpStatus }
func (PositionSync) Opcode() Opcode    { return OpPositionSync }
func (TrackEnded) Opcode() Opcode      { return OpTrackEnded }
func (SearchResults) Opcode() Opcode   { return OpSearch }
func (LyricsResult) Opcode() Opcode    { return OpLyrics }
func (HeadlessUpdate) Opcode() Opcode  { return OpHeadlessUpdate }
func (ImageFetched) Opcode() Opcode    { return OpImage }
func (DurationFetched) Opcode() Opcode { return OpDuration }
func (u Unknown) Opcode() Opcode       { return u.Code }

func (CommandFailed) inbound()   {}
func (CommandAcked) inbound()    {}
func (StatusSnapshot) inbound()  {}
func (PositionSync) inbound()    {}
func (TrackEnded) inbound()      {}
func (SearchResults) inbound()   {}
func (LyricsResult) inbound()    {}
func (HeadlessUpdate) inbound()  {}
func (ImageFetched) inbound()    {}
func (DurationFetched) inbound() {}
func (Unknown) inbound()         {}

type packetRef struct {
	PacketOpcode Opcode `json:"packetOpcode"`
}

type wireStatus struct {
	Playing  *bool `json:"playing"`
	Paused   *bool `json:"paused"`
	Volume   *int  `json:"volume"`
	Headless *bool `json:"headless"`
	Current  *struct {
		Info    *track.Info `json:"trackInfo"`
		Encoded string      `json:"encoded"`
	} `json:"current"`
}

type wirePosition struct {
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}

type wireResult struct {
	Track track.Track `json:"track"`
}

type wireSearch struct {
	Results []wireResult `json:"results"`
}

type wireLyrics struct {
	Lyrics *struct {
		Content string `json:"content"`
		Source  string `json:"source"`
	} `json:"lyrics"`
}

type wireHeadless struct {
	Data *HeadlessUpdate `json:"data"`
}

type wireImage struct {
	URL    string `json:"url"`
	Base64 string `json:"base64"`
}

type wireDuration struct {
	Track    *track.Track `json:"track"`
	Duration int64        `json:"duration"`
}

// Decode parses one inbound message. It returns an error wrapping
// ErrMalformed when the text is not a JSON object with an opcode, or when a
// known opcode carries fields of the wrong type.
func Decode(data []byte) (Inbound, error) {
	var env struct {
		Opcode *Opcode `json:"opcode"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Opcode == nil {
		return nil, fmt.Errorf("%w: missing opcode", ErrMalformed)
	}

	op := *env.Opcode
	switch op {
	case OpCommandFailed:
		m, err := decodeAs[packetRef](data, op)
		if err != nil {
			return nil, err
		}
		return CommandFailed(m), nil

	case OpCommandAcked:
		m, err := decodeAs[packetRef](data, op)
		if err != nil {
			return nil, err
		}
		return CommandAcked(m), nil

	case OpStatus:
		m, err := decodeAs[wireStatus](data, op)
		if err != nil {
			return nil, err
		}
		s := StatusSnapshot{
			Playing:  m.Playing,
			Paused:   m.Paused,
			Volume:   m.Volume,
			Headless: m.Headless,
		}
		if m.Current != nil && m.Current.Info != nil {
			s.Current = &track.Track{Info: *m.Current.Info, Encoded: m.Current.Encoded}
		}
		return s, nil

	case OpPositionSync:
		m, err := decodeAs[wirePosition](data, op)
		if err != nil {
			return nil, err
		}
		return PositionSync(m), nil

	case OpTrackEnded:
		return TrackEnded{}, nil

	case OpSearch:
		m, err := decodeAs[wireSearch](data, op)
		if err != nil {
			return nil, err
		}
		tracks := lo.Map(m.Results, func(r wireResult, _ int) track.Track {
			return r.Track
		})
		return SearchResults{Tracks: tracks}, nil

	case OpLyrics:
		m, err := decodeAs[wireLyrics](data, op)
		if err != nil {
			return nil, err
		}
		if m.Lyrics == nil {
			return LyricsResult{}, nil
		}
		return LyricsResult{Content: m.Lyrics.Content, Source: m.Lyrics.Source}, nil

	case OpHeadlessUpdate:
		m, err := decodeAs[wireHeadless](data, op)
		if err != nil {
			return nil, err
		}
		if m.Data == nil {
			return nil, fmt.Errorf("%w: %s without data", ErrMalformed, op)
		}
		return *m.Data, nil

	case OpImage:
		m, err := decodeAs[wireImage](data, op)
		if err != nil {
			return nil, err
		}
		return ImageFetched{URL: m.URL, Payload: m.Base64}, nil

	case OpDuration:
		m, err := decodeAs[wireDuration](data, op)
		if err != nil {
			return nil, err
		}
		return DurationFetched(m), nil

	default:
		return Unknown{Code: op, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

func decodeAs[T any](data []byte, op Opcode) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrMalformed, op, err)
	}
	return v, nil
}
