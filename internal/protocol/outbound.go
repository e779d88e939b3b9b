package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/jfmyers9/encore/internal/track"
)

// Command is an outbound message. The set of implementations is closed.
type Command interface {
	Opcode() Opcode
	command()
}

// Register is the handshake sent right after connecting.
type Register struct{}

// PlayTrack asks the server to play a track.
type PlayTrack struct {
	Track track.Track `json:"track"`
}

// Search asks the server for tracks matching Query.
type Search struct {
	Query string `json:"query"`
}

// SetVolume sets the remote volume (0-100).
type SetVolume struct {
	Volume int `json:"volume"`
}

// Seek moves the transport to an absolute position in milliseconds.
type Seek struct {
	Position int64 `json:"seek"`
}

// RequestLyrics asks for the lyrics of a track.
type RequestLyrics struct {
	Track track.Track `json:"track"`
}

// HeadlessStart describes the queue handed to the server when this client
// goes away.
type HeadlessStart struct {
	Tracks        []track.Track `json:"tracks"`
	RepeatingType string        `json:"repeatingType"`
	PlaylistID    string        `json:"playlistId"`
	CurrentIndex  int           `json:"currentIndex"`
}

// StartHeadless hands playback over to the server. It is only ever sent as
// a beacon, never over the websocket.
type StartHeadless struct {
	Data HeadlessStart `json:"data"`
}

// StopHeadless takes playback back from the server.
type StopHeadless struct{}

// Pause pauses playback.
type Pause struct{}

// Resume resumes playback.
type Resume struct{}

// RequestImage asks the server to fetch artwork on our behalf.
type RequestImage struct {
	URL string `json:"url"`
}

// RequestDuration asks the server for the length of a track.
type RequestDuration struct {
	Track track.Track `json:"track"`
}

func (Register) Opcode() Opcode        { return OpRegister }
func (PlayTrack) Opcode() Opcode       { return OpPlayTrack }
func (Search) Opcode() Opcode          { return OpSearch }
func (SetVolume) Opcode() Opcode       { return OpSetVolume }
func (Seek) Opcode() Opcode            { return OpSeek }
func (RequestLyrics) Opcode() Opcode   { return OpLyrics }
func (StartHeadless) Opcode() Opcode   { return OpStartHeadless }
func (StopHeadless) Opcode() Opcode    { return OpStopHeadless }
func (Pause) Opcode() Opcode           { return OpPause }
func (Resume) Opcode() Opcode          { return OpResume }
func (RequestImage) Opcode() Opcode    { return OpImage }
func (RequestDuration) Opcode() Opcode { return OpDuration }

func (Register) command()        {}
func (PlayTrack) command()       {}
func (Search) command()          {}
func (SetVolume) command()       {}
func (Seek) command()            {}
func (RequestLyrics) command()   {}
func (StartHeadless) command()   {}
func (StopHeadless) command()    {}
func (Pause) command()           {}
func (Resume) command()          {}
func (RequestImage) command()    {}
func (RequestDuration) command() {}

// Encode renders cmd as a flat JSON object with its opcode next to the
// payload fields.
func Encode(cmd Command) ([]byte, error) {
	if cmd == nil {
		return nil, ErrUnknownCommand
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", cmd.Opcode(), err)
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to flatten %s: %w", cmd.Opcode(), err)
	}

	op, err := json.Marshal(cmd.Opcode())
	if err != nil {
		return nil, err
	}
	fields["opcode"] = op

	return json.Marshal(fields)
}
