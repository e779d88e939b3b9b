// Package protocol implements the JSON message envelope spoken with the
// remote player.
//
// Every message in either direction is a single JSON object carrying an
// integer "opcode" next to its payload fields. Inbound messages decode into
// the closed Inbound sum type; outbound messages are Command values.
package protocol

import (
	"errors"
	"strconv"
)

// Opcode selects the meaning of a message.
type Opcode int

// Known opcodes. Some are used in both directions with different payloads.
const (
	OpCommandFailed  Opcode = -1   // in: packetOpcode
	OpCommandAcked   Opcode = -2   // in: packetOpcode
	OpRegister       Opcode = 101  // out
	OpSearch         Opcode = 111  // out: query; in: results
	OpPlayTrack      Opcode = 112  // out: track
	OpSetVolume      Opcode = 117  // out: volume
	OpSeek           Opcode = 118  // out: seek (ms)
	OpStatus         Opcode = 200  // in
	OpTrackEnded     Opcode = 201  // in
	OpPositionSync   Opcode = 202  // in: position, duration (ms)
	OpDuration       Opcode = 291  // out: track; in: track, duration
	OpImage          Opcode = 401  // out: url; in: url, base64
	OpLyrics         Opcode = 801  // out: track; in: lyrics
	OpStartHeadless  Opcode = 901  // out (beacon): data
	OpStopHeadless   Opcode = 902  // out
	OpHeadlessUpdate Opcode = 903  // in: data
	OpPause          Opcode = 1131 // out
	OpResume         Opcode = 1132 // out
)

var opcodeNames = map[Opcode]string{
	OpCommandFailed:  "command-failed",
	OpCommandAcked:   "command-acked",
	OpRegister:       "register",
	OpSearch:         "search",
	OpPlayTrack:      "play-track",
	OpSetVolume:      "set-volume",
	OpSeek:           "seek",
	OpStatus:         "status",
	OpTrackEnded:     "track-ended",
	OpPositionSync:   "position-sync",
	OpDuration:       "duration",
	OpImage:          "image",
	OpLyrics:         "lyrics",
	OpStartHeadless:  "start-headless",
	OpStopHeadless:   "stop-headless",
	OpHeadlessUpdate: "headless-update",
	OpPause:          "pause",
	OpResume:         "resume",
}

// String returns a readable name, falling back to the number.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return strconv.Itoa(int(o))
}

// Repeating types understood by the headless player.
const (
	RepeatingShuffle = "SHUFFLE"
	RepeatingOne     = "REPEAT_ONE"
	RepeatingAll     = "REPEAT_ALL"
)

var (
	// ErrMalformed is returned when an inbound message cannot be parsed.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrUnknownCommand is returned when encoding a nil or foreign command.
	ErrUnknownCommand = errors.New("protocol: unknown command")
)
