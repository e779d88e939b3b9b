package track

import (
	"encoding/json"
	"time"
)

// Info holds the metadata the server reports for a track. Keys the server
// sends that are not modelled here are kept and written back unchanged.
type Info struct {
	Identifier string `json:"identifier,omitempty"`
	Author     string `json:"author"`
	Title      string `json:"title"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	URI        string `json:"uri,omitempty"`
	Length     int64  `json:"length,omitempty"` // milliseconds
	IsStream   bool   `json:"isStream"`
	IsSeekable bool   `json:"isSeekable"`
	SourceName string `json:"sourceName,omitempty"`
	ISRC       string `json:"isrc,omitempty"`

	// extra is a JSON object of the unmodelled keys, or empty.
	extra string
}

// infoFields mirrors Info without its methods or the extra keys.
type infoFields struct {
	Identifier string `json:"identifier,omitempty"`
	Author     string `json:"author"`
	Title      string `json:"title"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	URI        string `json:"uri,omitempty"`
	Length     int64  `json:"length,omitempty"`
	IsStream   bool   `json:"isStream"`
	IsSeekable bool   `json:"isSeekable"`
	SourceName string `json:"sourceName,omitempty"`
	ISRC       string `json:"isrc,omitempty"`
}

var infoKeys = []string{
	"identifier", "author", "title", "artworkUrl", "uri",
	"length", "isStream", "isSeekable", "sourceName", "isrc",
}

func (i *Info) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var f infoFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range infoKeys {
		delete(all, k)
	}

	*i = f.info()
	if len(all) > 0 {
		extra, err := json.Marshal(all)
		if err != nil {
			return err
		}
		i.extra = string(extra)
	}
	return nil
}

func (i Info) MarshalJSON() ([]byte, error) {
	typed, err := json.Marshal(infoFields{
		Identifier: i.Identifier,
		Author:     i.Author,
		Title:      i.Title,
		ArtworkURL: i.ArtworkURL,
		URI:        i.URI,
		Length:     i.Length,
		IsStream:   i.IsStream,
		IsSeekable: i.IsSeekable,
		SourceName: i.SourceName,
		ISRC:       i.ISRC,
	})
	if err != nil || i.extra == "" {
		return typed, err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal([]byte(i.extra), &all); err != nil {
		return typed, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(typed, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		all[k] = v
	}
	return json.Marshal(all)
}

func (f infoFields) info() Info {
	return Info{
		Identifier: f.Identifier,
		Author:     f.Author,
		Title:      f.Title,
		ArtworkURL: f.ArtworkURL,
		URI:        f.URI,
		Length:     f.Length,
		IsStream:   f.IsStream,
		IsSeekable: f.IsSeekable,
		SourceName: f.SourceName,
		ISRC:       f.ISRC,
	}
}

// Track is a server track: metadata plus the opaque playable reference.
// Treat values as immutable; copy before changing a field.
type Track struct {
	Info    Info   `json:"trackInfo"`
	Encoded string `json:"encoded,omitempty"`
}

// None is the placeholder shown when nothing is loaded.
var None = Track{
	Info: Info{
		Author: "---",
		Title:  "No song playing",
	},
}

// ID returns the identity used to compare tracks: author followed by title.
//
// The plain concatenation means "ab"+"c" and "a"+"bc" collide. Callers rely on
// this exact key (it is also the duration cache key), so it is kept as is.
func ID(t Track) string {
	return t.Info.Author + t.Info.Title
}

// ID returns the identity of t.
func (t Track) ID() string {
	return ID(t)
}

// Playable reports whether the server can play t.
func (t Track) Playable() bool {
	return t.Encoded != ""
}

// Same reports whether a and b share an identity.
func Same(a, b Track) bool {
	return ID(a) == ID(b)
}

// Length returns the server-reported length, or zero if unknown.
func (t Track) Length() time.Duration {
	if t.Info.Length <= 0 {
		return 0
	}
	return time.Duration(t.Info.Length) * time.Millisecond
}
