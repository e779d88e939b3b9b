package cmd

import (
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/jfmyers9/encore/internal/player"
	"github.com/jfmyers9/encore/internal/playlist"
	"github.com/jfmyers9/encore/internal/track"
)

func TestPadToWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{
			name:     "no padding when width is 0",
			input:    "Hello",
			width:    0,
			expected: "Hello",
		},
		{
			name:     "no padding when width is negative",
			input:    "Hello",
			width:    -1,
			expected: "Hello",
		},
		{
			name:     "pad short text with spaces",
			input:    "Hi",
			width:    10,
			expected: "Hi        ",
		},
		{
			name:     "exact width unchanged",
			input:    "Hello",
			width:    5,
			expected: "Hello",
		},
		{
			name:     "truncate long text with ellipsis",
			input:    "This is a very long string that needs truncation",
			width:    20,
			expected: "This is a very lo...",
		},
		{
			name:     "handle emoji correctly",
			input:    "🎵 Music",
			width:    15,
			expected: "🎵 Music       ", // emoji is 2 columns wide
		},
		{
			name:     "truncate emoji text",
			input:    "🎵 This is a very long song title",
			width:    15,
			expected: "🎵 This is a...",
		},
		{
			name:     "handle wide characters",
			input:    "日本語",
			width:    10,
			expected: "日本語    ",
		},
		{
			name:     "truncate wide characters",
			input:    "日本語とても長いテキスト",
			width:    10,
			expected: "日本語... ", // a wide rune does not fit in the last column
		},
		{
			name:     "empty string padding",
			input:    "",
			width:    5,
			expected: "     ",
		},
		{
			name:     "minimum width for truncation",
			input:    "Hello",
			width:    3,
			expected: "...",
		},
		{
			name:     "width below ellipsis",
			input:    "Hello",
			width:    2,
			expected: "..",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := padToWidth(tt.input, tt.width)
			if result != tt.expected {
				t.Errorf("padToWidth(%q, %d) = %q, expected %q",
					tt.input, tt.width, result, tt.expected)
			}

			if tt.width > 0 {
				if w := runewidth.StringWidth(result); w != tt.width {
					t.Errorf("padToWidth(%q, %d) produced width %d, expected %d",
						tt.input, tt.width, w, tt.width)
				}
			}
		})
	}
}

func TestMarqueeText(t *testing.T) {
	at := func(sec int64) time.Time { return time.Unix(sec, 0) }

	t.Run("short text is padded, not scrolled", func(t *testing.T) {
		got := marqueeText("Hi", 5, 2, " | ", at(7))
		if got != "Hi   " {
			t.Errorf("marqueeText() = %q, want %q", got, "Hi   ")
		}
	})

	t.Run("window advances with time", func(t *testing.T) {
		text := "abcdefghij"
		tests := []struct {
			sec  int64
			want string
		}{
			{0, "abcd"},
			{1, "bcde"},
			{9, "j | "},
			{10, " | a"},
			{12, " abc"},
			{13, "abcd"}, // loop length is 13
		}
		for _, tt := range tests {
			if got := marqueeText(text, 4, 1, " | ", at(tt.sec)); got != tt.want {
				t.Errorf("marqueeText(t=%d) = %q, want %q", tt.sec, got, tt.want)
			}
		}
	})

	t.Run("speed scales the step", func(t *testing.T) {
		if got := marqueeText("abcdefghij", 4, 3, "-", at(1)); got != "defg" {
			t.Errorf("marqueeText() = %q, want %q", got, "defg")
		}
	})

	t.Run("wide runes keep the width exact", func(t *testing.T) {
		got := marqueeText("日本語のとても長い曲名", 5, 1, " ", at(0))
		if w := runewidth.StringWidth(got); w != 5 {
			t.Errorf("marqueeText() width = %d, want 5 (%q)", w, got)
		}
	})

	t.Run("same timestamp gives the same frame", func(t *testing.T) {
		a := marqueeText("a long enough title", 6, 2, " • ", at(1234))
		b := marqueeText("a long enough title", 6, 2, " • ", at(1234))
		if a != b {
			t.Errorf("marqueeText() not deterministic: %q != %q", a, b)
		}
	})
}

func TestFormatNow(t *testing.T) {
	snap := player.Snapshot{
		CurrentSong: track.Track{
			Info:    track.Info{Author: "Daft Punk", Title: "Veridis Quo", Length: 345000},
			Encoded: "QAAA",
		},
		IsPlaying:  true,
		Volume:     40,
		Shuffle:    true,
		RepeatMode: playlist.RepeatAll,
	}

	tests := []struct {
		name   string
		format string
		want   string
	}{
		{"default", "{{.Author}} - {{.Title}}", "Daft Punk - Veridis Quo"},
		{"length", "{{.Title}} [{{.Length}}]", "Veridis Quo [5:45]"},
		{"settings", "{{.Volume}}% {{if .Shuffle}}S{{end}} {{.Repeat}}", "40% S all"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatNow(newNowView(snap), tt.format)
			if err != nil {
				t.Fatalf("formatNow() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("formatNow() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := formatNow(newNowView(snap), "{{.Author"); err == nil {
		t.Error("formatNow() with broken template should fail")
	}
	if _, err := formatNow(newNowView(snap), "{{.Album}}"); err == nil {
		t.Error("formatNow() with unknown field should fail")
	}
}
