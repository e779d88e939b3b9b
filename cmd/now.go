/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/encore/internal/config"
	"github.com/jfmyers9/encore/internal/player"
	"github.com/jfmyers9/encore/internal/track"
)

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the last known song",
	Long: `Display the song the player was last known to be playing.

This reads the state saved by the most recent session and never
connects to the server, so it is cheap enough for a status bar.

The output format can be customized in ~/.config/encore/config.yaml
using a Go template. Available fields: .Author, .Title, .Length,
.Volume, .Shuffle, .Repeat

Exit codes:
  0 - A song is playing
  1 - Nothing playing, paused, or no saved state`,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	// Add format flag to override config
	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	// Add width flag to set fixed output width
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
	// Add marquee flag to enable scrolling
	nowCmd.Flags().Bool("marquee", false, "Enable marquee scrolling for long text (overrides config)")
}

// nowView is the data the output template sees.
type nowView struct {
	Author  string
	Title   string
	Length  string
	Volume  int
	Shuffle bool
	Repeat  string
}

func newNowView(snap player.Snapshot) nowView {
	v := nowView{
		Author:  snap.CurrentSong.Info.Author,
		Title:   snap.CurrentSong.Info.Title,
		Volume:  snap.Volume,
		Shuffle: snap.Shuffle,
		Repeat:  string(snap.RepeatMode),
	}
	if d := snap.CurrentSong.Length(); d > 0 {
		v.Length = track.FormatTime(d)
	}
	return v
}

func runNow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Check for format flag override
	if formatFlag, _ := cmd.Flags().GetString("format"); formatFlag != "" {
		cfg.OutputFormat = formatFlag
	}

	snap, err := loadSnapshot()
	if err != nil {
		return fmt.Errorf("failed to read player state: %w", err)
	}

	// If not playing, exit with code 1
	if !snap.IsPlaying || !snap.CurrentSong.Playable() {
		os.Exit(1)
		return nil
	}

	output, err := formatNow(newNowView(snap), cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.OutputWidth
	}

	marquee, _ := cmd.Flags().GetBool("marquee")
	if !cmd.Flags().Changed("marquee") {
		marquee = cfg.MarqueeEnabled
	}

	if width > 0 {
		if marquee {
			output = marqueeText(output, width, cfg.MarqueeSpeed, cfg.MarqueeSeparator, time.Now())
		} else {
			output = padToWidth(output, width)
		}
	}

	fmt.Println(output)
	return nil
}

// formatNow applies the template to the view
func formatNow(view nowView, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}

// padToWidth pads or truncates text to exactly width display columns.
// Truncated text ends in "...". If width <= 0, returns text unchanged.
func padToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	const ellipsis = "..."
	if runewidth.StringWidth(text) > width {
		if width <= len(ellipsis) {
			return ellipsis[:width]
		}
		text = runewidth.Truncate(text, width-len(ellipsis), "") + ellipsis
	}

	return runewidth.FillRight(text, width)
}

// marqueeText scrolls text wider than width through a fixed window.
//
// The window start is derived from now (speed columns per second) over the
// loop "text + separator", so every call with the same timestamp
// gives the same frame and no state is kept between invocations. A status
// bar refreshing every few seconds therefore steps rather than scrolls.
func marqueeText(text string, width, speed int, separator string, now time.Time) string {
	if width <= 0 {
		return text
	}
	if runewidth.StringWidth(text) <= width {
		return padToWidth(text, width)
	}

	loop := []rune(text + separator)
	start := int(now.Unix()*int64(max(speed, 0))) % len(loop)

	var b strings.Builder
	used := 0
	for i := 0; ; i++ {
		r := loop[(start+i)%len(loop)]
		rw := runewidth.RuneWidth(r)
		if used+rw > width {
			break
		}
		b.WriteRune(r)
		used += rw
	}

	return runewidth.FillRight(b.String(), width)
}
