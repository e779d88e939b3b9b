package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/encore/internal/player"
	"github.com/jfmyers9/encore/internal/playlist"
	"github.com/jfmyers9/encore/internal/session"
	"github.com/jfmyers9/encore/internal/track"
)

const (
	// oneShotTimeout bounds a whole one-shot command, connect included.
	oneShotTimeout = 15 * time.Second

	// settleTime is how long a one-shot command waits for the server's first
	// status before acting on the persisted state.
	settleTime = time.Second
)

// toggleCmd represents the toggle command
var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle play/pause",
	Long:  `Toggle between play and pause. If playing, pauses. If paused, resumes.`,
	Args:  cobra.NoArgs,
	RunE:  runToggle,
}

// nextCmd represents the next command
var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Skip to the next track in the active playlist",
	Args:  cobra.NoArgs,
	RunE:  runNext,
}

// prevCmd represents the prev command
var prevCmd = &cobra.Command{
	Use:   "prev",
	Short: "Go to the previous track in the active playlist",
	Args:  cobra.NoArgs,
	RunE:  runPrev,
}

// shuffleCmd represents the shuffle command
var shuffleCmd = &cobra.Command{
	Use:   "shuffle [on|off]",
	Short: "Toggle or set shuffle mode",
	Long: `Control shuffle mode.

Without arguments, toggles shuffle on/off.
With 'on' or 'off' argument, explicitly sets shuffle state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShuffle,
}

// repeatCmd represents the repeat command
var repeatCmd = &cobra.Command{
	Use:   "repeat",
	Short: "Cycle repeat mode (none, all, one)",
	Args:  cobra.NoArgs,
	RunE:  runRepeat,
}

// volumeCmd represents the volume command
var volumeCmd = &cobra.Command{
	Use:   "volume [0-100]",
	Short: "Set playback volume",
	Long: `Set the playback volume.

Volume level must be between 0 (muted) and 100 (maximum).
Without arguments, displays the last known volume.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVolume,
}

// muteCmd represents the mute command
var muteCmd = &cobra.Command{
	Use:   "mute",
	Short: "Mute, or restore the volume from before muting",
	Args:  cobra.NoArgs,
	RunE:  runMute,
}

// seekCmd represents the seek command
var seekCmd = &cobra.Command{
	Use:   "seek PERCENT",
	Short: "Jump to a position in the current song (0-100)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeek,
}

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search the server's sources and print the results",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

// stopHeadlessCmd represents the stop-headless command
var stopHeadlessCmd = &cobra.Command{
	Use:   "stop-headless",
	Short: "Stop the server playing a playlist on its own",
	Args:  cobra.NoArgs,
	RunE:  runStopHeadless,
}

func init() {
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(prevCmd)
	rootCmd.AddCommand(shuffleCmd)
	rootCmd.AddCommand(repeatCmd)
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(muteCmd)
	rootCmd.AddCommand(seekCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(stopHeadlessCmd)
}

// oneShot connects, gives the server a moment to report its state, and
// runs op.
func oneShot(op session.Op) error {
	return oneShotWhen(func(p *player.Player, _ *playlist.Manager) bool {
		return p.State().CurrentSong.Playable()
	}, op)
}

// oneShotWhen is oneShot with a custom settle condition.
func oneShotWhen(cond func(*player.Player, *playlist.Manager) bool, op session.Op) error {
	ctx, cancel := context.WithTimeout(context.Background(), oneShotTimeout)
	defer cancel()

	return withSession(ctx, func(ctx context.Context, s *session.Session) error {
		settle(ctx, s, cond)
		return s.Do(ctx, op)
	})
}

// settle waits up to settleTime for cond. Timing out is not an error.
func settle(ctx context.Context, s *session.Session, cond func(*player.Player, *playlist.Manager) bool) {
	ctx, cancel := context.WithTimeout(ctx, settleTime)
	defer cancel()
	_ = s.WaitFor(ctx, cond)
}

func runToggle(cmd *cobra.Command, args []string) error {
	var state player.State
	err := oneShot(func(p *player.Player, _ *playlist.Manager) {
		p.PlayPauseToggle()
		state = p.State()
	})
	if err != nil {
		return fmt.Errorf("failed to toggle playback: %w", err)
	}
	if !state.CurrentSong.Playable() {
		return errors.New("nothing to play")
	}
	return nil
}

// queueStep runs step once a playlist is active. Playlists are only active
// while the server is playing one headless, so give it time to report it.
func queueStep(step func(p *player.Player)) error {
	ctx, cancel := context.WithTimeout(context.Background(), oneShotTimeout)
	defer cancel()

	return withSession(ctx, func(ctx context.Context, s *session.Session) error {
		settle(ctx, s, func(_ *player.Player, m *playlist.Manager) bool {
			_, _, _, ok := m.Active()
			return ok
		})

		active := false
		err := s.Do(ctx, func(p *player.Player, m *playlist.Manager) {
			if _, _, _, active = m.Active(); active {
				step(p)
			}
		})
		if err != nil {
			return err
		}
		if !active {
			return errors.New("no active playlist")
		}
		return nil
	})
}

func runNext(cmd *cobra.Command, args []string) error {
	if err := queueStep((*player.Player).Next); err != nil {
		return fmt.Errorf("failed to skip to next track: %w", err)
	}
	return nil
}

func runPrev(cmd *cobra.Command, args []string) error {
	if err := queueStep((*player.Player).Back); err != nil {
		return fmt.Errorf("failed to go to previous track: %w", err)
	}
	return nil
}

func runShuffle(cmd *cobra.Command, args []string) error {
	want := -1
	if len(args) == 1 {
		switch args[0] {
		case "on":
			want = 1
		case "off":
			want = 0
		default:
			return fmt.Errorf("invalid shuffle argument: %s (must be 'on' or 'off')", args[0])
		}
	}

	var on bool
	err := oneShot(func(p *player.Player, _ *playlist.Manager) {
		current := p.Shuffle()
		if want == -1 || current != (want == 1) {
			p.ToggleShuffle()
		}
		on = p.Shuffle()
	})
	if err != nil {
		return fmt.Errorf("failed to set shuffle: %w", err)
	}

	fmt.Printf("Shuffle: %s\n", onOff(on))
	return nil
}

func runRepeat(cmd *cobra.Command, args []string) error {
	var mode playlist.RepeatMode
	err := oneShot(func(p *player.Player, _ *playlist.Manager) {
		p.CycleRepeatMode()
		mode = p.RepeatMode()
	})
	if err != nil {
		return fmt.Errorf("failed to cycle repeat mode: %w", err)
	}

	fmt.Printf("Repeat: %s\n", mode)
	return nil
}

func runVolume(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		snap, err := loadSnapshot()
		if err != nil {
			return err
		}
		fmt.Println(snap.Volume)
		return nil
	}

	level, err := strconv.Atoi(args[0])
	if err != nil || level < 0 || level > 100 {
		return fmt.Errorf("invalid volume level: %s (must be a number 0-100)", args[0])
	}

	if err := oneShot(func(p *player.Player, _ *playlist.Manager) { p.ChangeVolume(level) }); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}
	return nil
}

func runMute(cmd *cobra.Command, args []string) error {
	var volume int
	err := oneShot(func(p *player.Player, _ *playlist.Manager) {
		p.ToggleMute()
		volume = p.State().Volume
	})
	if err != nil {
		return fmt.Errorf("failed to toggle mute: %w", err)
	}

	fmt.Printf("Volume: %d\n", volume)
	return nil
}

func runSeek(cmd *cobra.Command, args []string) error {
	percent, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid seek position: %s (must be a number 0-100)", args[0])
	}

	// Seeking needs the song length, which arrives with the first position sync.
	hasDuration := func(p *player.Player, _ *playlist.Manager) bool {
		return p.State().Duration > 0
	}
	if err := oneShotWhen(hasDuration, func(p *player.Player, _ *playlist.Manager) { p.Seek(percent) }); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	ctx, cancel := context.WithTimeout(context.Background(), oneShotTimeout)
	defer cancel()

	var results []track.Track
	err := withSession(ctx, func(ctx context.Context, s *session.Session) error {
		// Drop stale results so the wait below sees only the answer.
		err := s.Do(ctx, func(p *player.Player, _ *playlist.Manager) {
			p.ClearSearchResults()
			p.Search(query)
		})
		if err != nil {
			return err
		}
		return s.WaitFor(ctx, func(p *player.Player, _ *playlist.Manager) bool {
			results = p.State().SearchResults
			return len(results) > 0
		})
	})
	if err != nil {
		return fmt.Errorf("failed to search: %w", err)
	}

	for i, t := range results {
		fmt.Println(formatResult(i, t))
	}
	return nil
}

func runStopHeadless(cmd *cobra.Command, args []string) error {
	if err := oneShot(func(p *player.Player, _ *playlist.Manager) { p.StopHeadless() }); err != nil {
		return fmt.Errorf("failed to stop headless playback: %w", err)
	}
	return nil
}

func formatResult(i int, t track.Track) string {
	line := fmt.Sprintf("%2d. %s - %s", i+1, t.Info.Author, t.Info.Title)
	if d := t.Length(); d > 0 {
		line += " (" + track.FormatTime(d) + ")"
	}
	return line
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
