package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/encore/internal/player"
	"github.com/jfmyers9/encore/internal/playlist"
	"github.com/jfmyers9/encore/internal/session"
)

// playlistCmd represents the playlist command
var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "Manage local playlists",
	Long: `Manage the playlists stored on this machine.

'create', 'list' and 'show' work offline. 'play' connects to the server,
starts the playlist and hands it over so the server keeps playing it
after encore exits.`,
}

var playlistCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create an empty playlist",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlaylistCreate,
}

var playlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List playlists",
	Args:  cobra.NoArgs,
	RunE:  runPlaylistList,
}

var playlistShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "List the tracks of a playlist",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlaylistShow,
}

var playlistPlayCmd = &cobra.Command{
	Use:   "play ID [INDEX]",
	Short: "Play a playlist, starting at INDEX (1-based, default 1)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPlaylistPlay,
}

func init() {
	rootCmd.AddCommand(playlistCmd)
	playlistCmd.AddCommand(playlistCreateCmd)
	playlistCmd.AddCommand(playlistListCmd)
	playlistCmd.AddCommand(playlistShowCmd)
	playlistCmd.AddCommand(playlistPlayCmd)
}

func runPlaylistCreate(cmd *cobra.Command, args []string) error {
	return withPlaylists(func(m *playlist.Manager) error {
		p, ok := m.CreatePlaylist(strings.Join(args, " "))
		if !ok {
			return errors.New("playlist name must not be blank")
		}
		fmt.Println(p.ID)
		return nil
	})
}

func runPlaylistList(cmd *cobra.Command, args []string) error {
	return withPlaylists(func(m *playlist.Manager) error {
		for _, p := range m.Playlists() {
			fmt.Println(formatPlaylist(p))
		}
		return nil
	})
}

func runPlaylistShow(cmd *cobra.Command, args []string) error {
	return withPlaylists(func(m *playlist.Manager) error {
		p, err := findPlaylist(m, args[0])
		if err != nil {
			return err
		}
		for i, t := range p.Tracks {
			fmt.Println(formatResult(i, t))
		}
		return nil
	})
}

func runPlaylistPlay(cmd *cobra.Command, args []string) error {
	index := 0
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid track index: %s (must be a positive number)", args[1])
		}
		index = n - 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), oneShotTimeout)
	defer cancel()

	var started bool
	err := withSession(ctx, func(ctx context.Context, s *session.Session) error {
		var lookupErr error
		err := s.Do(ctx, func(_ *player.Player, m *playlist.Manager) {
			p, err := findPlaylist(m, args[0])
			if err != nil {
				lookupErr = err
				return
			}
			m.PlayPlaylist(p.ID, index)
			_, _, _, started = m.Active()
		})
		if err != nil {
			return err
		}
		return lookupErr
	})
	if err != nil {
		return fmt.Errorf("failed to play playlist: %w", err)
	}
	if !started {
		return fmt.Errorf("playlist %s has no track %d", args[0], index+1)
	}
	return nil
}

// findPlaylist resolves an id, an unambiguous id prefix or an exact name.
func findPlaylist(m *playlist.Manager, ref string) (playlist.Playlist, error) {
	if p, ok := m.Playlist(ref); ok {
		return p, nil
	}

	var matches []playlist.Playlist
	for _, p := range m.Playlists() {
		if strings.HasPrefix(p.ID, ref) || p.Name == ref {
			matches = append(matches, p)
		}
	}

	switch len(matches) {
	case 0:
		return playlist.Playlist{}, fmt.Errorf("playlist not found: %s", ref)
	case 1:
		return matches[0], nil
	default:
		return playlist.Playlist{}, fmt.Errorf("playlist reference is ambiguous: %s", ref)
	}
}

func formatPlaylist(p playlist.Playlist) string {
	return fmt.Sprintf("%s  %s (%d tracks)", p.ID, p.Name, len(p.Tracks))
}
