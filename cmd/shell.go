package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jfmyers9/encore/internal/player"
	"github.com/jfmyers9/encore/internal/playlist"
	"github.com/jfmyers9/encore/internal/session"
	"github.com/jfmyers9/encore/internal/track"
)

// replyTimeout bounds how long a shell command waits for a server answer.
const replyTimeout = 5 * time.Second

var errQuit = errors.New("quit")

// shell runs interactive commands against a live session.
type shell struct {
	session *session.Session
	out     io.Writer
	timeout time.Duration
}

type shellCommand struct {
	usage string
	help  string
	run   func(sh *shell, ctx context.Context, args []string) error
}

var shellCommands map[string]shellCommand

func init() {
	shellCommands = map[string]shellCommand{
		"toggle":        {"toggle", "play or pause", (*shell).toggle},
		"next":          {"next", "next track in the active playlist", (*shell).next},
		"back":          {"back", "previous track in the active playlist", (*shell).back},
		"shuffle":       {"shuffle", "toggle shuffle", (*shell).shuffle},
		"repeat":        {"repeat", "cycle repeat mode", (*shell).repeat},
		"seek":          {"seek PERCENT", "jump within the current song", (*shell).seek},
		"volume":        {"volume N", "set the volume (0-100)", (*shell).volume},
		"mute":          {"mute", "mute or unmute", (*shell).mute},
		"search":        {"search QUERY", "search for tracks", (*shell).search},
		"pick":          {"pick N", "play search result N", (*shell).pick},
		"lyrics":        {"lyrics", "show lyrics for the current song", (*shell).lyrics},
		"playlists":     {"playlists", "list playlists", (*shell).playlists},
		"create":        {"create NAME", "create a playlist", (*shell).create},
		"add":           {"add N PLAYLIST", "add search result N to a playlist", (*shell).add},
		"start":         {"start PLAYLIST [N]", "play a playlist from track N", (*shell).start},
		"track":         {"track N", "jump to track N of the active queue", (*shell).track},
		"queue":         {"queue", "show the active queue", (*shell).queue},
		"stop-headless": {"stop-headless", "take playback back from the server", (*shell).stopHeadless},
		"status":        {"status", "show the player state", (*shell).status},
		"artwork":       {"artwork FILE", "save the current song's artwork", (*shell).artwork},
		"help":          {"help", "show this help", (*shell).help},
		"quit":          {"quit", "leave the session", (*shell).quit},
	}
}

// shellAliases maps alternate spellings onto shellCommands keys.
var shellAliases = map[string]string{
	"play":  "toggle",
	"pause": "toggle",
	"prev":  "back",
	"vol":   "volume",
	"exit":  "quit",
}

func newShell(s *session.Session, out io.Writer) *shell {
	return &shell{session: s, out: out, timeout: replyTimeout}
}

// exec runs one input line. It returns errQuit when the user asks to leave.
func (sh *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	name := strings.ToLower(fields[0])
	if alias, ok := shellAliases[name]; ok {
		name = alias
	}
	c, ok := shellCommands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (try 'help')", fields[0])
	}
	return c.run(sh, ctx, fields[1:])
}

func (sh *shell) do(ctx context.Context, op session.Op) error {
	return sh.session.Do(ctx, op)
}

// await waits for cond, giving up after the reply timeout.
func (sh *shell) await(ctx context.Context, cond func(*player.Player, *playlist.Manager) bool) error {
	ctx, cancel := context.WithTimeout(ctx, sh.timeout)
	defer cancel()
	if err := sh.session.WaitFor(ctx, cond); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.New("no answer from server")
		}
		return err
	}
	return nil
}

func (sh *shell) printf(format string, args ...any) {
	fmt.Fprintf(sh.out, format, args...)
}

func (sh *shell) toggle(ctx context.Context, _ []string) error {
	var state player.State
	err := sh.do(ctx, func(p *player.Player, _ *playlist.Manager) {
		p.PlayPauseToggle()
		state = p.State()
	})
	if err != nil {
		return err
	}
	if !state.CurrentSong.Playable() {
		return errors.New("nothing to play")
	}
	sh.printf("%s %s\n", playState(state), songLine(state.CurrentSong))
	return nil
}

func (sh *shell) next(ctx context.Context, _ []string) error {
	return sh.do(ctx, func(p *player.Player, _ *playlist.Manager) { p.Next() })
}

func (sh *shell) back(ctx context.Context, _ []string) error {
	return sh.do(ctx, func(p *player.Player, _ *playlist.Manager) { p.Back() })
}

func (sh *shell) shuffle(ctx context.Context, _ []string) error {
	var on bool
	err := sh.do(ctx, func(p *player.Player, _ *playlist.Manager) {
		p.ToggleShuffle()
		on = p.Shuffle()
	})
	if err == nil {
		sh.printf("Shuffle: %s\n", onOff(on))
	}
	return err
}

func (sh *shell) repeat(ctx context.Context, _ []string) error {
	var mode playlist.RepeatMode
	err := sh.do(ctx, func(p *player.Player, _ *playlist.Manager) {
		p.CycleRepeatMode()
		mode = p.RepeatMode()
	})
	if err == nil {
		sh.printf("Repeat: %s\n", mode)
	}
	return err
}

func (sh *shell) seek(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: seek PERCENT")
	}
	percent, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid seek position: %s", args[0])
	}
	// The seek ack ends the seeking window; if nothing was sent there is no
	// ack coming.
	return sh.do(ctx, func(p *player.Player, _ *playlist.Manager) {
		p.StartSeeking()
		p.Seek(percent)
		if !slices.Contains(p.Unconfirmed(), player.FieldPosition) {
			p.StopSeeking()
		}
	})
}

func (sh *shell) volume(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: volume N")
	}
	level, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid volume level: %s", args[0])
	}
	var got int
	err = sh.do(ctx, func(p *player.Player, _ *playlist.Manager) {
		p.ChangeVolume(level)
		got = p.State().Volume
	})
	if err == nil {
		sh.printf("Volume: %d\n", got)
	}
	return err
}

func (sh *shell) mute(ctx context.Context, _ []string) error {
	var got int
	err := sh.do(ctx, func(p *player.Player, _ *playlist.Manager) {
		p.ToggleMute()
		got = p.State().Volume
	})
	if err == nil {
		sh.printf("Volume: %d\n", got)
	}
	return err
}

func (sh *shell) search(ctx context.Context, args []string) error {
	query := strings.Join(args, " ")
	err := sh.do(ctx, func(p *player.Player, _ *playlist.Manager) {
		p.ClearSearchResults()
		p.Search(query)
	})
	if err != nil || strings.TrimSpace(query) == "" {
		return err
	}

	var results []track.Track
	err = sh.await(ctx, func(p *player.Player, _ *playlist.Manager) bool {
		results = p.State().SearchResults
		return len(results) > 0
	})
	if err != nil {
		return err
	}
	for i, t := range results {
		sh.printf("%s\n", formatResult(i, t))
	}
	return nil
}

// result resolves a 1-based search result number.
func result(p *player.Player, arg string) (track.Track, error) {
	results := p.State().SearchResults
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(results) {
		return track.Track{}, fmt.Errorf("no search result %s", arg)
	}
	return results[n-1], nil
}

func (sh *shell) pick(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: pick N")
	}
	var opErr error
	err := sh.do(ctx, func(p *player.Player, _ *playlist.Manager) {
		t, err := result(p, args[0])
		if err != nil {
			opErr = err
			return
		}
		p.PlaySong(t)
	})
	return errors.Join(err, opErr)
}

func (sh *shell) lyrics(ctx context.Context, _ []string) error {
	err := sh.do(ctx, func(p *player.Player, _ *playlist.Manager) { p.RequestLyrics() })
	if err != nil {
		return err
	}

	var l player.Lyrics
	err = sh.await(ctx, func(p *player.Player, _ *playlist.Manager) bool {
		l = p.State().Lyrics
		return !l.Loading
	})
	if err != nil {
		return err
	}

	switch {
	case l.Error != "":
		sh.printf("%s\n", l.Error)
	case l.Loaded():
		sh.printf("%s\n\n(%s)\n", l.Content, l.Source)
	default:
		return errors.New("nothing playing")
	}
	return nil
}

func (sh *shell) playlists(ctx context.Context, _ []string) error {
	var lists []playlist.Playlist
	var activeID string
	err := sh.do(ctx, func(_ *player.Player, m *playlist.Manager) {
		lists = m.Playlists()
		activeID = m.State().ActivePlaylistID
	})
	if err != nil {
		return err
	}
	for _, p := range lists {
		marker := " "
		if p.ID == activeID {
			marker = "*"
		}
		sh.printf("%s %s\n", marker, formatPlaylist(p))
	}
	return nil
}

func (sh *shell) create(ctx context.Context, args []string) error {
	var created playlist.Playlist
	var ok bool
	err := sh.do(ctx, func(_ *player.Player, m *playlist.Manager) {
		created, ok = m.CreatePlaylist(strings.Join(args, " "))
	})
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("usage: create NAME")
	}
	sh.printf("Created %s\n", created.ID)
	return nil
}

func (sh *shell) add(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: add N PLAYLIST")
	}
	var opErr error
	err := sh.do(ctx, func(p *player.Player, m *playlist.Manager) {
		t, err := result(p, args[0])
		if err != nil {
			opErr = err
			return
		}
		pl, err := findPlaylist(m, strings.Join(args[1:], " "))
		if err != nil {
			opErr = err
			return
		}
		m.AddTrackToPlaylist(pl.ID, t)
	})
	return errors.Join(err, opErr)
}

func (sh *shell) start(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: start PLAYLIST [N]")
	}
	index := 0
	ref := args
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[len(args)-1]); err == nil {
			index = n - 1
			ref = args[:len(args)-1]
		}
	}

	var opErr error
	err := sh.do(ctx, func(_ *player.Player, m *playlist.Manager) {
		pl, err := findPlaylist(m, strings.Join(ref, " "))
		if err != nil {
			opErr = err
			return
		}
		m.PlayPlaylist(pl.ID, index)
	})
	return errors.Join(err, opErr)
}

func (sh *shell) track(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: track N")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid track number: %s", args[0])
	}

	var opErr error
	err = sh.do(ctx, func(_ *player.Player, m *playlist.Manager) {
		_, _, queue, ok := m.Active()
		if !ok {
			opErr = errors.New("no active playlist")
			return
		}
		if n < 1 || n > len(queue) {
			opErr = fmt.Errorf("no track %d in the queue", n)
			return
		}
		m.PlayTrack(queue[n-1], n-1)
	})
	return errors.Join(err, opErr)
}

func (sh *shell) queue(ctx context.Context, _ []string) error {
	var (
		name  string
		index int
		queue []track.Track
		ok    bool
	)
	err := sh.do(ctx, func(_ *player.Player, m *playlist.Manager) {
		var p playlist.Playlist
		p, index, queue, ok = m.Active()
		name = p.Name
	})
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no active playlist")
	}

	sh.printf("%s\n", name)
	for i, t := range queue {
		marker := " "
		if i == index {
			marker = ">"
		}
		sh.printf("%s %s\n", marker, formatResult(i, t))
	}
	return nil
}

func (sh *shell) stopHeadless(ctx context.Context, _ []string) error {
	return sh.do(ctx, func(p *player.Player, _ *playlist.Manager) { p.StopHeadless() })
}

func (sh *shell) status(ctx context.Context, _ []string) error {
	var (
		state  player.State
		length time.Duration
	)
	err := sh.do(ctx, func(p *player.Player, _ *playlist.Manager) {
		state = p.State()
		if state.Duration > 0 || !state.CurrentSong.Playable() {
			return
		}
		var ok bool
		if length, ok = p.Duration(state.CurrentSong); !ok {
			p.RequestDuration(state.CurrentSong)
		}
	})
	if err != nil {
		return err
	}

	sh.printf("%s\n", state.Connection)
	sh.printf("%s %s\n", playState(state), songLine(state.CurrentSong))
	switch {
	case state.Duration > 0:
		sh.printf("%s / %s (%.0f%%)\n",
			track.FormatSeconds(state.CurrentTime), track.FormatSeconds(state.Duration), state.Progress)
	case length > 0:
		sh.printf("Length: %s\n", track.FormatTime(length))
	}
	sh.printf("Volume: %d  Shuffle: %s  Repeat: %s\n", state.Volume, onOff(state.Shuffle), state.RepeatMode)
	if state.Headless {
		sh.printf("Server is playing a playlist headless\n")
	}
	return nil
}

func (sh *shell) artwork(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: artwork FILE")
	}

	var url string
	err := sh.do(ctx, func(p *player.Player, _ *playlist.Manager) {
		url = p.State().CurrentSong.Info.ArtworkURL
	})
	if err != nil {
		return err
	}
	if url == "" {
		return errors.New("current song has no artwork")
	}

	// The first miss sends the request; later lookups wait for the fill.
	var data []byte
	err = sh.await(ctx, func(p *player.Player, _ *playlist.Manager) bool {
		var ok bool
		data, ok = p.Image(ctx, url)
		return ok
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(args[0], data, 0644); err != nil {
		return fmt.Errorf("failed to write artwork: %w", err)
	}
	sh.printf("Saved %d bytes to %s\n", len(data), args[0])
	return nil
}

func (sh *shell) help(context.Context, []string) error {
	names := make([]string, 0, len(shellCommands))
	for name := range shellCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := shellCommands[name]
		sh.printf("  %-20s %s\n", c.usage, c.help)
	}
	return nil
}

func (sh *shell) quit(context.Context, []string) error {
	return errQuit
}

func playState(s player.State) string {
	if s.IsPlaying {
		return "▶"
	}
	return "⏸"
}

func songLine(t track.Track) string {
	return t.Info.Author + " - " + t.Info.Title
}
