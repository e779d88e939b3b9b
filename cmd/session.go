package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

// sessionCmd represents the session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Open an interactive session with the remote player",
	Long: `Connect to the remote player and open an interactive shell.

The session will:
- Register with the server and restore the last volume
- Track the current song, position and play state as the server reports them
- Advance through the active playlist when a song ends
- Hand the active playlist over to the server when you leave, so it keeps playing

Type 'help' for the list of commands. Ctrl-D or 'quit' leaves the session.
Logs go to stderr by default; use --log-file to keep them out of the shell.`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	logger := setupLogger(logFile, logLevel)

	a, err := newApp(logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info().Str("server", a.cfg.ServerURL).Msg("Starting session")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- a.session.RunContext(ctx)
	}()

	select {
	case <-a.session.Ready():
	case err := <-runErr:
		return fmt.Errorf("session error: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "encore> ",
		AutoComplete:    shellCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		cancel()
		<-runErr
		return fmt.Errorf("failed to start shell: %w", err)
	}
	defer rl.Close()

	sh := newShell(a.session, rl.Stdout())
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		if err := sh.exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
		}
	}

	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("session error: %w", err)
	}

	logger.Info().Msg("Session ended")
	return nil
}

func shellCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(shellCommands))
	for name := range shellCommands {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}
