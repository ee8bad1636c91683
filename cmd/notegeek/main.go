package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chzyer/readline"

	"notegeek/internal/cli"
	"notegeek/internal/client"
	"notegeek/internal/config"
	"notegeek/internal/logging"
)

func main() {
	cfg := config.LoadClient()
	logger := logging.New(os.Stderr, "development", "warn")

	if cfg.HistoryFile != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.HistoryFile), 0o700)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "notegeek> ",
		HistoryFile:     cfg.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize readline")
	}
	defer rl.Close()

	repl := cli.New(client.New(cfg.ServerURL, nil), rl.Stdout(), cli.Options{
		TokenFile:     cfg.TokenFile,
		AutoSaveDelay: cfg.AutoSaveDelay,
	})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := repl.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("saved session discarded")
	}

	fmt.Fprintf(rl.Stdout(), "NoteGeek client for %s (type 'help' for commands)\n", cfg.ServerURL)
	if err := repl.Run(ctx, rl); err != nil {
		logger.Error().Err(err).Msg("session ended with error")
	}
}
