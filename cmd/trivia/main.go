// cmd/trivia/main.go
//
// This is the entry point for the trivia client.
//
// Flow:
// 1. Load .env and ~/.trivia/config.yaml
// 2. Handle debug subcommands (lock, wallet, forge)
// 3. Otherwise launch the TUI

package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/trivia-terminal/internal/config"
	"github.com/kingrea/trivia-terminal/internal/tui"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	home, err := config.DefaultHome()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving trivia home: %v\n", err)
		os.Exit(1)
	}
	if err := config.InitTriviaDir(home); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s: %v\n", home, err)
		os.Exit(1)
	}
	cfg, err := config.NewConfig(home)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if handleLockCommand(cfg) || handleWalletCommand(cfg) {
		return
	}
	var opts []tui.AppOption
	if ids, ok := forgeArgs(); ok {
		opts = append(opts, tui.WithForge(ids))
	}

	app, err := tui.NewApp(cfg, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting trivia: %v\n", err)
		os.Exit(1)
	}
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
