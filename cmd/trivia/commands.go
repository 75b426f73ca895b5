package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kingrea/trivia-terminal/internal/config"
	"github.com/kingrea/trivia-terminal/internal/lock"
)

func handleLockCommand(cfg *config.Config) bool {
	if len(os.Args) < 2 || os.Args[1] != "lock" {
		return false
	}
	if len(os.Args) != 3 || (os.Args[2] != "show" && os.Args[2] != "clear") {
		fmt.Fprintln(os.Stderr, "Usage: trivia lock show|clear")
		os.Exit(2)
	}
	store, err := lock.NewDirStorage(cfg.StateDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Open state dir: %v\n", err)
		os.Exit(1)
	}
	manager := lock.NewManager(store, lock.WithPolicy(cfg.LockPolicy()))
	if os.Args[2] == "clear" {
		if err := manager.ForceClear(); err != nil {
			fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Cleared session lock in %s\n", store.Dir())
		os.Exit(0)
	}
	record, held, err := manager.Peek()
	if err != nil {
		fmt.Printf("Unreadable: %v\n", err)
		os.Exit(1)
	}
	if !held {
		fmt.Println("No active session")
		os.Exit(0)
	}
	fmt.Printf("Session:  %s\n", record.SessionID)
	fmt.Printf("Category: %s\n", record.CategoryID)
	fmt.Printf("Acquired: %s (%s ago)\n", record.AcquiredAt.Local().Format(time.RFC1123), time.Since(record.AcquiredAt).Round(time.Second))
	os.Exit(0)
	return true
}

func handleWalletCommand(cfg *config.Config) bool {
	if len(os.Args) < 2 || os.Args[1] != "wallet" {
		return false
	}
	if len(os.Args) == 2 {
		if addr := cfg.WalletAddress(); addr != "" {
			fmt.Println(addr)
		} else {
			fmt.Println("No wallet configured")
		}
		os.Exit(0)
	}
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "Usage: trivia wallet [address]")
		os.Exit(2)
	}
	if err := cfg.SetWalletAddress(os.Args[2]); err != nil {
		fmt.Fprintf(os.Stderr, "Save wallet: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wallet set to %s\n", cfg.WalletAddress())
	os.Exit(0)
	return true
}

// forgeArgs parses `trivia forge <tokenId> <tokenId>...`.
func forgeArgs() ([]string, bool) {
	if len(os.Args) < 2 || os.Args[1] != "forge" {
		return nil, false
	}
	var ids []string
	for _, arg := range os.Args[2:] {
		for _, id := range strings.Split(arg, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: trivia forge <tokenId> <tokenId>...")
		os.Exit(2)
	}
	return ids, true
}
