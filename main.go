package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mrlokans/opdscatalog/internal/cli"
	"github.com/mrlokans/opdscatalog/internal/config"
	"github.com/mrlokans/opdscatalog/internal/entrypoint"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

// command is implemented by every CLI subcommand
type command interface {
	ParseFlags(args []string) error
	Run() error
}

func main() {
	// If no arguments or "serve" command, run the HTTP server
	if len(os.Args) < 2 || os.Args[1] == "serve" {
		cfg := config.NewConfig()
		entrypoint.Run(cfg, Version)
		return
	}

	commandName := os.Args[1]
	args := os.Args[2:]

	var cmd command
	switch commandName {
	case "feeds":
		cmd = cli.NewFeedsCommand()
	case "browse":
		cmd = cli.NewBrowseCommand()
	case "search":
		cmd = cli.NewSearchCommand()
	case "login":
		cmd = cli.NewLoginCommand()
	case "keygen":
		cmd = cli.NewKeygenCommand()
	case "version":
		fmt.Printf("opdscatalog %s (%s)\n", Version, Commit)
		return
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", commandName)
		printUsage()
		os.Exit(1)
	}

	if err := cmd.ParseFlags(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve     Start the HTTP API server (default if no command given)\n")
	fmt.Fprintf(os.Stderr, "  feeds     List, add, update or delete stored feeds\n")
	fmt.Fprintf(os.Stderr, "  browse    Fetch and print an OPDS catalog page\n")
	fmt.Fprintf(os.Stderr, "  search    Search a catalog through its search links\n")
	fmt.Fprintf(os.Stderr, "  login     Authenticate against an OAuth-protected catalog\n")
	fmt.Fprintf(os.Stderr, "  keygen    Generate refresh-token encryption key material\n")
	fmt.Fprintf(os.Stderr, "  version   Print version information\n")
	fmt.Fprintf(os.Stderr, "\nUse '%s <command> -h' for help on a specific command.\n", os.Args[0])
}
