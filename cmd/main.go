package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.3.0" ./cmd
var Version = "dev"

const usage = `lyricsync - synchronized lyric display controller

Usage:
  lyricsync <command> [options]

Commands:
  start          Start the controller (WebSocket server + pairing)
  pair           Generate a join code for an output display
  outputs list   List paired outputs
  outputs revoke <output-id>  Revoke an output's token
  status         Show controller status

Run 'lyricsync <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "start":
		return runStart(args[2:], stdout, stderr)
	case "pair":
		return runPair(args[2:], stdout, stderr)
	case "outputs":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: lyricsync outputs <list|revoke>")
			return 1
		}
		switch args[2] {
		case "list":
			return runOutputsList(args[3:], stdout, stderr)
		case "revoke":
			return runOutputsRevoke(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown outputs command: %s\n", args[2])
			return 1
		}
	case "status":
		return runStatus(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "lyricsync %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
