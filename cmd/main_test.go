package main

import (
	"bytes"
	"strings"
	"testing"
)

func runWithArgs(args []string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, out, _ := runWithArgs([]string{"lyricsync"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "Usage:") {
		t.Fatalf("expected usage output, got %q", out)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	code, out, _ := runWithArgs([]string{"lyricsync", "nope"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out, "Unknown command") {
		t.Fatalf("expected unknown command output, got %q", out)
	}
}

func TestRunOutputsMissingSubcommand(t *testing.T) {
	code, out, _ := runWithArgs([]string{"lyricsync", "outputs"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out, "Usage: lyricsync outputs") {
		t.Fatalf("expected outputs usage, got %q", out)
	}
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runWithArgs([]string{"lyricsync", "--version"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "lyricsync") {
		t.Fatalf("expected version output, got %q", out)
	}
}

func TestStartHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runStart([]string{"--help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Usage: lyricsync start") {
		t.Fatalf("expected start usage, got %q", stderr.String())
	}
}

func TestStartInvalidFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runStart([]string{"--lockout-threshold=bad"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if stderr.Len() == 0 {
		t.Fatal("expected error output for invalid flag")
	}
}

func TestOutputsRevokeMissingID(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runOutputsRevoke(nil, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "output-id is required") {
		t.Fatalf("expected missing id error, got %q", stderr.String())
	}
}
