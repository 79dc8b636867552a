package main

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"
)

func TestParseArgsSplitsFlagsAndCommand(t *testing.T) {
	opts, err := parseArgs([]string{
		"--watch", "src",
		"--watch", "assets",
		"--quiet-window", "300ms",
		"--", "make", "run",
	}, bytes.NewBuffer(nil))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(opts.Paths) != 2 || opts.Paths[0] != "src" || opts.Paths[1] != "assets" {
		t.Fatalf("unexpected paths: %v", opts.Paths)
	}
	if len(opts.Command) != 2 || opts.Command[0] != "make" {
		t.Fatalf("unexpected command: %v", opts.Command)
	}
	if opts.QuietWindow != 300*time.Millisecond {
		t.Fatalf("unexpected quiet window: %s", opts.QuietWindow)
	}
	if !opts.isSet("quiet-window") || opts.isSet("api-addr") {
		t.Fatalf("unexpected set flags: %v", opts.setFlags)
	}
}

func TestParseArgsHelp(t *testing.T) {
	var out bytes.Buffer
	_, err := parseArgs([]string{"--help"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
	if !strings.Contains(out.String(), "Usage: vigil") {
		t.Fatalf("expected usage text, got %q", out.String())
	}
}

func TestParseArgsVersion(t *testing.T) {
	opts, err := parseArgs([]string{"--version"}, bytes.NewBuffer(nil))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !opts.ShowVersion {
		t.Fatal("expected version flag to be set")
	}
}

func TestParseArgsRejectsUnknownFlag(t *testing.T) {
	if _, err := parseArgs([]string{"--bogus"}, bytes.NewBuffer(nil)); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestParseArgsRejectsEmptyWatchPath(t *testing.T) {
	if _, err := parseArgs([]string{"--watch", " "}, bytes.NewBuffer(nil)); err == nil {
		t.Fatal("expected error for empty watch path")
	}
}
