package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

type options struct {
	ConfigPath      string
	Paths           []string
	QuietWindow     time.Duration
	APIAddr         string
	LogLevel        string
	Pty             bool
	CancelOnRestart bool
	ShowVersion     bool
	Command         []string

	// setFlags records which flags appeared on the command line so only
	// those override the file and environment layers.
	setFlags map[string]bool
}

func (o *options) isSet(name string) bool {
	return o.setFlags[name]
}

type pathList []string

func (p *pathList) String() string {
	return strings.Join(*p, ",")
}

func (p *pathList) Set(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("empty path")
	}
	*p = append(*p, value)
	return nil
}

func parseArgs(args []string, errOut io.Writer) (options, error) {
	fs := flag.NewFlagSet("vigil", flag.ContinueOnError)
	fs.SetOutput(errOut)

	opts := options{}
	var paths pathList
	var help bool

	fs.StringVar(&opts.ConfigPath, "config", "", "Config file path (default: vigil.yaml if present)")
	fs.Var(&paths, "watch", "Path to watch, repeatable")
	fs.DurationVar(&opts.QuietWindow, "quiet-window", 0, "Quiet window before a change triggers a restart")
	fs.StringVar(&opts.APIAddr, "api-addr", "", "Listen address for the HTTP API (empty disables it)")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&opts.Pty, "pty", false, "Run the command under a pseudo-terminal")
	fs.BoolVar(&opts.CancelOnRestart, "cancel-on-restart", false, "Stop a superseded command instead of leaving it running")
	fs.BoolVar(&help, "help", false, "Show this help message")
	fs.BoolVar(&help, "h", false, "Show this help message")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Print version and exit")
	fs.BoolVar(&opts.ShowVersion, "v", false, "Print version and exit")
	fs.Usage = func() {
		printHelp(fs.Output())
	}

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if help {
		fs.Usage()
		return options{}, flag.ErrHelp
	}
	if opts.ShowVersion {
		return opts, nil
	}

	opts.Paths = paths
	opts.Command = fs.Args()
	opts.setFlags = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		opts.setFlags[f.Name] = true
	})
	return opts, nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: vigil [options] [--] command [args...]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Run a command and restart it when watched paths change")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	writeOption(out, "--config FILE", "Config file path (default: vigil.yaml if present)")
	writeOption(out, "--watch PATH", "Path to watch, repeatable")
	writeOption(out, "--quiet-window DUR", "Quiet window before a change triggers a restart (default: 200ms)")
	writeOption(out, "--api-addr ADDR", "Listen address for the HTTP API (empty disables it)")
	writeOption(out, "--log-level LEVEL", "Log level: debug, info, warn, error (default: info)")
	writeOption(out, "--pty", "Run the command under a pseudo-terminal")
	writeOption(out, "--cancel-on-restart", "Stop a superseded command instead of leaving it running")
	writeOption(out, "--help", "Show this help message")
	writeOption(out, "--version", "Print version and exit")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Examples:")
	fmt.Fprintln(out, "  vigil --watch src --watch assets -- make run")
	fmt.Fprintln(out, "  vigil --config vigil.yaml")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Exit codes:")
	fmt.Fprintln(out, "  0  Success")
	fmt.Fprintln(out, "  1  Usage error")
	fmt.Fprintln(out, "  2  Invalid configuration")
	fmt.Fprintln(out, "  3  Watch setup or delivery failure")
	fmt.Fprintln(out, "  4  Runtime failure")
}

func writeOption(out io.Writer, name, desc string) {
	fmt.Fprintf(out, "  %-20s %s\n", name, desc)
}
