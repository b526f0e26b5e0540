package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"tagbox/internal/app"
)

// command is one admin subcommand. flags registers its flags and returns
// the action to run once they are parsed.
type command struct {
	summary string
	flags   func(fs *pflag.FlagSet) func(ctx context.Context, a *app.App) error
}

var commands = map[string]command{
	"reset-password": resetPasswordCommand,
	"create-user":    createUserCommand,
	"delete-image":   deleteImageCommand,
	"dump-metadata":  dumpMetadataCommand,
	"backfill":       backfillCommand,
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: admin COMMAND [flags]\n\nCommands:\n")
	for _, name := range commandNames() {
		fmt.Fprintf(os.Stderr, "  %-16s %s\n", name, commands[name].summary)
	}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		usage()
		return fmt.Errorf("command is required, known commands: %s", strings.Join(commandNames(), ", "))
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, known commands: %s", name, strings.Join(commandNames(), ", "))
	}

	fs := pflag.NewFlagSet("admin "+name, pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "config/app.yaml", "path to the YAML config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	action := cmd.flags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	logger := app.NewLogger(*debug)
	cfg, err := app.LoadConfig(*configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return action(ctx, a)
}
