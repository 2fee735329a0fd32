// calmesh is a small command line client for the calendar composition
// engine. It loads a YAML configuration (see package config), opens one
// engine for the given user and runs a single command against it:
//
//	calmesh [flags] folders
//	calmesh [flags] subscribe <name> <url>
//	calmesh [flags] events <folder-id>...
//	calmesh [flags] search <query>
//	calmesh [flags] freebusy <from> <until> <attendee>...
//
// Results are printed as JSON. With the sqlite account driver, feed
// subscriptions persist between invocations.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/hupe1980/calmesh"
	"github.com/hupe1980/calmesh/config"
	"github.com/hupe1980/calmesh/core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	userID     int
	merge      bool
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var flags globalFlags
	flagSet := pflag.NewFlagSet("calmesh", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVarP(&flags.configPath, "config", "c", "calmesh.yaml", "path to the YAML configuration (created if missing)")
	flagSet.IntVarP(&flags.userID, "user", "u", 1, "id of the user to act for")
	flagSet.BoolVar(&flags.merge, "merge", true, "merge overlapping free/busy intervals")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stdout, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(stdout, flagSet)
		return nil
	}

	cmd, ok := commands[flagSet.Arg(0)]
	if !ok {
		return fmt.Errorf("unknown command %q", flagSet.Arg(0))
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	mesh, err := calmesh.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer mesh.Close()

	e := &env{
		mesh:    mesh,
		session: core.Session{ID: "cli", UserID: flags.userID},
		flags:   flags,
		out:     stdout,
	}
	return cmd(ctx, e, flagSet.Args()[1:])
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `calmesh: unified access to calendar accounts.

Usage:
  calmesh [flags] <command> [args]

Commands:
  folders                               list visible folders of all accounts
  subscribe <name> <url>                subscribe to an ICS feed
  events <folder-id>...                 list the events of folders
  search <query>                        search events in all accounts
  freebusy <from> <until> <attendee>... query free/busy (RFC 3339 times)

Flags:
%s`, flagSet.FlagUsages())
}
