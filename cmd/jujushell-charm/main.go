// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"

	"github.com/makyo/jujushell-charm/charm"
	"github.com/makyo/jujushell-charm/hookenv"
)

var logger = loggo.GetLogger("jujushell.cmd")

var knownHooks = set.NewStrings("install", "start", "config-changed", "stop")

const (
	exitOK = 0
	// exitFailed reports a hook that ran and failed: the unit agent marks
	// the hook as failed and retries it later.
	exitFailed = 1
	// exitUsage reports the command was invoked in an invalid way.
	exitUsage = 2
)

func main() {
	os.Exit(Main(os.Args))
}

// Main runs the hook named either by the executable itself, when dispatched
// through a hooks/<name> symlink, or by the first positional argument.
func Main(args []string) int {
	name := filepath.Base(args[0])
	flags := gnuflag.NewFlagSet(name, gnuflag.ContinueOnError)
	debug := flags.Bool("debug", false, "enable debug logging")
	if err := flags.Parse(true, args[1:]); err != nil {
		return exitUsage
	}

	hook := name
	if !knownHooks.Contains(hook) {
		if flags.NArg() != 1 {
			fmt.Fprintf(os.Stderr, "usage: %s [--debug] <hook>\nhooks: %s\n",
				name, strings.Join(knownHooks.SortedValues(), ", "))
			return exitUsage
		}
		hook = flags.Arg(0)
	}
	if !knownHooks.Contains(hook) {
		fmt.Fprintf(os.Stderr, "unknown hook %q\n", hook)
		return exitUsage
	}

	setUpLogging(*debug)
	if err := dispatch(hook); err != nil {
		logger.Errorf("hook %q failed: %v", hook, err)
		return exitFailed
	}
	logger.Infof("hook %q completed", hook)
	return exitOK
}

func setUpLogging(debug bool) {
	level := "INFO"
	if debug {
		level = "DEBUG"
	}
	if err := loggo.ConfigureLoggers("jujushell=" + level); err != nil {
		fmt.Fprintf(os.Stderr, "cannot configure logging: %v\n", err)
	}
	// Forward entries to the unit log on the controller as well.
	if err := loggo.RegisterWriter("juju-log", hookenv.NewLogWriter()); err != nil {
		logger.Warningf("cannot register the juju-log writer: %v", err)
	}
}

func dispatch(hook string) error {
	env, err := hookenv.ReadEnv()
	if err != nil {
		return errors.Trace(err)
	}
	c := charm.New(env, hookenv.NewContext(), clock.WallClock)
	switch hook {
	case "install":
		return errors.Trace(c.Install())
	case "start":
		return errors.Trace(c.Start())
	case "config-changed":
		return errors.Trace(c.ConfigChanged())
	case "stop":
		return errors.Trace(c.Stop())
	}
	return errors.Errorf("unknown hook %q", hook)
}
