// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hookenv mediates between the charm and the Juju hook environment:
// charm settings, port ranges, workload status, resources and logging, all
// reached through the hook tools the unit agent puts on the path.
package hookenv

import (
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/makyo/jujushell-charm/exec"
)

var logger = loggo.GetLogger("jujushell.hookenv")

// Status is a workload status reported to the Juju controller.
type Status string

const (
	StatusMaintenance Status = "maintenance"
	StatusBlocked     Status = "blocked"
	StatusWaiting     Status = "waiting"
	StatusActive      Status = "active"
)

// Settings holds the user-settable charm configuration options.
type Settings struct {
	// LogLevel is the log level the jujushell server runs at.
	LogLevel string
	// Port is the port the jujushell server listens on.
	Port int
}

// Context gives charm reactions access to the Juju hook environment.
type Context interface {
	// Settings returns the current charm configuration.
	Settings() (Settings, error)

	// OpenPort opens the given TCP port to the outside world.
	OpenPort(port int) error

	// ClosePort closes a TCP port previously opened with OpenPort.
	ClosePort(port int) error

	// ResourcePath fetches the charm resource with the given name and
	// returns the local path it has been downloaded to.
	ResourcePath(name string) (string, error)

	// SetStatus reports the unit's workload status to the controller.
	SetStatus(status Status, message string) error
}

// RunFunc runs a hook tool and returns its combined output.
type RunFunc func(command string, args ...string) (string, error)

type hookContext struct {
	run RunFunc
}

// NewContext returns a Context backed by the Juju hook tools.
func NewContext() Context {
	return &hookContext{run: exec.Run}
}

// Settings implements Context.
func (ctx *hookContext) Settings() (Settings, error) {
	out, err := ctx.run("config-get", "--format=yaml", "--all")
	if err != nil {
		return Settings{}, errors.Annotate(err, "cannot get charm configuration")
	}
	settings, err := parseSettings([]byte(out))
	return settings, errors.Trace(err)
}

// OpenPort implements Context.
func (ctx *hookContext) OpenPort(port int) error {
	_, err := ctx.run("open-port", fmt.Sprintf("%d/tcp", port))
	return errors.Annotatef(err, "cannot open port %d", port)
}

// ClosePort implements Context.
func (ctx *hookContext) ClosePort(port int) error {
	_, err := ctx.run("close-port", fmt.Sprintf("%d/tcp", port))
	return errors.Annotatef(err, "cannot close port %d", port)
}

// ResourcePath implements Context.
func (ctx *hookContext) ResourcePath(name string) (string, error) {
	logger.Debugf("retrieving resource %q", name)
	out, err := ctx.run("resource-get", name)
	if err != nil {
		return "", errors.Annotatef(err, "cannot retrieve resource %q", name)
	}
	if out == "" {
		return "", errors.NotFoundf("resource %q", name)
	}
	return out, nil
}

// SetStatus implements Context.
func (ctx *hookContext) SetStatus(status Status, message string) error {
	_, err := ctx.run("status-set", string(status), message)
	return errors.Annotatef(err, "cannot set status %q", status)
}

// SaveResource fetches the named charm resource and moves it to the given
// path. The containing directory must already exist.
func SaveResource(ctx Context, name, path string) error {
	resource, err := ctx.ResourcePath(name)
	if err != nil {
		return errors.Trace(err)
	}
	if err := os.Rename(resource, path); err != nil {
		return errors.Annotatef(err, "cannot save resource %q", name)
	}
	logger.Debugf("resource %q saved at %q", name, path)
	return nil
}
