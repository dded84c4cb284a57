// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package charm implements the jujushell lifecycle as an explicit state
// machine: each hook reaction takes the persisted charm state, performs its
// idempotent side effects on the host, and persists the next state.
package charm

import (
	"os"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/makyo/jujushell-charm/config"
	"github.com/makyo/jujushell-charm/hookenv"
	"github.com/makyo/jujushell-charm/lxd"
	"github.com/makyo/jujushell-charm/systemd"
)

var logger = loggo.GetLogger("jujushell.charm")

// BinaryResource is the name of the charm resource holding the jujushell
// server binary.
const BinaryResource = "jujushell"

// ServiceManager mirrors the systemd operations the charm drives.
type ServiceManager interface {
	WriteUnit(binary, config string) error
	Enable() error
	DaemonReload() error
	Restart() error
	Stop() error
}

// Provisioner performs the one-time LXD setup. It reports whether the setup
// completed, so a deferred setup can be retried on a later hook.
type Provisioner interface {
	Bootstrap() (bool, error)
}

// Charm reacts to the jujushell unit's lifecycle hooks.
type Charm struct {
	env     hookenv.Env
	ctx     hookenv.Context
	store   *StateStore
	service ServiceManager
	lxd     Provisioner
}

// New returns a Charm wired to the real host: systemctl, the LXD snap and
// the Juju hook tools.
func New(env hookenv.Env, ctx hookenv.Context, clk clock.Clock) *Charm {
	return &Charm{
		env:     env,
		ctx:     ctx,
		store:   NewStateStore(env.StatePath()),
		service: systemd.NewService(),
		lxd:     lxd.NewBootstrapper(ctx, clk),
	}
}

// Install reacts to the install hook: it renders the systemd unit, installs
// the jujushell binary resource, builds the server configuration and
// enables the unit. On success the charm moves to the installed phase; on
// failure the persisted state is left untouched so a retried hook starts
// over.
func (c *Charm) Install() error {
	state, err := c.store.Load()
	if err != nil {
		return errors.Trace(err)
	}
	if err := c.ctx.SetStatus(hookenv.StatusMaintenance, "creating systemd unit"); err != nil {
		return errors.Trace(err)
	}
	if err := os.MkdirAll(c.env.FilesDir(), 0755); err != nil {
		return errors.Annotate(err, "cannot create files directory")
	}
	if err := c.service.WriteUnit(c.env.BinaryPath(), c.env.ConfigPath()); err != nil {
		return errors.Trace(err)
	}
	if err := hookenv.SaveResource(c.ctx, BinaryResource, c.env.BinaryPath()); err != nil {
		return errors.Trace(err)
	}
	if err := os.Chmod(c.env.BinaryPath(), 0775); err != nil {
		return errors.Annotate(err, "cannot make the jujushell binary executable")
	}
	if err := c.buildConfig(); err != nil {
		return errors.Trace(err)
	}
	if err := c.ctx.SetStatus(hookenv.StatusMaintenance, "enabling systemd unit"); err != nil {
		return errors.Trace(err)
	}
	if err := c.service.Enable(); err != nil {
		return errors.Trace(err)
	}
	if err := c.service.DaemonReload(); err != nil {
		return errors.Trace(err)
	}
	state.Phase = PhaseInstalled
	if err := c.store.Save(state); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.ctx.SetStatus(hookenv.StatusMaintenance, "jujushell installed"))
}

// Start reacts to the start hook.
func (c *Charm) Start() error {
	return errors.Trace(c.startOrReconfigure())
}

// ConfigChanged reacts to the config-changed hook.
func (c *Charm) ConfigChanged() error {
	return errors.Trace(c.startOrReconfigure())
}

func (c *Charm) startOrReconfigure() error {
	state, err := c.store.Load()
	if err != nil {
		return errors.Trace(err)
	}
	if !state.LXDReady {
		done, err := c.lxd.Bootstrap()
		if err != nil {
			return errors.Trace(err)
		}
		if done {
			state.LXDReady = true
			if err := c.store.Save(state); err != nil {
				return errors.Trace(err)
			}
		}
	}
	return errors.Trace(c.restart(state))
}

// restart reconciles the open port with the configured one, rebuilds the
// server configuration and restarts the service.
func (c *Charm) restart(state State) error {
	if err := c.ctx.SetStatus(hookenv.StatusMaintenance, "(re)starting the jujushell service"); err != nil {
		return errors.Trace(err)
	}
	settings, err := c.ctx.Settings()
	if err != nil {
		return errors.Trace(err)
	}
	state, err = c.managePorts(state, settings.Port)
	if err != nil {
		return errors.Trace(err)
	}
	if err := config.Build(c.env, settings); err != nil {
		return errors.Trace(err)
	}
	if err := c.service.Restart(); err != nil {
		return errors.Trace(err)
	}
	state.Phase = PhaseStarted
	if err := c.store.Save(state); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.ctx.SetStatus(hookenv.StatusActive, "jujushell is ready"))
}

// managePorts opens the configured port, closing the previously open one
// first when the configuration changed. At most one port is ever open.
func (c *Charm) managePorts(state State, port int) (State, error) {
	if state.OpenPort != 0 && state.OpenPort != port {
		logger.Infof("port updated from %d to %d", state.OpenPort, port)
		if err := c.ctx.ClosePort(state.OpenPort); err != nil {
			return state, errors.Trace(err)
		}
	}
	if err := c.ctx.OpenPort(port); err != nil {
		return state, errors.Trace(err)
	}
	state.OpenPort = port
	return state, nil
}

// Stop reacts to the stop hook, stopping the jujushell service.
func (c *Charm) Stop() error {
	state, err := c.store.Load()
	if err != nil {
		return errors.Trace(err)
	}
	if err := c.service.Stop(); err != nil {
		return errors.Trace(err)
	}
	state.Phase = PhaseStopped
	return errors.Trace(c.store.Save(state))
}

func (c *Charm) buildConfig() error {
	settings, err := c.ctx.Settings()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(config.Build(c.env, settings))
}
