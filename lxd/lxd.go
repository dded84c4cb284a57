// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package lxd provisions the LXD runtime used to host terminal session
// containers: group membership, a bridge network, a storage pool and the
// base image. Every step probes before acting so that the whole sequence
// can be re-run safely.
package lxd

import (
	"bytes"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"

	"github.com/makyo/jujushell-charm/exec"
	"github.com/makyo/jujushell-charm/hookenv"
)

var logger = loggo.GetLogger("jujushell.lxd")

const (
	// BridgeName is the bridge network terminal containers attach to.
	BridgeName = "jujushellbr0"
	// ImageAlias is the alias the base image is imported under.
	ImageAlias = "termserver"
	// PoolName is the storage pool backing container roots.
	PoolName = "data"

	lxcPath = "/snap/bin/lxc"
	lxdPath = "/snap/bin/lxd"

	// imageArchive is where the image resource is staged before import.
	// The LXD snap is confined and cannot read the charm directory.
	imageArchive = "/tmp/termserver.tar.gz"

	// workingDir is used for all LXD commands: it must be visible from
	// the perspective of confined LXD.
	workingDir = "/"
)

// RunFunc runs a command with the given parameters and returns its
// combined output.
type RunFunc func(p exec.Params, command string, args ...string) (string, error)

// presence is the outcome of probing the LXD daemon for an entity.
// A failed probe is expected when the entity has not been set up yet, so it
// is represented as data rather than as an error.
type presence int

const (
	present presence = iota
	missing
)

// Bootstrapper performs the one-time LXD setup.
type Bootstrapper struct {
	run     RunFunc
	clock   clock.Clock
	ctx     hookenv.Context
	archive string
}

// NewBootstrapper returns a Bootstrapper using the given hook context.
func NewBootstrapper(ctx hookenv.Context, clk clock.Clock) *Bootstrapper {
	return &Bootstrapper{
		run:     exec.RunParams,
		clock:   clk,
		ctx:     ctx,
		archive: imageArchive,
	}
}

// Bootstrap provisions LXD. It reports whether provisioning completed: when
// the LXD snap is not installed yet the whole sequence is deferred and
// (false, nil) is returned, so the caller can retry on a later hook. Probe
// misses are expected and trigger the corresponding setup action; failures
// of the setup actions themselves are returned.
func (b *Bootstrapper) Bootstrap() (bool, error) {
	installed, err := b.snapInstalled()
	if err != nil {
		return false, errors.Trace(err)
	}
	if !installed {
		logger.Infof("lxd snap not installed yet, deferring LXD setup")
		return false, nil
	}

	if err := b.ctx.SetStatus(hookenv.StatusMaintenance, "configuring group membership"); err != nil {
		return false, errors.Trace(err)
	}
	if _, err := b.run(exec.Params{}, "adduser", "ubuntu", "lxd"); err != nil {
		return false, errors.Annotate(err, "cannot add ubuntu user to the lxd group")
	}

	network, err := b.probe("network", "show", BridgeName)
	if err != nil {
		return false, errors.Trace(err)
	}
	if network == missing {
		if err := b.initLXD(); err != nil {
			return false, errors.Trace(err)
		}
	} else {
		logger.Infof("lxd already initialized")
	}

	image, err := b.probe("image", "show", ImageAlias)
	if err != nil {
		return false, errors.Trace(err)
	}
	if image == missing {
		if err := b.importImage(); err != nil {
			return false, errors.Trace(err)
		}
	} else {
		logger.Infof("lxd image already imported")
	}

	if err := b.ctx.SetStatus(hookenv.StatusMaintenance, "LXD set up completed"); err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}

// snapInstalled reports whether the lxd snap is installed on the host.
func (b *Bootstrapper) snapInstalled() (bool, error) {
	_, err := b.run(exec.Params{}, "snap", "list", "lxd")
	if err == nil {
		return true, nil
	}
	if exec.IsExitError(err) {
		return false, nil
	}
	return false, errors.Trace(err)
}

// probe asks the LXD daemon whether an entity exists. An exit failure means
// the entity is missing; only a command that cannot be run at all is an
// error.
func (b *Bootstrapper) probe(args ...string) (presence, error) {
	_, err := b.run(exec.Params{WorkingDir: workingDir}, lxcPath, args...)
	if err == nil {
		return present, nil
	}
	if exec.IsExitError(err) {
		return missing, nil
	}
	return missing, errors.Trace(err)
}

// initLXD waits for the LXD daemon to become responsive and then feeds it
// the preseed document declaring the bridge, the storage pool and the
// default profile.
func (b *Bootstrapper) initLXD() error {
	if err := b.ctx.SetStatus(hookenv.StatusMaintenance, "setting up LXD"); err != nil {
		return errors.Trace(err)
	}
	if err := b.waitReady(); err != nil {
		return errors.Annotate(err, "lxd daemon did not become ready")
	}
	document, err := preseed()
	if err != nil {
		return errors.Trace(err)
	}
	_, err = b.run(exec.Params{
		WorkingDir: workingDir,
		Stdin:      bytes.NewReader(document),
	}, lxdPath, "init", "--preseed")
	if err != nil {
		return errors.Annotate(err, "cannot initialize lxd")
	}
	logger.Infof("lxd initialized")
	return nil
}

// waitReady polls the LXD daemon until it answers, with exponential backoff
// up to a bounded duration.
func (b *Bootstrapper) waitReady() error {
	return retry.Call(retry.CallArgs{
		Func: func() error {
			_, err := b.run(exec.Params{WorkingDir: workingDir}, lxcPath, "info")
			return err
		},
		// A missing lxc binary will not fix itself by waiting.
		IsFatalError: func(err error) bool {
			return !exec.IsExitError(err)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("lxd not ready yet (attempt %d): %v", attempt, err)
		},
		Attempts:    -1,
		Delay:       500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		MaxDuration: 30 * time.Second,
		BackoffFunc: retry.DoubleDelay,
		Clock:       b.clock,
	})
}

// importImage fetches the termserver image resource and imports it under
// the fixed alias.
func (b *Bootstrapper) importImage() error {
	if err := b.ctx.SetStatus(hookenv.StatusMaintenance, "fetching LXD image"); err != nil {
		return errors.Trace(err)
	}
	if err := hookenv.SaveResource(b.ctx, ImageAlias, b.archive); err != nil {
		return errors.Trace(err)
	}
	if err := b.ctx.SetStatus(hookenv.StatusMaintenance, "importing LXD image"); err != nil {
		return errors.Trace(err)
	}
	_, err := b.run(exec.Params{WorkingDir: workingDir},
		lxcPath, "image", "import", b.archive, "--alias", ImageAlias)
	if err != nil {
		return errors.Annotate(err, "cannot import lxd image")
	}
	logger.Infof("lxd image imported")
	return nil
}
