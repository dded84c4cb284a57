// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hookenv

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/names/v5"
)

// DefaultDataDir is where the Juju machine agent keeps unit state.
const DefaultDataDir = "/var/lib/juju"

// Env holds the hook environment the charm was invoked with. It is built
// once at startup and passed explicitly to the components that need it, so
// that nothing else reads process environment variables.
type Env struct {
	// CharmDir is the expanded charm directory.
	CharmDir string
	// UnitTag identifies the unit running this hook.
	UnitTag names.UnitTag
	// DataDir is the Juju agent data directory.
	DataDir string
	// APIAddresses holds the Juju controller API addresses, in the order
	// provided by the agent. It may be empty outside of hooks that supply
	// them; consumers requiring addresses must check.
	APIAddresses []string
}

// ReadEnv builds an Env from the process environment provided by the Juju
// unit agent when dispatching a hook.
func ReadEnv() (Env, error) {
	charmDir := os.Getenv("JUJU_CHARM_DIR")
	if charmDir == "" {
		// Older agents export CHARM_DIR instead.
		charmDir = os.Getenv("CHARM_DIR")
	}
	if charmDir == "" {
		return Env{}, errors.NotFoundf("JUJU_CHARM_DIR in the hook environment")
	}
	unit := os.Getenv("JUJU_UNIT_NAME")
	if !names.IsValidUnit(unit) {
		return Env{}, errors.NotValidf("unit name %q", unit)
	}
	return Env{
		CharmDir:     charmDir,
		UnitTag:      names.NewUnitTag(unit),
		DataDir:      DefaultDataDir,
		APIAddresses: strings.Fields(os.Getenv("JUJU_API_ADDRESSES")),
	}, nil
}

// FilesDir returns the directory holding the jujushell binary and its
// configuration, inside the charm directory.
func (e Env) FilesDir() string {
	return filepath.Join(e.CharmDir, "files")
}

// BinaryPath returns where the jujushell binary resource is installed.
func (e Env) BinaryPath() string {
	return filepath.Join(e.FilesDir(), "jujushell")
}

// ConfigPath returns where the jujushell server configuration is written.
func (e Env) ConfigPath() string {
	return filepath.Join(e.FilesDir(), "config.yaml")
}

// AgentConfPath returns the path of this unit's agent.conf, from which the
// controller CA certificate is read.
func (e Env) AgentConfPath() string {
	return filepath.Join(e.DataDir, "agents", e.UnitTag.String(), "agent.conf")
}

// StatePath returns where the charm persists its lifecycle state.
func (e Env) StatePath() string {
	return filepath.Join(e.CharmDir, ".jujushell-state.yaml")
}
