// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package charm

import (
	"os"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/utils/v4"
	"gopkg.in/yaml.v2"
)

// Phase names the coarse lifecycle state of the charm. After the service
// has been initialized exactly one of PhaseStarted and PhaseStopped holds.
type Phase string

const (
	PhaseUninstalled Phase = "uninstalled"
	PhaseInstalled   Phase = "installed"
	PhaseStarted     Phase = "started"
	PhaseStopped     Phase = "stopped"
)

var knownPhases = set.NewStrings(
	string(PhaseUninstalled),
	string(PhaseInstalled),
	string(PhaseStarted),
	string(PhaseStopped),
)

// State is the charm state persisted between hook invocations. The real
// system state (unit files, open ports, the running service) is the source
// of truth; these flags only mirror it so reactions stay idempotent.
type State struct {
	// Phase is the current lifecycle phase.
	Phase Phase `yaml:"phase"`
	// LXDReady guards the LXD bootstrap so it runs at most once.
	LXDReady bool `yaml:"lxd-ready"`
	// OpenPort is the port currently open for the service, or 0.
	OpenPort int `yaml:"open-port,omitempty"`
}

// StateStore loads and saves the persisted charm state.
type StateStore struct {
	path string
}

// NewStateStore returns a store persisting state at the given path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Load returns the persisted state. A missing state file is not an error:
// it means the charm has never run, so the zero state is returned.
func (s *StateStore) Load() (State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return State{Phase: PhaseUninstalled}, nil
	}
	if err != nil {
		return State{}, errors.Annotate(err, "cannot read charm state")
	}
	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return State{}, errors.Annotatef(err, "cannot parse charm state at %q", s.path)
	}
	if !knownPhases.Contains(string(state.Phase)) {
		return State{}, errors.NotValidf("charm state phase %q", state.Phase)
	}
	return state, nil
}

// Save persists the given state, atomically replacing the previous one.
func (s *StateStore) Save(state State) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotate(utils.AtomicWriteFile(s.path, data, 0600), "cannot write charm state")
}
