// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hookenv

import (
	"github.com/juju/errors"
	"gopkg.in/yaml.v2"
)

func parseSettings(data []byte) (Settings, error) {
	var raw struct {
		LogLevel string `yaml:"log-level"`
		Port     int    `yaml:"port"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Settings{}, errors.Annotate(err, "cannot parse charm configuration")
	}
	if raw.LogLevel == "" {
		return Settings{}, errors.NotValidf("charm configuration without log-level")
	}
	if raw.Port <= 0 {
		return Settings{}, errors.NotValidf("charm configuration port %d", raw.Port)
	}
	return Settings{
		LogLevel: raw.LogLevel,
		Port:     raw.Port,
	}, nil
}
