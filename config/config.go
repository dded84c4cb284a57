// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config builds the jujushell server configuration from the hook
// environment, the unit agent's credentials and the charm settings.
package config

import (
	"os"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/utils/v4"
	"gopkg.in/yaml.v2"

	"github.com/makyo/jujushell-charm/hookenv"
)

var logger = loggo.GetLogger("jujushell.config")

// ImageName is the alias of the LXD image used for terminal sessions.
const ImageName = "termserver"

// Document is the on-disk configuration read by the jujushell server.
type Document struct {
	// JujuAddrs holds the Juju controller API addresses.
	JujuAddrs []string `yaml:"juju-addrs"`
	// JujuCert is the PEM-encoded CA certificate of the controller.
	JujuCert string `yaml:"juju-cert"`
	// ImageName is the alias of the LXD image for terminal sessions.
	ImageName string `yaml:"image-name"`
	// LogLevel is the level the server logs at.
	LogLevel string `yaml:"log-level"`
	// Port is the port the server listens on.
	Port int `yaml:"port"`
}

// Build assembles the jujushell configuration and writes it atomically to
// the config path of the given environment, fully replacing any previous
// content. Nothing is written when any input is missing or invalid.
func Build(env hookenv.Env, settings hookenv.Settings) error {
	logger.Debugf("building jujushell config.yaml")
	if len(env.APIAddresses) == 0 {
		return errors.NotFoundf("Juju API addresses")
	}
	cert, err := readCACert(env.AgentConfPath())
	if err != nil {
		return errors.Trace(err)
	}
	data, err := yaml.Marshal(Document{
		JujuAddrs: env.APIAddresses,
		JujuCert:  cert,
		ImageName: ImageName,
		LogLevel:  settings.LogLevel,
		Port:      settings.Port,
	})
	if err != nil {
		return errors.Trace(err)
	}
	if err := utils.AtomicWriteFile(env.ConfigPath(), data, 0600); err != nil {
		return errors.Annotate(err, "cannot write jujushell configuration")
	}
	return nil
}

// readCACert returns the PEM-encoded certificate to use when connecting to
// the controller, parsed out of the unit agent's agent.conf.
func readCACert(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Annotate(err, "cannot read agent configuration")
	}
	var conf struct {
		CACert string `yaml:"cacert"`
	}
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return "", errors.Annotatef(err, "cannot parse %q", path)
	}
	if conf.CACert == "" {
		return "", errors.NotFoundf("certificate in %q", path)
	}
	return conf.CACert, nil
}
