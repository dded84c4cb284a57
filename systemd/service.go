// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package systemd manages the jujushell systemd unit: rendering the unit
// definition and driving systemctl through the command executor.
package systemd

import (
	"bytes"
	"text/template"

	"github.com/coreos/go-systemd/v22/util"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/utils/v4"

	"github.com/makyo/jujushell-charm/exec"
)

var logger = loggo.GetLogger("jujushell.systemd")

const (
	// UnitName is the name of the jujushell systemd unit.
	UnitName = "jujushell.service"
	// UnitPath is where the unit definition is rendered.
	UnitPath = "/usr/lib/systemd/user/" + UnitName
)

var unitTemplate = template.Must(template.New("unit").Parse(`
[Unit]
Description=jujushell terminal server
After=network.target

[Service]
ExecStart={{.Binary}} -config {{.Config}}
Restart=on-failure

[Install]
WantedBy=multi-user.target
`[1:]))

// RunFunc runs a command and returns its combined output.
type RunFunc func(command string, args ...string) (string, error)

// Service controls the jujushell unit via systemctl.
type Service struct {
	unitPath  string
	run       RunFunc
	isRunning func() bool
}

// NewService returns a Service with production defaults.
func NewService() *Service {
	return &Service{
		unitPath:  UnitPath,
		run:       exec.Run,
		isRunning: util.IsRunningSystemd,
	}
}

// WriteUnit renders the unit definition pointing at the given jujushell
// binary and configuration file, replacing any previous definition.
func (s *Service) WriteUnit(binary, config string) error {
	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, struct {
		Binary string
		Config string
	}{binary, config})
	if err != nil {
		return errors.Annotate(err, "cannot render systemd unit")
	}
	if err := utils.AtomicWriteFile(s.unitPath, buf.Bytes(), 0775); err != nil {
		return errors.Annotatef(err, "cannot write systemd unit at %q", s.unitPath)
	}
	logger.Debugf("systemd unit written at %q", s.unitPath)
	return nil
}

// Enable enables the unit so it starts at boot.
func (s *Service) Enable() error {
	if !s.isRunning() {
		return errors.NotSupportedf("enabling services without systemd")
	}
	_, err := s.run("systemctl", "enable", s.unitPath)
	return errors.Trace(err)
}

// DaemonReload makes systemd pick up unit definition changes.
func (s *Service) DaemonReload() error {
	_, err := s.run("systemctl", "daemon-reload")
	return errors.Trace(err)
}

// Restart restarts the jujushell service, starting it if not running.
func (s *Service) Restart() error {
	_, err := s.run("systemctl", "restart", UnitName)
	return errors.Trace(err)
}

// Stop stops the jujushell service.
func (s *Service) Stop() error {
	_, err := s.run("systemctl", "stop", UnitName)
	return errors.Trace(err)
}
