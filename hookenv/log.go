// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hookenv

import (
	osexec "os/exec"

	"github.com/juju/loggo"
)

// logWriter forwards log entries to the juju-log hook tool so that they end
// up in the unit's log on the controller.
type logWriter struct {
	run RunFunc
}

// NewLogWriter returns a loggo.Writer that forwards entries to juju-log.
// Failures to run the tool are swallowed: logging must never fail a hook.
func NewLogWriter() loggo.Writer {
	// The writer deliberately does not go through the exec package: the
	// executor logs its own invocations, which would feed back into this
	// writer and recurse.
	return &logWriter{run: func(command string, args ...string) (string, error) {
		return "", osexec.Command(command, args...).Run()
	}}
}

// Write implements loggo.Writer.
func (w *logWriter) Write(entry loggo.Entry) {
	level := entry.Level
	if level < loggo.DEBUG {
		level = loggo.DEBUG
	}
	w.run("juju-log", "-l", level.String(), entry.Module+": "+entry.Message)
}
