// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package exec runs external commands on behalf of the charm, capturing
// their combined output and turning failures into typed errors that
// callers can distinguish from expected probe misses.
package exec

import (
	"bytes"
	"fmt"
	"io"
	osexec "os/exec"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/kballard/go-shellquote"
)

var logger = loggo.GetLogger("jujushell.exec")

// ExitError reports a command that ran to completion and exited with a
// non-zero code. The combined stdout and stderr of the process is kept so
// that hook failures carry enough context to debug from the Juju logs.
type ExitError struct {
	// Cmdline is the shell-quoted command line that was run.
	Cmdline string
	// Code is the process exit code.
	Code int
	// Output is the combined standard output and error of the process.
	Output string
}

// Error implements error.
func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q failed with retcode %d: %q", e.Cmdline, e.Code, e.Output)
}

// IsExitError reports whether err was caused by a command exiting with a
// non-zero code, as opposed to the command not being runnable at all.
func IsExitError(err error) bool {
	_, ok := errors.Cause(err).(*ExitError)
	return ok
}

// Params holds optional parameters for running a command.
type Params struct {
	// WorkingDir, if set, is the directory the command runs in.
	WorkingDir string
	// Stdin, if set, is fed to the command's standard input.
	Stdin io.Reader
	// UseShell runs the command line through "/bin/sh -c".
	UseShell bool
}

// Run runs the given command with default parameters, blocking until it
// exits, and returns its combined output. A non-zero exit results in an
// *ExitError; a command that cannot be started at all results in an error
// satisfying errors.IsNotFound.
func Run(command string, args ...string) (string, error) {
	return RunParams(Params{}, command, args...)
}

// RunParams is like Run but with explicit parameters.
func RunParams(p Params, command string, args ...string) (string, error) {
	cmdline := shellquote.Join(append([]string{command}, args...)...)
	logger.Debugf("running the following: %s", cmdline)

	var cmd *osexec.Cmd
	if p.UseShell {
		cmd = osexec.Command("/bin/sh", "-c", cmdline)
	} else {
		cmd = osexec.Command(command, args...)
	}
	cmd.Dir = p.WorkingDir
	cmd.Stdin = p.Stdin
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := strings.TrimSpace(buf.String())
	if err == nil {
		logger.Debugf("command %q succeeded: %q", cmdline, output)
		return output, nil
	}
	if exitErr, ok := err.(*osexec.ExitError); ok {
		failure := &ExitError{
			Cmdline: cmdline,
			Code:    exitErr.ExitCode(),
			Output:  output,
		}
		logger.Warningf("%s", failure.Error())
		return output, failure
	}
	logger.Warningf("command %q could not be started: %v", cmdline, err)
	return "", errors.NewNotFound(err, fmt.Sprintf("command %q", command))
}
