// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package exec_test

import (
	"strings"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/makyo/jujushell-charm/exec"
)

type execSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&execSuite{})

func (s *execSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	// The isolation suite scrubs the environment, including PATH.
	s.PatchEnvironment("PATH", "/usr/bin:/bin")
}

func (s *execSuite) TestRunSuccess(c *gc.C) {
	out, err := exec.Run("/bin/sh", "-c", "echo these are the voyages")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(out, gc.Equals, "these are the voyages")
}

func (s *execSuite) TestRunCombinesOutput(c *gc.C) {
	out, err := exec.Run("/bin/sh", "-c", "echo to stdout; echo to stderr >&2")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(out, gc.Equals, "to stdout\nto stderr")
}

func (s *execSuite) TestRunExitError(c *gc.C) {
	out, err := exec.Run("/bin/sh", "-c", "echo bad wolf >&2; exit 2")
	c.Assert(err, gc.NotNil)
	c.Assert(exec.IsExitError(err), jc.IsTrue)
	exitErr := err.(*exec.ExitError)
	c.Assert(exitErr.Code, gc.Equals, 2)
	c.Assert(exitErr.Output, gc.Equals, "bad wolf")
	c.Assert(exitErr.Cmdline, gc.Equals, `/bin/sh -c 'echo bad wolf >&2; exit 2'`)
	c.Assert(out, gc.Equals, "bad wolf")
	c.Assert(err, gc.ErrorMatches, `command "/bin/sh -c 'echo bad wolf >&2; exit 2'" failed with retcode 2: "bad wolf"`)
}

func (s *execSuite) TestRunNotFound(c *gc.C) {
	_, err := exec.Run("no-such-command-anywhere")
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
	c.Assert(exec.IsExitError(err), jc.IsFalse)
	c.Assert(err, gc.ErrorMatches, `command "no-such-command-anywhere".*`)
}

func (s *execSuite) TestRunParamsWorkingDir(c *gc.C) {
	dir := c.MkDir()
	out, err := exec.RunParams(exec.Params{WorkingDir: dir}, "pwd")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(out, gc.Equals, dir)
}

func (s *execSuite) TestRunParamsStdin(c *gc.C) {
	out, err := exec.RunParams(exec.Params{
		Stdin: strings.NewReader("from the other side\n"),
	}, "cat")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(out, gc.Equals, "from the other side")
}

func (s *execSuite) TestRunParamsUseShell(c *gc.C) {
	out, err := exec.RunParams(exec.Params{UseShell: true}, "echo", "hello there")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(out, gc.Equals, "hello there")
}
