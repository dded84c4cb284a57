// Copyright 2018 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lxd_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/makyo/jujushell-charm/exec"
	"github.com/makyo/jujushell-charm/hookenv"
	"github.com/makyo/jujushell-charm/lxd"
)

type lxdSuite struct {
	testing.IsolationSuite

	calls    []call
	failures map[string]error
	ctx      *fakeContext
	archive  string
}

var _ = gc.Suite(&lxdSuite{})

type call struct {
	cmdline string
	dir     string
	stdin   string
}

func (s *lxdSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.calls = nil
	s.failures = make(map[string]error)
	s.ctx = &fakeContext{resources: make(map[string]string)}
	s.archive = filepath.Join(c.MkDir(), "termserver.tar.gz")
}

func (s *lxdSuite) bootstrapper(clk clock.Clock) *lxd.Bootstrapper {
	return lxd.NewBootstrapperWithRunner(s.ctx, clk, s.runner(), s.archive)
}

func (s *lxdSuite) runner() lxd.RunFunc {
	return func(p exec.Params, command string, args ...string) (string, error) {
		cmdline := strings.Join(append([]string{command}, args...), " ")
		stdin := ""
		if p.Stdin != nil {
			data, err := io.ReadAll(p.Stdin)
			if err != nil {
				return "", err
			}
			stdin = string(data)
		}
		s.calls = append(s.calls, call{
			cmdline: cmdline,
			dir:     p.WorkingDir,
			stdin:   stdin,
		})
		return "", s.failures[cmdline]
	}
}

// exitFailure returns the error produced when a probe command exits
// non-zero.
func exitFailure(cmdline string) error {
	return &exec.ExitError{
		Cmdline: cmdline,
		Code:    1,
		Output:  "not found",
	}
}

func (s *lxdSuite) cmdlines(c *gc.C) []string {
	lines := make([]string, len(s.calls))
	for i, call := range s.calls {
		lines[i] = call.cmdline
	}
	return lines
}

func (s *lxdSuite) TestBootstrapDeferredWithoutSnap(c *gc.C) {
	s.failures["snap list lxd"] = exitFailure("snap list lxd")
	done, err := s.bootstrapper(clock.WallClock).Bootstrap()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(done, jc.IsFalse)
	c.Assert(s.cmdlines(c), jc.DeepEquals, []string{"snap list lxd"})
	c.Assert(s.ctx.statuses, gc.HasLen, 0)
}

func (s *lxdSuite) TestBootstrapSnapProbeFatal(c *gc.C) {
	s.failures["snap list lxd"] = errors.NotFoundf(`command "snap"`)
	_, err := s.bootstrapper(clock.WallClock).Bootstrap()
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *lxdSuite) TestBootstrapAlreadyInitialized(c *gc.C) {
	done, err := s.bootstrapper(clock.WallClock).Bootstrap()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(done, jc.IsTrue)
	c.Assert(s.cmdlines(c), jc.DeepEquals, []string{
		"snap list lxd",
		"adduser ubuntu lxd",
		"/snap/bin/lxc network show jujushellbr0",
		"/snap/bin/lxc image show termserver",
	})
	// LXD commands run from a directory visible to the confined snap.
	c.Assert(s.calls[2].dir, gc.Equals, "/")
	c.Assert(s.calls[3].dir, gc.Equals, "/")
	c.Assert(s.ctx.statuses, jc.DeepEquals, []string{
		"maintenance: configuring group membership",
		"maintenance: LXD set up completed",
	})
}

func (s *lxdSuite) TestBootstrapInitializesLXD(c *gc.C) {
	s.failures["/snap/bin/lxc network show jujushellbr0"] = exitFailure("network show")
	done, err := s.bootstrapper(clock.WallClock).Bootstrap()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(done, jc.IsTrue)
	c.Assert(s.cmdlines(c), jc.DeepEquals, []string{
		"snap list lxd",
		"adduser ubuntu lxd",
		"/snap/bin/lxc network show jujushellbr0",
		"/snap/bin/lxc info",
		"/snap/bin/lxd init --preseed",
		"/snap/bin/lxc image show termserver",
	})
	document, err := lxd.Preseed()
	c.Assert(err, jc.ErrorIsNil)
	init := s.calls[4]
	c.Assert(init.stdin, gc.Equals, string(document))
	c.Assert(init.dir, gc.Equals, "/")
	c.Assert(s.ctx.statuses, jc.DeepEquals, []string{
		"maintenance: configuring group membership",
		"maintenance: setting up LXD",
		"maintenance: LXD set up completed",
	})
}

func (s *lxdSuite) TestBootstrapWaitsForDaemon(c *gc.C) {
	s.failures["/snap/bin/lxc network show jujushellbr0"] = exitFailure("network show")
	clk := testclock.NewClock(time.Now())

	attempts := 0
	failTwice := func(p exec.Params, command string, args ...string) (string, error) {
		cmdline := strings.Join(append([]string{command}, args...), " ")
		if cmdline == "/snap/bin/lxc info" {
			attempts++
			if attempts < 3 {
				return "", exitFailure(cmdline)
			}
			return "", nil
		}
		return s.runner()(p, command, args...)
	}
	b := lxd.NewBootstrapperWithRunner(s.ctx, clk, failTwice, s.archive)

	result := make(chan error)
	go func() {
		_, err := b.Bootstrap()
		result <- err
	}()
	// The first retry delay is 500ms, doubled afterwards.
	err := clk.WaitAdvance(500*time.Millisecond, testing.LongWait, 1)
	c.Assert(err, jc.ErrorIsNil)
	err = clk.WaitAdvance(time.Second, testing.LongWait, 1)
	c.Assert(err, jc.ErrorIsNil)

	select {
	case err := <-result:
		c.Assert(err, jc.ErrorIsNil)
	case <-time.After(testing.LongWait):
		c.Fatal("timed out waiting for bootstrap to complete")
	}
	c.Assert(attempts, gc.Equals, 3)
}

func (s *lxdSuite) TestBootstrapInitFailure(c *gc.C) {
	s.failures["/snap/bin/lxc network show jujushellbr0"] = exitFailure("network show")
	s.failures["/snap/bin/lxd init --preseed"] = exitFailure("init")
	_, err := s.bootstrapper(clock.WallClock).Bootstrap()
	c.Assert(err, gc.ErrorMatches, "cannot initialize lxd: .*")
}

func (s *lxdSuite) TestBootstrapProbeFatalWhenLxcMissing(c *gc.C) {
	s.failures["/snap/bin/lxc network show jujushellbr0"] = errors.NotFoundf(`command "/snap/bin/lxc"`)
	_, err := s.bootstrapper(clock.WallClock).Bootstrap()
	c.Assert(err, jc.Satisfies, errors.IsNotFound)
}

func (s *lxdSuite) TestBootstrapImportsImage(c *gc.C) {
	source := filepath.Join(c.MkDir(), "downloaded.tar.gz")
	err := os.WriteFile(source, []byte("image bits"), 0600)
	c.Assert(err, jc.ErrorIsNil)
	s.ctx.resources["termserver"] = source
	s.failures["/snap/bin/lxc image show termserver"] = exitFailure("image show")

	done, err := s.bootstrapper(clock.WallClock).Bootstrap()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(done, jc.IsTrue)
	c.Assert(s.cmdlines(c), jc.DeepEquals, []string{
		"snap list lxd",
		"adduser ubuntu lxd",
		"/snap/bin/lxc network show jujushellbr0",
		"/snap/bin/lxc image show termserver",
		"/snap/bin/lxc image import " + s.archive + " --alias termserver",
	})
	data, err := os.ReadFile(s.archive)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), gc.Equals, "image bits")
	c.Assert(s.ctx.statuses, jc.DeepEquals, []string{
		"maintenance: configuring group membership",
		"maintenance: fetching LXD image",
		"maintenance: importing LXD image",
		"maintenance: LXD set up completed",
	})
}

func (s *lxdSuite) TestBootstrapImportFailure(c *gc.C) {
	source := filepath.Join(c.MkDir(), "downloaded.tar.gz")
	err := os.WriteFile(source, []byte("image bits"), 0600)
	c.Assert(err, jc.ErrorIsNil)
	s.ctx.resources["termserver"] = source
	s.failures["/snap/bin/lxc image show termserver"] = exitFailure("image show")
	importCmd := "/snap/bin/lxc image import " + s.archive + " --alias termserver"
	s.failures[importCmd] = exitFailure(importCmd)

	_, err = s.bootstrapper(clock.WallClock).Bootstrap()
	c.Assert(err, gc.ErrorMatches, "cannot import lxd image: .*")
}

func (s *lxdSuite) TestBootstrapAdduserFailure(c *gc.C) {
	s.failures["adduser ubuntu lxd"] = exitFailure("adduser")
	_, err := s.bootstrapper(clock.WallClock).Bootstrap()
	c.Assert(err, gc.ErrorMatches, "cannot add ubuntu user to the lxd group: .*")
}

func (s *lxdSuite) TestPreseedDocument(c *gc.C) {
	document, err := lxd.Preseed()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(document), gc.Equals, `
networks:
- name: jujushellbr0
  type: bridge
  config:
    ipv4.address: auto
    ipv6.address: none
storage_pools:
- name: data
  driver: zfs
profiles:
- name: default
  devices:
    eth0:
      name: eth0
      nictype: bridged
      parent: jujushellbr0
      type: nic
    root:
      path: /
      pool: data
      type: disk
`[1:])
}

// fakeContext implements hookenv.Context for tests.
type fakeContext struct {
	statuses  []string
	resources map[string]string
	opened    []int
	closed    []int
	settings  hookenv.Settings
}

func (ctx *fakeContext) Settings() (hookenv.Settings, error) {
	return ctx.settings, nil
}

func (ctx *fakeContext) OpenPort(port int) error {
	ctx.opened = append(ctx.opened, port)
	return nil
}

func (ctx *fakeContext) ClosePort(port int) error {
	ctx.closed = append(ctx.closed, port)
	return nil
}

func (ctx *fakeContext) ResourcePath(name string) (string, error) {
	path, ok := ctx.resources[name]
	if !ok {
		return "", errors.NotFoundf("resource %q", name)
	}
	return path, nil
}

func (ctx *fakeContext) SetStatus(status hookenv.Status, message string) error {
	ctx.statuses = append(ctx.statuses, string(status)+": "+message)
	return nil
}
