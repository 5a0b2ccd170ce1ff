// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2022 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package strace_test

import (
	"os/exec"
	"time"

	. "gopkg.in/check.v1"

	"github.com/leifwalsh/flametrace/logger"
	"github.com/leifwalsh/flametrace/strace"
	"github.com/leifwalsh/flametrace/testutil"
)

type straceSuite struct {
	testutil.BaseTest
}

var _ = Suite(&straceSuite{})

func (s *straceSuite) SetUpTest(c *C) {
	s.BaseTest.SetUpTest(c)
	_, restore := logger.MockLogger()
	s.AddCleanup(restore)
}

func (s *straceSuite) TestCommandModernStrace(c *C) {
	mock := testutil.MockCommand(c, "strace", `echo "strace -- version 5.11"`)
	s.AddCleanup(mock.Restore)

	cmd, err := strace.Command(&strace.TraceOptions{
		TraceExpr: "trace=%process",
		Output:    "/tmp/out.strace",
	}, "ls", "-l")
	c.Assert(err, IsNil)
	c.Check(cmd.Path, Equals, mock.Exe())
	c.Check(cmd.Args, DeepEquals, []string{
		mock.Exe(),
		"--seccomp-bpf",
		"-tttyfT",
		"-e", "trace=%process",
		"-s", "128",
		"-o", "/tmp/out.strace",
		"--",
		"ls", "-l",
	})
	c.Check(mock.Calls(), DeepEquals, [][]string{
		{"strace", "-V"},
	})
}

func (s *straceSuite) TestCommandOldStrace(c *C) {
	mock := testutil.MockCommand(c, "strace", `echo "strace -- version 4.21"`)
	s.AddCleanup(mock.Restore)

	cmd, err := strace.Command(&strace.TraceOptions{
		TraceExpr: "trace=%process",
		Output:    "/tmp/out.strace",
	}, "true")
	c.Assert(err, IsNil)
	c.Check(cmd.Args, DeepEquals, []string{
		mock.Exe(),
		"-tttyfT",
		"-e", "trace=%process",
		"-s", "128",
		"-o", "/tmp/out.strace",
		"--",
		"true",
	})
}

func (s *straceSuite) TestCommandUnparseableVersion(c *C) {
	mock := testutil.MockCommand(c, "strace", `echo "something unexpected"`)
	s.AddCleanup(mock.Restore)

	// an unknown version just means no --seccomp-bpf
	cmd, err := strace.Command(&strace.TraceOptions{
		TraceExpr: "trace=%process",
		Output:    "/tmp/out.strace",
	}, "true")
	c.Assert(err, IsNil)
	c.Check(cmd.Args[1], Equals, "-tttyfT")
}

func (s *straceSuite) TestRunRelaysExitCode(c *C) {
	mock := testutil.MockCommand(c, "fake-tracee", "exit 7")
	s.AddCleanup(mock.Restore)

	code, err := strace.Run(exec.Command(mock.Exe()), 0)
	c.Assert(err, IsNil)
	c.Check(code, Equals, 7)
}

func (s *straceSuite) TestRunSuccess(c *C) {
	mock := testutil.MockCommand(c, "fake-tracee", "exit 0")
	s.AddCleanup(mock.Restore)

	code, err := strace.Run(exec.Command(mock.Exe()), 0)
	c.Assert(err, IsNil)
	c.Check(code, Equals, 0)
}

func (s *straceSuite) TestRunTimeout(c *C) {
	mock := testutil.MockCommand(c, "fake-tracee", "sleep 30")
	s.AddCleanup(mock.Restore)

	t0 := time.Now()
	code, err := strace.Run(exec.Command(mock.Exe()), 100*time.Millisecond)
	c.Assert(err, IsNil)
	// killed by SIGKILL, not a regular exit
	c.Check(code, Equals, -1)
	c.Check(time.Since(t0) < 10*time.Second, Equals, true)
}
