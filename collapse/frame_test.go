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

package collapse

import (
	. "gopkg.in/check.v1"
)

type frameSuite struct{}

var _ = Suite(&frameSuite{})

func (s *frameSuite) TestStackSimple(c *C) {
	p := &Process{PID: 100, Args: `"/bin/ls", ["ls"], 0x0`}
	c.Check(p.Stack(), Equals, `/bin/ls(100) ['ls']`)
}

func (s *frameSuite) TestStackTruncatedArgv(c *C) {
	p := &Process{PID: 100, Args: `"/bin/bash", ["bash", "-c", "very-long-cmd"...], 0x0`}
	c.Check(p.Stack(), Equals, `/bin/bash(100) ['bash', '-c', 'very-long-cmd', '...']`)
}

func (s *frameSuite) TestStackUndecodableArgvKeepsPrefix(c *C) {
	// an argv literal that does not decode falls back to its first
	// 32 characters
	p := &Process{PID: 100, Args: `"/bin/x", [unquoted, garbage, that, goes, on, and, on], 0x0`}
	c.Check(p.Stack(), Equals, `/bin/x(100) [unquoted, garbage, that, goes, `)
}

func (s *frameSuite) TestStackNonListArgvKeptVerbatim(c *C) {
	p := &Process{PID: 100, Args: `"/bin/x", 0x7ffd000, 0x0`}
	c.Check(p.Stack(), Equals, `/bin/x(100) 0x7ffd000, 0x0`)
}

func (s *frameSuite) TestStackNoCommaInArgs(c *C) {
	p := &Process{PID: 100, Args: `"/bin/x"`}
	c.Check(p.Stack(), Equals, `/bin/x(100) `)
}

func (s *frameSuite) TestStackChainSkipsThreadNodes(c *C) {
	root := &Process{PID: 100, Args: `"/bin/a", ["a"], 0x0`}
	thread := &Process{PID: 101, Parent: root}
	leaf := &Process{PID: 102, Parent: thread, Args: `"/bin/c", ["c"], 0x0`}
	c.Check(leaf.Stack(), Equals, `/bin/a(100) ['a'];/bin/c(102) ['c']`)
	c.Check(thread.Stack(), Equals, `/bin/a(100) ['a']`)
}

func (s *frameSuite) TestFrameSemicolonSubstitution(c *C) {
	p := &Process{PID: 100, Args: `"/bin/x", ["a;b"], 0x0`}
	c.Check(p.Stack(), Equals, `/bin/x(100) ['azb']`)
}

func (s *frameSuite) TestFrameUndecodableArg0KeptRaw(c *C) {
	p := &Process{PID: 100, Args: `3, ["a"], 0x0`}
	c.Check(p.Stack(), Equals, `3(100) ['a']`)
}
