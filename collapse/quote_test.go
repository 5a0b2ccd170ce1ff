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

type quoteSuite struct{}

var _ = Suite(&quoteSuite{})

func (s *quoteSuite) TestDecodeString(c *C) {
	for _, t := range []struct {
		in  string
		out string
	}{
		{`"/bin/ls"`, "/bin/ls"},
		{`""`, ""},
		{`"with space"`, "with space"},
		{`"tab\there"`, "tab\there"},
		{`"line\nbreak"`, "line\nbreak"},
		{`"esc\33ape"`, "esc\x1bape"},
		{`"hex\x1b"`, "hex\x1b"},
		{`"quote\"inside"`, `quote"inside`},
		{`"back\\slash"`, `back\slash`},
		{`"/very/long/path"...`, "/very/long/path..."},
	} {
		out, err := decodeString(t.in)
		c.Assert(err, IsNil, Commentf("input: %s", t.in))
		c.Check(out, Equals, t.out, Commentf("input: %s", t.in))
	}
}

func (s *quoteSuite) TestDecodeStringErrors(c *C) {
	for _, in := range []string{
		`no quotes`,
		`"unterminated`,
		`"bad trailing"x`,
		`"bad escape\`,
	} {
		_, err := decodeString(in)
		c.Check(err, NotNil, Commentf("input: %s", in))
	}
}

func (s *quoteSuite) TestDecodeStringList(c *C) {
	for _, t := range []struct {
		in  string
		out []string
	}{
		{`["ls"]`, []string{"ls"}},
		{`["sh", "-c", "ls /tmp"]`, []string{"sh", "-c", "ls /tmp"}},
		{`[]`, []string{}},
		{`[ "spaced" , "out" ]`, []string{"spaced", "out"}},
		{`["bash", "-c", "very-long-cmd", "..."]`, []string{"bash", "-c", "very-long-cmd", "..."}},
	} {
		out, err := decodeStringList(t.in)
		c.Assert(err, IsNil, Commentf("input: %s", t.in))
		c.Check(out, DeepEquals, t.out, Commentf("input: %s", t.in))
	}
}

func (s *quoteSuite) TestDecodeStringListErrors(c *C) {
	for _, in := range []string{
		`not a list`,
		`["unterminated]`,
		`["missing" "comma"]`,
		`[1, 2]`,
	} {
		_, err := decodeStringList(in)
		c.Check(err, NotNil, Commentf("input: %s", in))
	}
}

func (s *quoteSuite) TestReprStringList(c *C) {
	c.Check(reprStringList([]string{"ls"}), Equals, `['ls']`)
	c.Check(reprStringList([]string{"sh", "-c", "ls /tmp"}), Equals, `['sh', '-c', 'ls /tmp']`)
	c.Check(reprStringList([]string{}), Equals, `[]`)
	c.Check(reprStringList([]string{"it's"}), Equals, `["it's"]`)
	c.Check(reprStringList([]string{`both'"`}), Equals, `['both\'"']`)
	c.Check(reprStringList([]string{"new\nline"}), Equals, `['new\nline']`)
}
