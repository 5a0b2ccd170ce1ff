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

package main

import (
	"io"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/leifwalsh/flametrace/collapse"
	"github.com/leifwalsh/flametrace/i18n"
	"github.com/leifwalsh/flametrace/strace"
)

type cmdCollapse struct {
	Output     string `short:"o" long:"output" description:"write folded stacks here instead of stdout"`
	Strict     bool   `long:"strict" description:"fail on the first malformed trace line"`
	Positional struct {
		Trace string `positional-arg-name:"<trace>"`
	} `positional-args:"yes"`
}

var shortCollapseHelp = i18n.G("Fold an existing trace into flamegraph input")
var longCollapseHelp = i18n.G(`
The collapse command reads tracer output from the given file (or
standard input) and writes one folded-stack row per process epoch,
plus one row per tracked system call of that epoch, suitable for
flamegraph.pl.
`)

func init() {
	addCommand("collapse", shortCollapseHelp, longCollapseHelp, func() flags.Commander {
		return &cmdCollapse{}
	})
}

func (x *cmdCollapse) Execute(args []string) error {
	var in io.Reader = os.Stdin
	if x.Positional.Trace != "" && x.Positional.Trace != "-" {
		f, err := os.Open(x.Positional.Trace)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var out io.Writer = Stdout
	if x.Output != "" {
		f, err := os.Create(x.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	parser := strace.NewParser()
	parser.Strict = x.Strict
	collapser := collapse.NewCollapser()
	if err := parser.Parse(in, func(call *strace.Call) error {
		collapser.HandleCall(call)
		return nil
	}); err != nil {
		return err
	}
	return collapser.Render(out)
}
