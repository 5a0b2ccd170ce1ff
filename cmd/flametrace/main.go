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
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/leifwalsh/flametrace/i18n"
	"github.com/leifwalsh/flametrace/logger"
)

var (
	// Standard streams, redirected for testing.
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

type cmdInfo struct {
	name, shortHelp, longHelp string
	builder                   func() flags.Commander
}

// commands holds information about all the non-debug commands.
var commands []*cmdInfo

// addCommand replaces parser.addCommand() in a way that is compatible
// with re-constructing a pristine parser.
func addCommand(name, shortHelp, longHelp string, builder func() flags.Commander) *cmdInfo {
	info := &cmdInfo{
		name:      name,
		shortHelp: shortHelp,
		longHelp:  longHelp,
		builder:   builder,
	}
	commands = append(commands, info)
	return info
}

// exitStatus can be used in a command's Execute to relay the traced
// command's exit code.
type exitStatus struct {
	code int
}

func (e *exitStatus) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Parser creates and populates a fresh parser.
func Parser() *flags.Parser {
	parser := flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)
	parser.ShortDescription = i18n.G("Render a flame chart from a system-call trace of a process tree")
	parser.LongDescription = i18n.G(`
flametrace runs a command under the system-call tracer, folds the
resulting trace into flamegraph input and renders a flame chart of the
process tree.
`)
	for _, c := range commands {
		cmd, err := parser.AddCommand(c.name, c.shortHelp, c.longHelp, c.builder())
		if err != nil {
			logger.Panicf("cannot add command %q: %v", c.name, err)
		}
		cmd.PassAfterNonOption = c.name == "run"
	}
	return parser
}

func main() {
	if err := logger.SimpleSetup(); err != nil {
		fmt.Fprintf(os.Stderr, i18n.G("WARNING: failed to activate logging: %v\n"), err)
	}

	if err := run(os.Args[1:]); err != nil {
		if e, ok := err.(*exitStatus); ok {
			os.Exit(e.code)
		}
		fmt.Fprintf(os.Stderr, i18n.G("error: %v\n"), err)
		os.Exit(1)
	}
}

func run(args []string) error {
	parser := Parser()
	_, err := parser.ParseArgs(args)
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
			return nil
		}
		return err
	}
	return nil
}
