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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/leifwalsh/flametrace/collapse"
	"github.com/leifwalsh/flametrace/config"
	"github.com/leifwalsh/flametrace/flamegraph"
	"github.com/leifwalsh/flametrace/i18n"
	"github.com/leifwalsh/flametrace/strace"
)

type cmdRun struct {
	OutputBase        string        `long:"output-base" description:"output basename (BASE.strace, BASE.folded, BASE.svg)"`
	Mode              string        `long:"mode" default:"process" description:"what operations to trace (io is slower but more detailed)"`
	FlamegraphOptions string        `long:"flamegraph-options" description:"additional flamegraph options (e.g. --inverted)"`
	Timeout           time.Duration `long:"timeout" description:"kill the traced command after this long"`
	Positional        struct {
		Cmd []string `positional-arg-name:"<command>" required:"1"`
	} `positional-args:"yes"`
}

var shortRunHelp = i18n.G("Trace a command and render its flame chart")
var longRunHelp = i18n.G(`
The run command executes the given command under the tracer, folds the
trace into BASE.folded and renders BASE.svg with flamegraph.pl. The
traced command's exit code becomes flametrace's own exit code.
`)

func init() {
	addCommand("run", shortRunHelp, longRunHelp, func() flags.Commander {
		return &cmdRun{}
	})
}

func (x *cmdRun) Execute(args []string) error {
	cfg, err := config.Load(config.Dir())
	if err != nil {
		return err
	}
	traceExpr, ok := cfg.Profiles[x.Mode]
	if !ok {
		return fmt.Errorf("cannot use unknown mode %q", x.Mode)
	}

	base := x.OutputBase
	if base == "" {
		argv0 := filepath.Base(x.Positional.Cmd[0])
		base = filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s", argv0, time.Now().Format("20060102_150405.000000")))
	}
	traceFile := base + ".strace"
	foldedFile := base + ".folded"
	svgFile := base + ".svg"

	cmd, err := strace.Command(&strace.TraceOptions{
		TraceExpr: traceExpr,
		Output:    traceFile,
		Strace:    cfg.Strace,
	}, x.Positional.Cmd...)
	if err != nil {
		return err
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	t0 := time.Now()
	exitCode, err := strace.Run(cmd, x.Timeout)
	if err != nil {
		return err
	}
	fmt.Fprintf(Stdout, i18n.G("Ran %q in %.2fs\n"), strings.Join(x.Positional.Cmd, " "), time.Since(t0).Seconds())

	if err := collapseTrace(traceFile, foldedFile, false); err != nil {
		return err
	}

	var extra []string
	if x.FlamegraphOptions != "" {
		extra = strings.Fields(x.FlamegraphOptions)
	}
	if err := flamegraph.Render(foldedFile, svgFile, &flamegraph.Options{
		Script: cfg.Flamegraph,
		Width:  cfg.Width,
		Colors: cfg.Colors,
		Extra:  extra,
	}); err != nil {
		return err
	}

	fmt.Fprintf(Stdout, i18n.G("trace:  %s\n"), traceFile)
	fmt.Fprintf(Stdout, i18n.G("folded: %s\n"), foldedFile)
	fmt.Fprintf(Stdout, i18n.G("chart:  %s\n"), svgFile)

	if exitCode != 0 {
		return &exitStatus{code: exitCode}
	}
	return nil
}

// collapseTrace streams an existing trace file through the parser and
// collapser into a folded stacks file.
func collapseTrace(traceFile, foldedFile string, strict bool) error {
	in, err := os.Open(traceFile)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(foldedFile)
	if err != nil {
		return err
	}

	parser := strace.NewParser()
	parser.Strict = strict
	collapser := collapse.NewCollapser()
	if err := parser.Parse(in, func(call *strace.Call) error {
		collapser.HandleCall(call)
		return nil
	}); err != nil {
		out.Close()
		return err
	}
	if err := collapser.Render(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
