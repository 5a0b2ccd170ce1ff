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

// Package flamegraph drives the flamegraph.pl script over a folded
// stacks file.
package flamegraph

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Options select how the chart is drawn.
type Options struct {
	// Script optionally overrides the flamegraph.pl looked up on PATH
	Script string
	// Width of the chart in pixels
	Width int
	// Colors is the flamegraph palette name
	Colors string
	// Extra is passed through to the script verbatim
	Extra []string
}

// Defaults for a chart of microsecond process samples.
var (
	DefaultWidth  = 1600
	DefaultColors = "aqua"
)

// Render runs flamegraph.pl on the folded file and writes the SVG to
// svg. The folded counts are microseconds, so the chart is drawn as a
// flame chart (time on the x axis) rather than a merged flame graph.
func Render(folded, svg string, opts *Options) error {
	if opts == nil {
		opts = &Options{}
	}
	script := opts.Script
	if script == "" {
		var err error
		script, err = exec.LookPath("flamegraph.pl")
		if err != nil {
			return fmt.Errorf("cannot find an installed flamegraph.pl: %v", err)
		}
	}
	width := opts.Width
	if width == 0 {
		width = DefaultWidth
	}
	colors := opts.Colors
	if colors == "" {
		colors = DefaultColors
	}

	args := []string{
		script,
		"--flamechart",
		"--countname", "us",
		"--nametype", "Frame:",
		"--colors", colors,
		"--width", strconv.Itoa(width),
	}
	args = append(args, opts.Extra...)
	args = append(args, folded)

	out, err := os.Create(svg)
	if err != nil {
		return err
	}

	cmd := &exec.Cmd{
		Path:   script,
		Args:   args,
		Stdout: out,
		Stderr: os.Stderr,
	}
	runErr := cmd.Run()
	if err := out.Close(); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("cannot render flame chart: %v", runErr)
	}
	return nil
}
