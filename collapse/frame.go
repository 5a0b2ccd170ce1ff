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
	"fmt"
	"io"
	"strings"
)

// truncatedArgvLen is how much of an argv literal survives into the
// frame when it cannot be decoded.
const truncatedArgvLen = 32

// Stack builds the ";"-joined frame path from the root down to this
// epoch. Ancestors that never exec'd contribute no frame of their own
// but their own ancestors still do.
func (p *Process) Stack() string {
	s := ""
	if p.Parent != nil {
		s = p.Parent.Stack()
	}
	if p.Args == "" {
		return s
	}
	me := p.frame()
	if s != "" {
		return s + ";" + me
	}
	return me
}

// frame renders one stack frame from the execve arguments. Process
// names alone (like /bin/bash) are rarely interesting, so the argv
// list is part of the frame.
func (p *Process) frame() string {
	arg0 := p.Args
	argv := ""
	if i := strings.Index(p.Args, ","); i >= 0 {
		arg0, argv = p.Args[:i], p.Args[i+1:]
	}
	if s, err := decodeString(arg0); err == nil {
		arg0 = s
	}
	argv = strings.TrimLeft(argv, " \t")
	if strings.HasPrefix(argv, "[") {
		if j := strings.LastIndex(argv, "]"); j >= 0 {
			argv = argv[:j+1]
		}
		if strings.HasSuffix(argv, "...]") {
			// last argument truncated by the tracer's string limit;
			// patch the literal so it decodes
			argv = argv[:len(argv)-4] + `, "..."]`
		}
		if list, err := decodeStringList(argv); err == nil {
			argv = reprStringList(list)
		} else if len(argv) > truncatedArgvLen {
			// keep some content to identify it
			argv = argv[:truncatedArgvLen]
		}
	}
	frame := fmt.Sprintf("%s(%d) %s", arg0, p.PID, argv)
	// ";" is the folded-format separator and may not appear inside a
	// frame
	return strings.ReplaceAll(frame, ";", "z")
}

// Render writes one folded row per retired epoch, in retirement
// order, followed by one pseudo-frame row per tracked syscall of that
// epoch. Counts are microseconds; a process row is floored at 1 so
// every epoch is visible in the chart.
func (cl *Collapser) Render(w io.Writer) error {
	for _, proc := range cl.finished {
		stack := proc.Stack()
		us := proc.selfTime().Microseconds()
		if us < 1 {
			us = 1
		}
		if _, err := fmt.Fprintf(w, "%s %d\n", stack, us); err != nil {
			return err
		}
		for _, name := range proc.syscalls.order {
			c := proc.syscalls.counters[name]
			if _, err := fmt.Fprintf(w, "%s;%s(%d calls) %d\n", stack, name, c.Calls, c.Elapsed.Microseconds()); err != nil {
				return err
			}
		}
	}
	return nil
}
