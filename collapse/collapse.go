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

// Package collapse folds a stream of trace calls into flamegraph
// input. The tracer reports process begin and end times but a flame
// chart wants "samples"; we approximate that by emitting one row per
// process epoch, counting one sample per microsecond of its self time,
// which is why a child's self time is subtracted from all its
// ancestors.
package collapse

import (
	"time"

	"github.com/leifwalsh/flametrace/logger"
	"github.com/leifwalsh/flametrace/strace"
)

// SyscallCounter accumulates the number of calls and the total time
// spent in one syscall within one process.
type SyscallCounter struct {
	Calls   int
	Elapsed time.Duration
}

// syscallTable keeps per-syscall counters in insertion order so that
// rendered output is reproducible. A thread shares its parent's table
// by pointer until it execs its own program image.
type syscallTable struct {
	counters map[string]*SyscallCounter
	order    []string
}

func newSyscallTable() *syscallTable {
	return &syscallTable{counters: make(map[string]*SyscallCounter)}
}

func (t *syscallTable) add(name string, elapsed time.Duration) {
	c := t.counters[name]
	if c == nil {
		c = &SyscallCounter{}
		t.counters[name] = c
		t.order = append(t.order, name)
	}
	c.Calls++
	c.Elapsed += elapsed
}

func (t *syscallTable) total() time.Duration {
	var sum time.Duration
	for _, c := range t.counters {
		sum += c.Elapsed
	}
	return sum
}

// Process is one exec epoch of a traced task. Tasks created by clone
// start without Args and share their parent's syscall table; an execve
// gives them their own identity.
type Process struct {
	PID    int
	Parent *Process
	Begin  time.Time
	// End is zero until the epoch is retired
	End time.Time
	// Args is the raw execve argument text; empty for thread-like
	// tasks that never exec'd
	Args       string
	Retcode    int
	RawRetcode string

	// childSamples is time already credited to retired descendants
	childSamples time.Duration
	syscalls     *syscallTable
}

func newProcess(pid int, parent *Process, begin time.Time) *Process {
	p := &Process{PID: pid, Parent: parent, Begin: begin}
	if parent != nil {
		// attribute a child's syscalls to its parent until it execs
		p.syscalls = parent.syscalls
	} else {
		p.syscalls = newSyscallTable()
	}
	return p
}

// execve retires the epoch that led up to this exec and resets the
// live task for the new program image, with its own fresh syscall
// table. The returned Process is the finished pre-exec epoch.
func (p *Process) execve(args string, ts time.Time) *Process {
	old := *p
	old.End = ts
	p.Begin = ts
	p.End = time.Time{}
	p.Args = args
	p.childSamples = 0
	p.syscalls = newSyscallTable()
	return &old
}

// selfTime is the wall time of the epoch minus what retired
// descendants already claimed and minus time spent in tracked
// syscalls. It can come out negative on pathological traces; render
// floors it.
func (p *Process) selfTime() time.Duration {
	end := p.End
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(p.Begin) - p.childSamples - p.syscalls.total()
}

// trackedSyscalls are the calls whose time is split out into their own
// pseudo-frames under the owning process.
var trackedSyscalls = map[string]bool{
	"open":        true,
	"openat":      true,
	"link":        true,
	"unlink":      true,
	"unlinkat":    true,
	"getcwd":      true,
	"chdir":       true,
	"mkdir":       true,
	"access":      true,
	"faccessat":   true,
	"lstat":       true,
	"stat":        true,
	"newfstatat":  true,
	"statfs":      true,
	"readlink":    true,
	"mount":       true,
	"read":        true,
	"write":       true,
	"connect":     true,
	"socket":      true,
	"bind":        true,
	"setsockopt":  true,
	"getsockopt":  true,
	"getsockname": true,
	"getpeername": true,
	"sendmmsg":    true,
	"recvmsg":     true,
	"recvfrom":    true,
	"sendto":      true,
}

// isPipeRead reports whether a read's first argument is a pipe fd, as
// decoded by the tracer's -y option, e.g. `3<pipe:[42]>, ""..., 128`.
// Pipe reads are waits on other processes and would inflate the
// reader's syscall time.
func isPipeRead(args string) bool {
	return len(args) >= 7 && args[1:7] == "<pipe:"
}

// Collapser consumes trace calls, maintains the forest of live
// processes and renders the folded rows once the trace is done.
type Collapser struct {
	// pmap holds the live task for every pid between clone (or first
	// execve) and exit
	pmap map[int]*Process
	// finished collects retired epochs in retirement order
	finished []*Process
}

// NewCollapser returns an empty Collapser.
func NewCollapser() *Collapser {
	return &Collapser{pmap: make(map[int]*Process)}
}

// process returns the live task for pid, or nil.
func (cl *Collapser) process(pid int) *Process {
	return cl.pmap[pid]
}

// recordFinished accounts for an epoch that is done. Thread-like tasks
// contribute nothing of their own: their syscalls and elapsed time
// already live in their parent.
func (cl *Collapser) recordFinished(proc *Process) {
	if proc.Args == "" {
		return
	}
	selfTime := proc.selfTime()
	for cur := proc.Parent; cur != nil; cur = cur.Parent {
		cur.childSamples += selfTime
	}
	cl.finished = append(cl.finished, proc)
}

// HandleCall applies one trace call to the process forest.
func (cl *Collapser) HandleCall(call *strace.Call) {
	switch {
	case call.Func == "clone":
		if call.RawRetcode != "" {
			logger.Debugf("ignoring clone returning %q", call.RawRetcode)
			return
		}
		// a new task; we may see it exec later
		cl.pmap[call.Retcode] = newProcess(call.Retcode, cl.process(call.PID), call.Time)
	case call.Func == "execve":
		if call.Retcode != 0 || call.RawRetcode != "" {
			// failed exec
			return
		}
		proc := cl.process(call.PID)
		if proc == nil {
			// the root of the tree was not cloned from anything
			proc = newProcess(call.PID, nil, call.Time)
			proc.Args = call.Args
			cl.pmap[call.PID] = proc
		} else {
			cl.recordFinished(proc.execve(call.Args, call.Time))
		}
	case call.Func == strace.FuncExit:
		proc := cl.process(call.PID)
		if proc == nil {
			// trace may have started mid-stream
			logger.Debugf("exit of unknown pid %d", call.PID)
			return
		}
		delete(cl.pmap, call.PID)
		proc.Retcode = call.Retcode
		proc.RawRetcode = call.RawRetcode
		proc.End = call.Time
		cl.recordFinished(proc)
	case trackedSyscalls[call.Func]:
		if call.Func == "read" && isPipeRead(call.Args) {
			return
		}
		if proc := cl.process(call.PID); proc != nil {
			proc.syscalls.add(call.Func, call.Elapsed)
		}
	}
}

// Live returns the pids of tasks that have not exited yet.
func (cl *Collapser) Live() []int {
	pids := make([]int, 0, len(cl.pmap))
	for pid := range cl.pmap {
		pids = append(pids, pid)
	}
	return pids
}
