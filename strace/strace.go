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

package strace

import (
	"bufio"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
	"gopkg.in/tomb.v2"

	"github.com/leifwalsh/flametrace/logger"
)

func unixFloatSecondsToTime(t float64) time.Time {
	// check to make sure the time isn't outside of the bounds of an int64
	if t > math.MaxInt64 || t < math.MinInt64 {
		panic(fmt.Sprintf("time %f is outside of int64 range", t))
	}
	startUnixSeconds := math.Floor(t)
	startUnixNanoseconds := (t - startUnixSeconds) * float64(time.Second)
	return time.Unix(int64(startUnixSeconds), int64(startUnixNanoseconds))
}

// TraceOptions describes how to invoke the tracer for one run.
type TraceOptions struct {
	// TraceExpr is the expression passed to "-e" (e.g. "trace=%process")
	TraceExpr string
	// Output is the file the tracer writes its log to
	Output string
	// Strace optionally overrides the tracer binary looked up on PATH
	Strace string
}

// stringLimit is passed to "-s"; argv lists longer than this come back
// truncated and the collapser repairs the literal before decoding it.
const stringLimit = "128"

// seccompBpfVersion is the first strace release with --seccomp-bpf,
// which cuts tracing overhead considerably.
var seccompBpfVersion = [2]int{5, 3}

// straceVersion parses the "strace -- version 5.11" banner printed by
// "strace -V".
func straceVersion(stracePath string) (major, minor int, err error) {
	out, err := exec.Command(stracePath, "-V").Output()
	if err != nil {
		return 0, 0, xerrors.Errorf("cannot determine strace version: %w", err)
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	if !scanner.Scan() {
		return 0, 0, fmt.Errorf("cannot determine strace version: empty output")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("cannot determine strace version: empty output")
	}
	ver := fields[len(fields)-1]
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("cannot determine strace version from %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("cannot determine strace version from %q", ver)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("cannot determine strace version from %q", ver)
	}
	return major, minor, nil
}

// Command returns an exec.Cmd that traces origCmd with timestamps,
// per-call durations and decoded file descriptors, writing the log to
// opts.Output.
func Command(opts *TraceOptions, origCmd ...string) (*exec.Cmd, error) {
	stracePath := opts.Strace
	if stracePath == "" {
		var err error
		stracePath, err = exec.LookPath("strace")
		if err != nil {
			return nil, fmt.Errorf("cannot find an installed strace: %v", err)
		}
	}

	args := []string{stracePath}
	major, minor, err := straceVersion(stracePath)
	if err != nil {
		logger.Debugf("%v", err)
	} else if major > seccompBpfVersion[0] || (major == seccompBpfVersion[0] && minor >= seccompBpfVersion[1]) {
		args = append(args, "--seccomp-bpf")
	}
	// -ttt microsecond timestamps, -y decoded fds (pipe reads are
	// recognized from the "<pipe:" annotation), -f follow forks,
	// -T per-call durations
	args = append(args,
		"-tttyfT",
		"-e", opts.TraceExpr,
		"-s", stringLimit,
		"-o", opts.Output,
		"--",
	)
	args = append(args, origCmd...)

	return &exec.Cmd{
		Path: stracePath,
		Args: args,
	}, nil
}

// Run starts cmd in its own process group and waits for it, killing
// the whole group if timeout expires first. The returned code is the
// exit code of the traced command as relayed by the tracer.
func Run(cmd *exec.Cmd, timeout time.Duration) (int, error) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return -1, err
	}

	exitCode := 0
	var t tomb.Tomb
	t.Go(func() error {
		// once the wait is done the watchdog must wind down too
		defer t.Kill(nil)

		if timeout > 0 {
			t.Go(func() error {
				select {
				case <-time.After(timeout):
					logger.Noticef("traced command still running after %v, killing it", timeout)
					if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
						logger.Debugf("cannot kill process group %d: %v", cmd.Process.Pid, err)
					}
				case <-t.Dying():
				}
				return nil
			})
		}

		err := cmd.Wait()
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ProcessState.ExitCode()
				return nil
			}
			return err
		}
		return nil
	})
	if err := t.Wait(); err != nil {
		return -1, err
	}
	return exitCode, nil
}
