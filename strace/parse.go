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
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/leifwalsh/flametrace/logger"
)

// Synthetic function names used for trace events that are not system
// calls. They cannot collide with real syscall names.
const (
	// FuncExit marks a process exit ("+++ exited with N +++" or
	// "+++ killed by SIGNAME +++")
	FuncExit = "atexit"
	// FuncInterrupt marks a signal delivery ("--- SIGNAME {...} ---")
	FuncInterrupt = "interrupt"
)

// Call is a single event from the trace: a completed system call, a
// process exit or a signal delivery. Continuation pairs are already
// merged into one Call by the Parser.
type Call struct {
	// PID is the process/thread that made the call
	PID int
	// Time is when the call returned
	Time time.Time
	// Func is the syscall name, FuncExit or FuncInterrupt
	Func string
	// Args is the raw argument text between the outer parentheses; for
	// FuncInterrupt it holds the signal name, for FuncExit it is empty
	Args string
	// Retcode is the integer return value; only valid if RawRetcode is
	// empty
	Retcode int
	// RawRetcode holds the literal return token when it is not an
	// integer (e.g. "?" or a signal name)
	RawRetcode string
	// Status is any annotation between the return value and the
	// duration (e.g. "EAGAIN (Resource temporarily unavailable)")
	Status string
	// Elapsed is the duration the call took, zero if the trace did not
	// record one
	Elapsed time.Duration
}

// ParseError is returned for trace lines that do not match the
// expected strace output format.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse trace line %q: %s", e.Line, e.Reason)
}

// lines look like:
// PID   TIME              REST
// 17363 1542815326.700248 execve("/usr/bin/update-mime-database", ["update-mime-database"], 0x1566008 /* 69 vars */) = 0 <0.000539>
var lineRE = regexp.MustCompile(`^([0-9]+) +([0-9]+\.[0-9]+) +(.*)$`)

const (
	exitedPrefix     = "+++ exited with "
	killedPrefix     = "+++ killed by "
	signalPrefix     = "--- "
	unfinishedSuffix = " <unfinished ...>"
	resumedPrefix    = "<... "
)

// Parser reassembles strace output lines into Call records. Lines
// that were split by the tracer ("<unfinished ...>"/"<... resumed>")
// are merged before parsing; everything else is parsed directly.
type Parser struct {
	// Strict makes structural errors fatal instead of skipping the
	// offending line
	Strict bool

	// pending holds the prefix of an unfinished call, keyed by pid;
	// at most one prefix is kept per task
	pending map[int]string
}

// NewParser returns a Parser with no pending continuations.
func NewParser() *Parser {
	return &Parser{pending: make(map[int]string)}
}

// ParseLine parses one line of strace output. It returns nil for the
// first half of a split call; the Call is produced when the matching
// resumed line arrives.
func (p *Parser) ParseLine(line string) (*Call, error) {
	m := lineRE.FindStringSubmatch(line)
	if m == nil {
		return nil, &ParseError{Line: line, Reason: "expected \"<pid> <timestamp> <event>\""}
	}
	pid, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, &ParseError{Line: line, Reason: err.Error()}
	}
	sec, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil, &ParseError{Line: line, Reason: err.Error()}
	}
	ts := unixFloatSecondsToTime(sec)
	rest := m[3]

	switch {
	case strings.HasSuffix(rest, unfinishedSuffix):
		if old, ok := p.pending[pid]; ok {
			// The tracer asserts one outstanding call per task but
			// signal handlers can violate that; keep the newer half,
			// its resumed line is the next to arrive.
			p.pending[pid] = rest[:len(rest)-len(unfinishedSuffix)]
			return nil, &ParseError{Line: line, Reason: fmt.Sprintf("unfinished call while %q is still pending for pid %d", old, pid)}
		}
		p.pending[pid] = rest[:len(rest)-len(unfinishedSuffix)]
		return nil, nil
	case strings.HasPrefix(rest, resumedPrefix):
		return p.parseResumed(pid, ts, line, rest)
	default:
		return p.parseEvent(pid, ts, line, rest)
	}
}

// parseResumed glues a "<... name resumed> tail" line to the pending
// prefix recorded for its pid and parses the whole call.
func (p *Parser) parseResumed(pid int, ts time.Time, line, rest string) (*Call, error) {
	body := rest[len(resumedPrefix):]
	i := strings.Index(body, " ")
	if i < 0 {
		return nil, &ParseError{Line: line, Reason: "malformed resumed event"}
	}
	name, body := body[:i], body[i+1:]
	if !strings.HasPrefix(body, "resumed>") {
		return nil, &ParseError{Line: line, Reason: "malformed resumed event"}
	}
	prefix, ok := p.pending[pid]
	if !ok {
		return nil, &ParseError{Line: line, Reason: fmt.Sprintf("resumed %s without unfinished call for pid %d", name, pid)}
	}
	delete(p.pending, pid)

	body = strings.TrimLeft(body[len("resumed>"):], " \t")
	call, err := p.parseEvent(pid, ts, line, prefix+body)
	if err != nil {
		return nil, err
	}
	if call.Func != name {
		return nil, &ParseError{Line: line, Reason: fmt.Sprintf("resumed %s does not match unfinished %s", name, call.Func)}
	}
	return call, nil
}

// parseEvent parses the part of a line after pid and timestamp, which
// by now is a complete event.
func (p *Parser) parseEvent(pid int, ts time.Time, line, rest string) (*Call, error) {
	switch {
	case strings.HasPrefix(rest, exitedPrefix):
		// 20882 1573257274.988650 +++ exited with 0 +++
		tok := strings.Fields(rest[len(exitedPrefix):])
		if len(tok) == 0 {
			return nil, &ParseError{Line: line, Reason: "malformed exit event"}
		}
		retcode, err := strconv.Atoi(tok[0])
		if err != nil {
			return nil, &ParseError{Line: line, Reason: err.Error()}
		}
		return &Call{PID: pid, Time: ts, Func: FuncExit, Retcode: retcode}, nil
	case strings.HasPrefix(rest, killedPrefix):
		// 20882 1573257274.988650 +++ killed by SIGKILL +++
		tok := strings.Fields(rest[len(killedPrefix):])
		if len(tok) == 0 {
			return nil, &ParseError{Line: line, Reason: "malformed kill event"}
		}
		return &Call{PID: pid, Time: ts, Func: FuncExit, RawRetcode: tok[0]}, nil
	case strings.HasPrefix(rest, signalPrefix):
		// 17559 1542815330.242750 --- SIGCHLD {si_signo=SIGCHLD, si_code=CLD_EXITED, si_pid=17643, ...} ---
		body := rest[len(signalPrefix):]
		i := strings.Index(body, " ")
		if i < 0 || !strings.HasSuffix(body, " ---") {
			return nil, &ParseError{Line: line, Reason: "malformed signal event"}
		}
		signal := body[:i]
		payload := body[i+1 : len(body)-len(" ---")]
		return &Call{PID: pid, Time: ts, Func: FuncInterrupt, Args: signal, RawRetcode: payload}, nil
	default:
		return p.parseCall(pid, ts, line, rest)
	}
}

// parseCall splits a completed call of the shape
//
//	name(args...) = retval [status] [<elapsed>]
//
// at the last " = " so that parentheses and equal signs inside the
// argument list cannot confuse it.
func (p *Parser) parseCall(pid int, ts time.Time, line, body string) (*Call, error) {
	i := strings.LastIndex(body, " = ")
	if i < 0 {
		return nil, &ParseError{Line: line, Reason: "no return value"}
	}
	left, right := body[:i], body[i+len(" = "):]

	call := &Call{PID: pid, Time: ts}

	retTok := right
	remainder := ""
	if j := strings.Index(right, " "); j >= 0 {
		retTok, remainder = right[:j], right[j+1:]
	}
	if retcode, err := strconv.Atoi(retTok); err == nil {
		call.Retcode = retcode
	} else {
		call.RawRetcode = retTok
	}

	if remainder != "" {
		status := ""
		last := remainder
		if j := strings.LastIndex(remainder, " "); j >= 0 {
			status, last = remainder[:j], remainder[j+1:]
		}
		if elapsed, ok := parseElapsed(last); ok {
			call.Status = status
			call.Elapsed = elapsed
		} else {
			// no duration recorded, the whole remainder is status
			call.Status = remainder
		}
	}

	j := strings.Index(left, "(")
	if j < 0 {
		return nil, &ParseError{Line: line, Reason: "no argument list"}
	}
	call.Func = left[:j]
	if k := strings.LastIndex(left, ")"); k > j {
		call.Args = left[j+1 : k]
	} else {
		call.Args = left[j+1:]
	}
	return call, nil
}

// parseElapsed interprets the trailing "<seconds>" duration token.
func parseElapsed(tok string) (time.Duration, bool) {
	if len(tok) < 3 || tok[0] != '<' || tok[len(tok)-1] != '>' {
		return 0, false
	}
	sec, err := strconv.ParseFloat(tok[1:len(tok)-1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(sec * float64(time.Second)), true
}

// Parse reads strace output from r and feeds every reassembled Call to
// emit. In lenient mode (the default) lines that cannot be parsed are
// logged and skipped; with Strict set the first structural error is
// returned.
func (p *Parser) Parse(r io.Reader, emit func(*Call) error) error {
	scanner := bufio.NewScanner(r)
	// with "-s 128" and decoded fds individual lines can get long
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		call, err := p.ParseLine(line)
		if err != nil {
			if p.Strict {
				return err
			}
			logger.Noticef("skipping trace line: %v", err)
			continue
		}
		if call == nil {
			continue
		}
		if err := emit(call); err != nil {
			return err
		}
	}
	return scanner.Err()
}
