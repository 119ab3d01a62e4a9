/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package logging wires the daemon's structured logger. It mirrors the
// severity vocabulary of the original spid process (INFO / ERR / CRIT)
// on top of logrus, with a hook that forwards to the local syslog
// daemon the way openlog()/syslog() did in the C implementation.
package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the subset of logrus's surface this daemon actually calls.
// Kept narrow so call sites read like the spec's own vocabulary.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	// Fatal logs at CRIT and terminates the process, matching the
	// spec's rule that CRIT log entries coincide with process exit.
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// New builds the daemon logger. tag is the syslog program tag (the
// original used "spid"). When useSyslog is false the syslog hook is
// skipped and messages go to stderr only — useful under a supervisor
// that already captures stdout/stderr (e.g. systemd, a test harness).
func New(tag string, useSyslog bool) Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.DebugLevel)

	if useSyslog {
		if hook, err := newSyslogHook(tag); err != nil {
			l.WithError(err).Warning("syslog hook unavailable, logging to stderr only")
		} else {
			l.AddHook(hook)
		}
	}

	return l
}

// Must wraps an error at setup time: logs it at CRIT and exits, the
// Go equivalent of the C macro `fatal(args...)` used throughout spid.c
// for every unrecoverable setup failure (bad args, bind/listen, GPIO
// open, SPI open).
func Must(log Logger, err error, context string) {
	if err == nil {
		return
	}
	log.Fatalf("%s: %s", context, err)
}

// CheckError is the non-fatal counterpart: logs at ERR and returns
// whether an error was present, mirroring the spec's "log at ERR,
// continue" policy for client read/write failures.
func CheckError(log Logger, err error, context string) bool {
	if err == nil {
		return false
	}
	log.Error(fmt.Sprintf("%s: %s", context, err))
	return true
}
