/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

// Package health tracks whether the transaction loop's header
// exchange is currently succeeding within its retry budget. The
// three-state vocabulary (KO/Warn/OK) mirrors
// nabbar-golib/monitor/status, trimmed to the one signal this daemon
// can usefully report (see DESIGN.md: only that package's test file
// was retrieved, not its implementation, so this is shape-grounded,
// not a source adaptation).
package health

import "sync/atomic"

// Status is a three-state health signal, ordered KO < Warn < OK.
type Status int32

const (
	KO Status = iota
	Warn
	OK
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Warn:
		return "Warn"
	default:
		return "KO"
	}
}

// Snapshot is an atomically-updated Status, safe for one writer (the
// transaction loop) and many readers (an HTTP health handler).
type Snapshot struct {
	v atomic.Int32
}

// NewSnapshot returns a Snapshot initialized to KO, the honest
// starting state before the first header exchange completes.
func NewSnapshot() *Snapshot {
	s := &Snapshot{}
	s.v.Store(int32(KO))
	return s
}

// Set records the current status.
func (s *Snapshot) Set(st Status) {
	s.v.Store(int32(st))
}

// Get returns the current status.
func (s *Snapshot) Get() Status {
	return Status(s.v.Load())
}

// RecordRetry updates the snapshot from a retry counter and its
// ceiling: zero retries is OK, any retry short of the ceiling is
// Warn (still making progress), and at or past the ceiling the status
// is reported KO (one more bad reply past the ceiling is fatal to the
// transaction loop).
func (s *Snapshot) RecordRetry(retries, max int) {
	switch {
	case retries <= 0:
		s.Set(OK)
	case retries < max:
		s.Set(Warn)
	default:
		s.Set(KO)
	}
}
