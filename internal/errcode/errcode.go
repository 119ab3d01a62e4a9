/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

// Package errcode carries the fatal/non-fatal error taxonomy of the
// bridge daemon as stable numeric codes, the way nabbar-golib/errors
// attaches a CodeError to every raised error instead of relying on
// sentinel values or string matching.
package errcode

import "fmt"

// CodeError is a small, package-local stand-in for nabbar-golib's
// liberr.CodeError: a uint16 code with a registered message function.
// The full CodeError registry (HTTP-status-shaped codes, parent error
// chains, JSON marshaling) is not reproduced here — this daemon has no
// HTTP surface and no error chain deeper than "syscall failed, wrap
// and log it" — see DESIGN.md.
type CodeError uint16

const (
	// Unknown is returned by Message for an unregistered code.
	Unknown CodeError = iota

	// ErrSetup covers argument validation and resource-acquisition
	// failures during startup (spid.c's usage()/fatal() calls before
	// the transaction loop starts).
	ErrSetup

	// ErrPoll covers a poll(2) failure unrelated to EINTR.
	ErrPoll

	// ErrSPI covers SPI ioctl failures (header or data transfer).
	ErrSPI

	// ErrGPIO covers GPIO value-file read/write/seek failures.
	ErrGPIO

	// ErrHeaderDesync covers a header exchange that did not carry the
	// expected magic byte, whether within the retry budget or past it.
	ErrHeaderDesync

	// ErrClientAccept covers accept4(2) failures on a channel's
	// listening socket.
	ErrClientAccept

	// ErrClientRead covers a failed read from an accepted client
	// socket.
	ErrClientRead

	// ErrClientWrite covers a failed write to an accepted client
	// socket (non-fatal; spec keeps the connection open).
	ErrClientWrite
)

var messages = map[CodeError]string{
	ErrSetup:        "setup failure",
	ErrPoll:         "poll failed",
	ErrSPI:          "spi transfer failed",
	ErrGPIO:         "gpio operation failed",
	ErrHeaderDesync: "header exchange out of sync",
	ErrClientAccept: "accept failed",
	ErrClientRead:   "client read failed",
	ErrClientWrite:  "client write failed",
}

// Message returns the human-readable description registered for c, or
// a generic fallback for an unregistered code.
func (c CodeError) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return "unknown error"
}

// Error implements the error interface directly on the code, matching
// the spec's habit of logging "code: detail" pairs.
func (c CodeError) Error() string {
	return c.Message()
}

// Wrap attaches a CodeError to an underlying cause, the local
// equivalent of liberr.CodeError.Error(parent...).
func (c CodeError) Wrap(cause error) error {
	if cause == nil {
		return c
	}
	return &codedError{code: c, cause: cause}
}

type codedError struct {
	code  CodeError
	cause error
}

func (e *codedError) Error() string {
	return fmt.Sprintf("%s: %s", e.code.Message(), e.cause)
}

func (e *codedError) Unwrap() error {
	return e.cause
}

// Code returns e's CodeError, or Unknown if e does not carry one.
func Code(err error) CodeError {
	var ce *codedError
	if e, ok := err.(*codedError); ok {
		ce = e
		return ce.code
	}
	if c, ok := err.(CodeError); ok {
		return c
	}
	return Unknown
}
