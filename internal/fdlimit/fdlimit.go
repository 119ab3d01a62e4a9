//go:build !windows

/*
 * MIT License
 *
 * Copyright (c) 2019 Nicolas JUHEL
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

// Package fdlimit raises RLIMIT_NOFILE best-effort before the daemon
// opens its SPI/GPIO/socket descriptors. Adapted from
// nabbar-golib/ioutils/fileDescriptor, trimmed to the Linux/Unix path
// only — this daemon never runs on Windows.
package fdlimit

import (
	"math"
	"syscall"
)

// Current returns the current soft and hard RLIMIT_NOFILE values.
func Current() (soft int, hard int, err error) {
	return Raise(0)
}

// Raise requests a soft limit of at least want open file descriptors,
// raising the hard limit first if needed and permitted. want <= 0
// only queries the current limits. Returns the resulting soft and
// hard limits; a failed raise attempt is returned as an error but
// callers are expected to log and continue (headroom is a nicety,
// not a precondition for correctness — the loop needs only
// 1 + 2*NumChannels descriptors, comfortably under any default limit).
func Raise(want int) (soft int, hard int, err error) {
	var rLimit syscall.Rlimit

	if err = syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, 0, err
	}

	if want <= 0 || uint64(want) <= rLimit.Cur {
		return toInt(rLimit.Cur), toInt(rLimit.Max), nil
	}

	changed := false
	if uint64(want) > rLimit.Max {
		rLimit.Max = uint64(want)
		changed = true
	}
	if uint64(want) > rLimit.Cur {
		rLimit.Cur = uint64(want)
		changed = true
	}

	if changed {
		if err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
			return 0, 0, err
		}
		return Raise(0)
	}

	return toInt(rLimit.Cur), toInt(rLimit.Max), nil
}

func toInt(v uint64) int {
	if v > uint64(math.MaxInt) {
		return math.MaxInt
	}
	return int(v)
}
