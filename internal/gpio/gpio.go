//go:build linux

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

// Package gpio opens the two sysfs "value" files the transaction loop
// drives directly: the IRQ line (read, edge-triggered, acked after a
// poll event) and the sync line (written low/high around each SPI
// transfer phase). Export, direction and edge-mode setup are
// deliberately out of scope — that configuration is assumed already
// performed by external glue before this process starts (see
// DESIGN.md for why no corpus or ecosystem GPIO library is reused
// here instead of the two os.OpenFile calls below).
package gpio

import (
	"fmt"
	"os"

	"github.com/tessel/spid/internal/errcode"
)

// ValuePath returns the sysfs "value" file path for a GPIO given by
// number, matching gpio_open()'s path construction in the original.
// Export, direction and edge-mode setup for that GPIO are assumed to
// have already run (spec §1: out of scope, external glue's job).
func ValuePath(gpioNumber string) string {
	return fmt.Sprintf("/sys/class/gpio/gpio%s/value", gpioNumber)
}

// OpenNumbered opens the value file for the GPIO numbered gpioNumber,
// combining ValuePath and Open for the common CLI case where the
// daemon is handed a bare GPIO number, not a path.
func OpenNumbered(gpioNumber string) (*Line, error) {
	return Open(ValuePath(gpioNumber))
}

// Line wraps one sysfs GPIO "value" file.
type Line struct {
	f *os.File
}

// Open opens the value file at path for read/write, matching
// gpio_open() in the original: the same fd serves both the interrupt
// read path and, for the sync line, the drive-level write path.
func Open(path string) (*Line, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errcode.ErrGPIO.Wrap(err)
	}
	return &Line{f: f}, nil
}

// Fd returns the underlying file descriptor, for inclusion in the
// poll set.
func (l *Line) Fd() int {
	return int(l.f.Fd())
}

// Close closes the underlying file.
func (l *Line) Close() error {
	return l.f.Close()
}

// Ack clears the pending edge condition on an interrupt-driven GPIO
// value file: seek to the start and read the value back, exactly as
// spid.c's lseek(irq_fd, SEEK_SET, 0); read(irq_fd, buf, 2) does
// after observing POLLPRI.
func (l *Line) Ack() (byte, error) {
	if _, err := l.f.Seek(0, os.SEEK_SET); err != nil {
		return 0, errcode.ErrGPIO.Wrap(err)
	}
	buf := make([]byte, 2)
	n, err := l.f.Read(buf)
	if err != nil {
		return 0, errcode.ErrGPIO.Wrap(err)
	}
	if n == 0 {
		return 0, nil
	}
	return buf[0], nil
}

// Drive writes "1" or "0" to the value file, matching the sync line's
// write(sync_fd, "1"/"0", 1) calls bracketing each transfer phase.
func (l *Line) Drive(high bool) error {
	b := []byte("0")
	if high {
		b = []byte("1")
	}
	if _, err := l.f.Write(b); err != nil {
		return errcode.ErrGPIO.Wrap(err)
	}
	return nil
}

//go:noinline
func holdSpin(iterations int) {
	for i := iterations; i > 0; i-- {
	}
}

// HoldDelay reproduces spid.c's delay(): a fixed busy-wait between
// driving the sync line and starting the SPI transfer, giving the
// co-processor time to observe the edge before data moves. The
// original spins a bare `volatile int i = 1000; while(i--);` loop;
// modeling it as an explicit, non-inlined parameter (rather than a
// real time.Sleep, and rather than removing it) keeps the same
// "busy-wait of roughly constant work" character the hardware timing
// depends on. See spec §9 Design Notes.
func HoldDelay() {
	holdSpin(1000)
}
