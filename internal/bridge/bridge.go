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

// Package bridge implements the transaction loop: the state machine
// that multiplexes NumChannels Unix-domain stream sockets over one
// SPI link, framed by a sync GPIO line and an interrupt GPIO line.
// It is a direct port of original_source/soc/spid.c's main loop, kept
// byte-for-byte faithful to the wire protocol while restructured into
// named steps and given explicit error returns instead of exit().
package bridge

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tessel/spid/internal/errcode"
	"github.com/tessel/spid/internal/gpio"
	"github.com/tessel/spid/internal/health"
	"github.com/tessel/spid/internal/logging"
	"github.com/tessel/spid/internal/metrics"
	"github.com/tessel/spid/internal/spi"
)

// pollTimeout is the 5 second ceiling on each poll(2) call, matching
// spid.c's `poll(fds, N_POLLFDS, 5000)`. It bounds how promptly a
// context cancellation is observed when nothing else is happening.
const pollTimeout = 5 * time.Second

// Config carries the loop's optional observability hooks. The four
// positional arguments spid.c reads from argv (spidev path, irq gpio,
// sync gpio, socket directory) are resolved to open handles by the
// caller before Run is invoked; Run itself only needs what it acts on.
type Config struct {
	// Metrics and Health are optional; either may be nil, in which
	// case the corresponding instrumentation is skipped.
	Metrics *metrics.Registry
	Health  *health.Snapshot
}

// spiDevice is the subset of *spi.Device the loop drives. Narrowed to
// an interface so the state-transition logic in data.go/header.go can
// be exercised without a real spidev character device.
type spiDevice interface {
	Header(tx []byte, rx []byte) error
	Message(descs []spi.Descriptor) error
}

// poll fd index layout, matching spid.c's GPIO_POLL / CONN_POLL(n) /
// SOCK_POLL(n) macros exactly.
const (
	idxIRQ = 0
)

func idxConn(i int) int { return 1 + i }
func idxSock(i int) int { return 1 + NumChannels + i }

const numPollFDs = 1 + NumChannels*2

// loop holds everything the transaction loop needs across cycles:
// hardware handles, channel table and the reusable poll fd slice.
type loop struct {
	log  logging.Logger
	cfg  Config
	irq  *gpio.Line
	sync *gpio.Line
	dev  spiDevice

	chans [NumChannels]*channel
	fds   [numPollFDs]unix.PollFd

	channelsOpen uint8 // bitmap, bit i set when channel i has an accepted connection
	writable     uint8 // bitmap, bit i set when channel i's socket is currently writable
	retries      int

	lastHeaderRX [2 + NumChannels]byte
}

// Run drives the transaction loop until ctx is cancelled or a fatal
// condition occurs (poll failure, SPI ioctl failure, GPIO I/O failure,
// or exceeding maxRetries consecutive bad header replies). An accept
// failure is logged and the loop continues. A cancelled context is
// the one non-fatal exit path — it has no equivalent in the original,
// which never returns from main().
func Run(ctx context.Context, log logging.Logger, cfg Config, irq, sync *gpio.Line, dev spiDevice, listenFDs [NumChannels]int) error {
	l := &loop{log: log, cfg: cfg, irq: irq, sync: sync, dev: dev}

	for i := 0; i < NumChannels; i++ {
		l.chans[i] = newChannel(i)
		l.chans[i].listenFD = listenFDs[i]
		l.chans[i].listenArmed = true
	}

	l.fds[idxIRQ] = unix.PollFd{Fd: int32(irq.Fd()), Events: unix.POLLPRI}
	for i := 0; i < NumChannels; i++ {
		l.fds[idxConn(i)] = unix.PollFd{Fd: -1}
		l.fds[idxSock(i)] = unix.PollFd{Fd: int32(l.chans[i].listenFD), Events: unix.POLLIN}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := l.cycle(ctx); err != nil {
			return err
		}
	}
}

func (l *loop) cycle(ctx context.Context) error {
	for i := range l.fds {
		l.fds[i].Revents = 0
	}

	n, err := unix.Poll(l.fds[:], int(pollTimeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return errcode.ErrPoll.Wrap(err)
	}
	l.log.Debugf("poll returned: %d", n)

	if l.fds[idxIRQ].Revents&unix.POLLPRI != 0 {
		if _, err := l.irq.Ack(); err != nil {
			return err
		}
	}

	if err := l.sync.Drive(false); err != nil {
		return err
	}
	gpio.HoldDelay()

	l.acceptNewConnections()
	l.serviceConnections()

	if err := l.headerExchange(); err != nil {
		return err
	}

	rx := l.lastHeaderRX
	if rx[0] != headerRxMagic {
		l.retries++
		if l.cfg.Health != nil {
			l.cfg.Health.RecordRetry(l.retries, maxRetries)
		}
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.HeaderRetry.Inc()
		}
		if l.retries > maxRetries {
			return errcode.ErrHeaderDesync.Wrap(fmt.Errorf("exceeded %d retries", maxRetries))
		}
		return nil
	}

	l.applyEnableDeltas(rx)
	l.retries = 0
	if l.cfg.Health != nil {
		l.cfg.Health.RecordRetry(0, maxRetries)
	}

	gpio.HoldDelay()

	if err := l.dataExchange(rx); err != nil {
		return err
	}

	if l.cfg.Metrics != nil {
		l.cfg.Metrics.Cycles.Inc()
	}

	return nil
}
