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

package bridge

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/tessel/spid/internal/errcode"
	"github.com/tessel/spid/internal/logging"
	"github.com/tessel/spid/internal/spi"
)

// dataExchange builds the variable-length scatter/gather descriptor
// list for this cycle and, if any descriptor was built, issues one
// SPI_IOC_MESSAGE ioctl carrying all of them, then delivers whatever
// bytes came back to the matching client sockets. Matches spid.c's
// final block exactly, including the ordering in which tx and rx
// descriptors for the same channel are appended (tx before rx).
func (l *loop) dataExchange(rx [2 + NumChannels]byte) error {
	descs := make([]spi.Descriptor, 0, NumChannels*2)
	// recvSize[i] > 0 means a receive descriptor for channel i was
	// built this cycle and its payload (once the ioctl returns) must
	// be delivered to the client socket.
	var recvSize [NumChannels]int
	var sentSize [NumChannels]int

	for chan_ := 0; chan_ < NumChannels; chan_++ {
		ch := l.chans[chan_]

		size := ch.outLength
		if rx[1]&(1<<uint(chan_)) != 0 && size > 0 {
			l.fds[idxConn(chan_)].Events |= unix.POLLIN
			descs = append(descs, spi.Descriptor{Buf: ch.outBuf[:size], Write: true})
			sentSize[chan_] = size
			ch.outLength = 0
		}

		size = int(rx[2+chan_])
		if l.writable&(1<<uint(chan_)) != 0 && size > 0 {
			descs = append(descs, spi.Descriptor{Buf: ch.inBuf[:size], Write: false})
			recvSize[chan_] = size
		}
	}

	if len(descs) == 0 {
		return nil
	}

	l.log.Debugf("Performing transfer on %d channels", len(descs))

	if err := l.dev.Message(descs); err != nil {
		return err
	}

	if l.cfg.Metrics != nil {
		for _, n := range sentSize {
			if n > 0 {
				l.cfg.Metrics.BytesOut.Add(float64(n))
			}
		}
	}

	for chan_ := 0; chan_ < NumChannels; chan_++ {
		size := recvSize[chan_]
		if size == 0 {
			continue
		}

		ch := l.chans[chan_]
		n, err := unix.Write(ch.connFD, ch.inBuf[:size])
		l.log.Debugf("%d: Write %d %d", chan_, size, n)
		// spec §4.2 / Open Question 3: a write error to the client is
		// logged, the connection is left open.
		if err != nil {
			logging.CheckError(l.log, errcode.ErrClientWrite.Wrap(err), fmt.Sprintf("channel %d", chan_))
		} else if l.cfg.Metrics != nil {
			l.cfg.Metrics.BytesIn.Add(float64(n))
		}

		l.fds[idxConn(chan_)].Events |= unix.POLLOUT
		l.writable &^= 1 << uint(chan_)
	}

	return nil
}
