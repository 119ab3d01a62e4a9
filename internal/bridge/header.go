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

import "golang.org/x/sys/unix"

// headerExchange builds and issues the fixed (2+N)-byte header
// transfer and stores the reply in l.lastHeaderRX, matching spid.c's
// ctrl_transfer[2] / SPI_IOC_MESSAGE(2) block. Byte 0 is the fixed
// magic; byte 1 packs the writable bitmap in its low nibble and the
// open-channels bitmap in its high nibble; bytes 2..2+N-1 carry each
// channel's pending output length.
func (l *loop) headerExchange() error {
	var tx [2 + NumChannels]byte
	tx[0] = headerTxMagic
	tx[1] = l.writable | (l.channelsOpen << 4)
	for i := 0; i < NumChannels; i++ {
		tx[2+i] = byte(l.chans[i].outLength)
	}

	var rx [2 + NumChannels]byte
	if err := l.dev.Header(tx[:], rx[:]); err != nil {
		return err
	}

	if err := l.sync.Drive(true); err != nil {
		return err
	}

	l.lastHeaderRX = rx
	return nil
}

// applyEnableDeltas decodes the per-channel enable bitmap out of
// rx[1] and reacts to transitions, matching spid.c's per-channel loop
// right after the header exchange succeeds.
//
// The original compares the masked bit directly against the literal
// 1 (`new_status == 1`), which never matches — every channel's masked
// value is either 0 or 0x10<<i, never 1, so no channel can ever be
// observed "enabling" by that comparison, only "disabling". spec §9.1
// names this and leaves
// the resolution open; here it is normalized to a boolean so every
// channel's enable bit is honored identically (see DESIGN.md, Open
// Question 1).
func (l *loop) applyEnableDeltas(rx [2 + NumChannels]byte) {
	for i := 0; i < NumChannels; i++ {
		ch := l.chans[i]

		newStatus := rx[1]&(0x10<<uint(i)) != 0
		oldStatus := ch.enabled

		if newStatus == oldStatus {
			continue
		} else if newStatus {
			l.fds[idxSock(i)].Events = unix.POLLIN
			ch.listenArmed = true
		} else {
			l.closeConnection(i)
			l.fds[idxSock(i)].Events = 0
			ch.listenArmed = false
		}

		ch.enabled = newStatus
	}
}
