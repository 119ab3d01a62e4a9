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
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tessel/spid/internal/gpio"
)

var _ = Describe("applyEnableDeltas", func() {
	var l *loop

	BeforeEach(func() {
		l = newTestLoop()
	})

	It("arms listening for every channel whose enable bit is newly set, not just channel 0", func() {
		var rx [2 + NumChannels]byte
		rx[1] = 0x10 | 0x20 | 0x40 // channels 0, 1 and 2 all enabled

		l.applyEnableDeltas(rx)

		for i := 0; i < NumChannels; i++ {
			Expect(l.chans[i].enabled).To(BeTrue(), "channel %d", i)
			Expect(l.fds[idxSock(i)].Events).To(Equal(int16(unix.POLLIN)), "channel %d", i)
		}
	})

	It("does nothing when a channel's enable bit is unchanged", func() {
		rx1 := [2 + NumChannels]byte{1: 0x10}
		l.applyEnableDeltas(rx1)
		Expect(l.chans[0].enabled).To(BeTrue())

		// same bit, same value: no transition, no further side effect
		l.fds[idxSock(0)].Events = 0
		l.applyEnableDeltas(rx1)
		Expect(l.fds[idxSock(0)].Events).To(Equal(int16(0)))
	})

	It("closes the connection and disarms listening when a channel's enable bit clears", func() {
		ch := l.chans[1]
		ch.connFD = -1 // no real fd to close in this unit test
		ch.enabled = true
		l.fds[idxSock(1)].Events = unix.POLLIN

		var rx [2 + NumChannels]byte
		rx[1] = 0 // every bit cleared

		l.applyEnableDeltas(rx)

		Expect(l.chans[1].enabled).To(BeFalse())
		Expect(l.chans[1].open).To(BeFalse())
		Expect(l.fds[idxSock(1)].Events).To(Equal(int16(0)))
		Expect(l.fds[idxConn(1)].Fd).To(Equal(int32(-1)))
	})
})

var _ = Describe("headerExchange byte layout", func() {
	It("packs writable into the low nibble and open channels into the high nibble of byte 1", func() {
		l := newTestLoop()
		dev := &fakeSPI{}
		l.dev = dev

		dir, err := os.MkdirTemp("", "spid-header-test-")
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = os.RemoveAll(dir) })
		syncPath := filepath.Join(dir, "value")
		Expect(os.WriteFile(syncPath, []byte("1\n"), 0600)).To(Succeed())
		syncLine, err := gpio.Open(syncPath)
		Expect(err).ToNot(HaveOccurred())
		defer syncLine.Close()
		l.sync = syncLine

		l.writable = 0x05      // channels 0 and 2 writable
		l.channelsOpen = 0x03  // channels 0 and 1 open
		l.chans[0].outLength = 10
		l.chans[2].outLength = 20

		Expect(l.headerExchange()).To(Succeed())
		tx := dev.headerTX
		Expect(tx).To(HaveLen(2 + NumChannels))

		Expect(tx[0]).To(Equal(byte(headerTxMagic)))
		Expect(tx[1]).To(Equal(byte(0x05 | (0x03 << 4))))
		Expect(tx[2]).To(Equal(byte(10)))
		Expect(tx[3]).To(Equal(byte(0)))
		Expect(tx[4]).To(Equal(byte(20)))
	})
})
