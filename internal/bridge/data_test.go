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
	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tessel/spid/internal/spi"
)

type fakeSPI struct {
	messages [][]spi.Descriptor
	headerTX []byte
}

func (f *fakeSPI) Header(tx, rx []byte) error {
	f.headerTX = append([]byte(nil), tx...)
	return nil
}

func (f *fakeSPI) Message(descs []spi.Descriptor) error {
	cp := make([]spi.Descriptor, len(descs))
	copy(cp, descs)
	f.messages = append(f.messages, cp)
	return nil
}

var _ = Describe("dataExchange", func() {
	var l *loop
	var dev *fakeSPI

	BeforeEach(func() {
		l = newTestLoop()
		dev = &fakeSPI{}
		l.dev = dev
	})

	It("builds no descriptor and issues no transfer when nothing is pending", func() {
		var rx [2 + NumChannels]byte
		Expect(l.dataExchange(rx)).To(Succeed())
		Expect(dev.messages).To(BeEmpty())
	})

	It("only includes nonzero-length descriptors for channels the reply agreed on", func() {
		l.chans[0].outLength = 10
		l.chans[1].outLength = 0 // nothing pending: must not appear even if agreed
		l.writable = 0

		var rx [2 + NumChannels]byte
		rx[1] = 0x01 | 0x02 // channels 0 and 1 agreed to receive tx data

		Expect(l.dataExchange(rx)).To(Succeed())
		Expect(dev.messages).To(HaveLen(1))
		Expect(dev.messages[0]).To(HaveLen(1))
		Expect(dev.messages[0][0].Write).To(BeTrue())
		Expect(dev.messages[0][0].Buf).To(HaveLen(10))
	})

	It("re-arms POLLIN and clears out_length for a channel in the same cycle its outbound descriptor is sent", func() {
		l.chans[0].outLength = 5
		var rx [2 + NumChannels]byte
		rx[1] = 0x01

		Expect(l.dataExchange(rx)).To(Succeed())
		Expect(l.fds[idxConn(0)].Events & unix.POLLIN).To(Equal(int16(unix.POLLIN)))
		Expect(l.chans[0].outLength).To(Equal(0))
	})

	It("delivers inbound payload to the client socket and clears the writable bit only after the transfer completes", func() {
		l.writable = 0x01 // channel 0 writable
		var rx [2 + NumChannels]byte
		rx[2] = 7 // co-processor offering 7 bytes on channel 0

		Expect(l.writable & 0x01).To(Equal(uint8(0x01)))
		// connFD -1 makes the write a no-op error, logged but non-fatal
		Expect(l.dataExchange(rx)).To(Succeed())
		Expect(l.writable & 0x01).To(Equal(uint8(0)))
		Expect(l.fds[idxConn(0)].Events & unix.POLLOUT).To(Equal(int16(unix.POLLOUT)))
	})

	It("keeps each channel's transfer FIFO: tx descriptor precedes rx descriptor for the same channel", func() {
		l.chans[1].outLength = 3
		l.writable = 0x02
		var rx [2 + NumChannels]byte
		rx[1] = 0x02
		rx[2+1] = 4

		Expect(l.dataExchange(rx)).To(Succeed())
		descs := dev.messages[0]
		Expect(descs).To(HaveLen(2))
		Expect(descs[0].Write).To(BeTrue())
		Expect(descs[1].Write).To(BeFalse())
	})
})
