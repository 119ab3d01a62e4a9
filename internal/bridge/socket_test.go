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

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ChannelSocketPath", func() {
	It("names one path per channel index under the given directory", func() {
		Expect(ChannelSocketPath("/var/run/tessel", 0)).To(Equal("/var/run/tessel/0"))
		Expect(ChannelSocketPath("/var/run/tessel", 2)).To(Equal("/var/run/tessel/2"))
	})
})

var _ = Describe("ListenAll", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "spid-bridge-test-")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(dir)
	})

	It("creates one listening socket per channel", func() {
		fds, err := ListenAll(dir)
		Expect(err).ToNot(HaveOccurred())

		for i, fd := range fds {
			Expect(fd).To(BeNumerically(">=", 0), "channel %d", i)
			_, statErr := os.Stat(ChannelSocketPath(dir, i))
			Expect(statErr).ToNot(HaveOccurred())
			Expect(unix.Close(fd)).To(Succeed())
		}
	})

	It("replaces a stale socket file left over from a previous run", func() {
		stale := ChannelSocketPath(dir, 0)
		Expect(os.WriteFile(stale, nil, 0600)).To(Succeed())

		fds, err := ListenAll(dir)
		Expect(err).ToNot(HaveOccurred())
		Expect(unix.Close(fds[0])).To(Succeed())
		for _, fd := range fds[1:] {
			_ = unix.Close(fd)
		}
	})
})
