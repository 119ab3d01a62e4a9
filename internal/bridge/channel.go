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

const (
	// NumChannels is the fixed logical channel count N, matching
	// spid.c's N_CHANNEL. The spec names this a Non-goal to make
	// dynamic ("no dynamic channel count").
	NumChannels = 3

	// BufSize is the maximum bytes moved per direction per channel
	// per cycle, matching spid.c's BUFSIZE.
	BufSize = 255

	headerTxMagic = 0x53
	headerRxMagic = 0xCA

	// maxRetries is the number of consecutive bad header replies
	// tolerated before the loop exits fatally, matching spid.c's
	// `if (retries > 15) fatal(...)`.
	maxRetries = 15
)

// channel holds the per-logical-channel state the transaction loop
// maintains across cycles: the listening socket, the one accepted
// connection (if any), and the single in-flight buffer per direction.
// The writable flag exists only as a uint8 bitmap on loop (writable);
// open is also mirrored there as the channelsOpen bitmap. Those two
// bitmaps, not the bools here, are what headerExchange writes into
// byte 1 of the header.
type channel struct {
	index int

	listenFD int
	connFD   int // -1 when no client is connected

	enabled bool // last value decoded from the enable/disable bitmap
	open    bool // true while an accepted client connection is held

	outBuf    [BufSize]byte
	outLength int // bytes pending to transmit to the co-processor

	inBuf [BufSize]byte

	listenArmed bool // SOCK_POLL(i).events & POLLIN
}

func newChannel(i int) *channel {
	return &channel{index: i, connFD: -1}
}
