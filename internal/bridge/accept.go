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
)

// acceptNewConnections checks every unconnected channel's listening
// socket for a pending connection, matching spid.c's first
// post-sync-low loop ("Check for new connections on unconnected
// sockets"). At most one accepted connection is ever held per
// channel: accept disarms POLLIN on the listening socket immediately,
// so a second inbound attempt queues at the kernel's backlog of 1
// until the channel closes.
func (l *loop) acceptNewConnections() {
	for i := 0; i < NumChannels; i++ {
		ch := l.chans[i]

		if l.fds[idxSock(i)].Revents&unix.POLLIN == 0 {
			continue
		}

		fd, _, err := unix.Accept(ch.listenFD)
		if err != nil {
			logging.CheckError(l.log, errcode.ErrClientAccept.Wrap(err), fmt.Sprintf("channel %d", i))
			continue
		}

		l.log.Infof("Accepted connection on %d", i)
		ch.connFD = fd
		ch.open = true
		l.channelsOpen |= 1 << uint(i)

		l.fds[idxConn(i)] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN | unix.POLLOUT}

		// disable further events on the listening socket
		l.fds[idxSock(i)].Events = 0
		ch.listenArmed = false

		if l.cfg.Metrics != nil {
			l.cfg.Metrics.ChannelsOpen.Inc()
		}
	}
}

// serviceConnections reads from every readable accepted socket and
// tears down any socket that closed or errored, matching spid.c's
// second post-sync-low loop. A read of zero bytes or an error closes
// the connection; a successful positive-length read latches
// out_length for the next data-phase descriptor build.
func (l *loop) serviceConnections() {
	for i := 0; i < NumChannels; i++ {
		ch := l.chans[i]
		toClose := false

		if l.fds[idxConn(i)].Revents&unix.POLLIN != 0 {
			n, err := unix.Read(ch.connFD, ch.outBuf[:])
			l.fds[idxConn(i)].Events &^= unix.POLLIN

			if err != nil {
				logging.CheckError(l.log, errcode.ErrClientRead.Wrap(err), fmt.Sprintf("channel %d", i))
				toClose = true
			} else if n > 0 {
				ch.outLength = n
			} else {
				toClose = true
			}
		}

		if l.fds[idxConn(i)].Revents&unix.POLLOUT != 0 {
			l.fds[idxConn(i)].Events &^= unix.POLLOUT
			l.writable |= 1 << uint(i)
			l.log.Debugf("%d: Writable", i)
		}

		if toClose || l.fds[idxConn(i)].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLRDHUP) != 0 {
			l.closeConnection(i)
		}
	}
}

// closeConnection tears down channel i's accepted socket and
// re-arms its listening socket, matching spid.c's close_connection().
// Safe to call on a channel with no accepted connection (the disable
// branch of applyEnableDeltas does this unconditionally): in that case
// it only re-arms listening, since there is nothing else to tear down.
func (l *loop) closeConnection(i int) {
	ch := l.chans[i]
	wasOpen := ch.open

	if wasOpen {
		l.log.Infof("Closing connection %d", i)
		_ = unix.Close(ch.connFD)
	}

	ch.connFD = -1
	l.fds[idxConn(i)] = unix.PollFd{Fd: -1}

	ch.outLength = 0
	ch.open = false
	l.writable &^= 1 << uint(i)
	l.channelsOpen &^= 1 << uint(i)

	// Re-enable events on a new connection.
	l.fds[idxSock(i)].Events = unix.POLLIN
	ch.listenArmed = true

	if wasOpen && l.cfg.Metrics != nil {
		l.cfg.Metrics.ChannelsOpen.Dec()
	}
}
