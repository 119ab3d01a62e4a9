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

// Package closer collects the io.Closer values acquired during daemon
// setup (the SPI char device, both GPIO value files, the N listening
// sockets) so a signal-driven shutdown can unwind them in one call. A
// fatal exit through logging.Must ends the process with os.Exit, which
// does not run the caller's deferred Close. Adapted from nabbar-golib/ioutils/mapCloser, trimmed to
// a plain slice since this daemon has no need for mapCloser's
// libctx-backed clone/walk machinery — there is exactly one closer set
// per process lifetime, never cloned, never iterated outside Close.
package closer

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Closer aggregates io.Closer values and closes them all together.
type Closer struct {
	mu     sync.Mutex
	closed bool
	items  []io.Closer
}

// New returns an empty Closer.
func New() *Closer {
	return &Closer{items: make([]io.Closer, 0, 8)}
}

// Add registers one or more closers. A no-op once Close has run, so
// resources opened during a failed late-setup step are still closed
// by the caller's own error path without double-closing here.
func (c *Closer) Add(clo ...io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.items = append(c.items, clo...)
}

// Len reports how many closers are currently registered.
func (c *Closer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Close closes every registered closer, continuing past individual
// failures, and returns their errors joined. Safe to call more than
// once; only the first call does any work.
func (c *Closer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []string
	for _, item := range c.items {
		if item == nil {
			continue
		}
		if err := item.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, ", "))
	}
	return nil
}
