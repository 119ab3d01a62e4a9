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

package closer_test

import (
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tessel/spid/internal/closer"
)

type fakeCloser struct {
	err    error
	closed int
}

func (f *fakeCloser) Close() error {
	f.closed++
	return f.err
}

var _ io.Closer = (*fakeCloser)(nil)

var _ = Describe("Closer", func() {
	It("closes every registered closer", func() {
		a := &fakeCloser{}
		b := &fakeCloser{}

		c := closer.New()
		c.Add(a, b)
		Expect(c.Len()).To(Equal(2))

		Expect(c.Close()).To(Succeed())
		Expect(a.closed).To(Equal(1))
		Expect(b.closed).To(Equal(1))
	})

	It("aggregates errors from failing closers without stopping early", func() {
		a := &fakeCloser{err: errors.New("boom a")}
		b := &fakeCloser{}
		c := &fakeCloser{err: errors.New("boom c")}

		cl := closer.New()
		cl.Add(a, b, c)

		err := cl.Close()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("boom a"))
		Expect(err.Error()).To(ContainSubstring("boom c"))
		Expect(b.closed).To(Equal(1))
	})

	It("is idempotent: a second Close does not re-close anything", func() {
		a := &fakeCloser{}

		cl := closer.New()
		cl.Add(a)

		Expect(cl.Close()).To(Succeed())
		Expect(cl.Close()).To(Succeed())
		Expect(a.closed).To(Equal(1))
	})

	It("ignores Add after Close", func() {
		a := &fakeCloser{}
		cl := closer.New()
		Expect(cl.Close()).To(Succeed())

		cl.Add(a)
		Expect(cl.Len()).To(Equal(0))
	})

	It("tolerates nil closers in the list", func() {
		cl := closer.New()
		cl.Add(nil)
		Expect(cl.Close()).To(Succeed())
	})
})
