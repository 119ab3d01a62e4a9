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

// Package spi drives the Linux spidev character device through the
// same raw ioctl idiom as other_examples' goserial port_linux.go:
// build a C-layout struct, take its pointer, pass it through a single
// ioctl(2) call. linux/spi/spidev.h is not modeled anywhere in the
// corpus, so the spi_ioc_transfer struct and the SPI_IOC_MESSAGE
// request-code arithmetic are reproduced here as typed local
// constants (see DESIGN.md).
package spi

import (
	"os"
	"runtime"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"

	"github.com/tessel/spid/internal/errcode"
)

// transfer mirrors struct spi_ioc_transfer from linux/spi/spidev.h.
// Field order and widths matter: this is passed to the kernel as raw
// bytes through ioctl, not through cgo struct tags.
type transfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	pad         uint16
}

const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1

	spiIOCMagic = 'k'
)

func iocWriteReq(nr, size uintptr) uintptr {
	return (iocWrite << iocDirShift) | (spiIOCMagic << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

// messageRequest computes SPI_IOC_MESSAGE(n): an _IOW request whose
// size field is n transfer structs.
func messageRequest(n int) uintptr {
	return iocWriteReq(0, uintptr(n)*unsafe.Sizeof(transfer{}))
}

// Descriptor is one leg of a scatter/gather SPI transaction: a tx-only
// or rx-only buffer, matching the half-duplex descriptors spid.c
// builds per channel per cycle.
type Descriptor struct {
	Buf   []byte
	Write bool // true: Buf is transmitted; false: Buf receives
}

// Device wraps an open spidev character device.
type Device struct {
	f *os.File
}

// Open opens the spidev character device at path for read/write.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errcode.ErrSPI.Wrap(err)
	}
	return &Device{f: f}, nil
}

// Close closes the underlying device file.
func (d *Device) Close() error {
	return d.f.Close()
}

// Message issues a single SPI_IOC_MESSAGE ioctl carrying descs as a
// chain of half-duplex transfers, matching the original's pattern of
// building N spi_ioc_transfer structs and issuing one ioctl call
// regardless of whether N is 2 (header) or a variable count (data).
func (d *Device) Message(descs []Descriptor) error {
	if len(descs) == 0 {
		return nil
	}

	xfers := make([]transfer, len(descs))
	// Keep the Go byte slices reachable until the ioctl returns: the
	// kernel dereferences the raw pointers we hand it, so the garbage
	// collector must not move or free them first.
	pin := make([][]byte, len(descs))

	for i, desc := range descs {
		pin[i] = desc.Buf
		if len(desc.Buf) == 0 {
			continue
		}
		ptr := uint64(uintptr(unsafe.Pointer(&desc.Buf[0])))
		if desc.Write {
			xfers[i].txBuf = ptr
		} else {
			xfers[i].rxBuf = ptr
		}
		xfers[i].length = uint32(len(desc.Buf))
	}

	req := messageRequest(len(xfers))
	err := ioctl.Ioctl(d.f.Fd(), req, uintptr(unsafe.Pointer(&xfers[0])))
	runtime.KeepAlive(pin)
	if err != nil {
		return errcode.ErrSPI.Wrap(err)
	}
	return nil
}

// Header issues the fixed two-transfer header exchange: tx is written
// out, rx is read back, each (2+N)-byte wide, matching spid.c's
// ctrl_transfer[2] pattern exactly (one tx-only transfer, one
// rx-only transfer, combined in a single SPI_IOC_MESSAGE(2) call).
func (d *Device) Header(tx []byte, rx []byte) error {
	return d.Message([]Descriptor{
		{Buf: tx, Write: true},
		{Buf: rx, Write: false},
	})
}
