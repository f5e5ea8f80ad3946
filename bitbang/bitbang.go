// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbang drives a 1-Wire bus directly on a GPIO pin.
//
// The line is operated open drain: the pin is driven low for the active
// part of each time slot and released to the pull-up for the rest. Standard
// speed timings are used.
//
// Time slots are generated with busy waits since time.Sleep cannot hold
// microsecond deadlines on a general purpose kernel. Expect occasional
// glitches when the host is under load; a hardware bridge such as ds2482 is
// the robust option.
package bitbang

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"

	"github.com/jazzgil/owi"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// Pull applies the pin's internal pull-up. An external 4.7kΩ resistor
	// is the proper way to bias the line; the internal pull-up of most
	// hosts is too weak for more than a couple of devices.
	Pull gpio.Pull
	// ResetRetries bounds how many reset pulses are issued before Reset
	// gives up waiting for a presence pulse.
	ResetRetries int
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Pull:         gpio.PullUp,
	ResetRetries: 4,
}

// New returns an owi.Bus driven on the given pin.
func New(p gpio.PinIO, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	retries := opts.ResetRetries
	if retries < 1 {
		retries = DefaultOpts.ResetRetries
	}
	// Release the line and let it settle high.
	if err := p.In(opts.Pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("bitbang: %v", err)
	}
	return &Dev{p: p, pull: opts.Pull, retries: retries}, nil
}

// Dev is a bit-banged 1-Wire bus on a single GPIO pin. It implements
// owi.Bus.
type Dev struct {
	p       gpio.PinIO
	pull    gpio.Pull
	retries int
	crc     byte
}

func (d *Dev) String() string {
	return fmt.Sprintf("owi(%s)", d.p)
}

// Halt implements conn.Resource. It releases the line.
func (d *Dev) Halt() error {
	return d.p.In(d.pull, gpio.NoEdge)
}

// Reset implements owi.Bus. It holds the line low for 480µs, releases it
// and samples for the presence pulse, retrying up to the configured
// ceiling.
func (d *Dev) Reset() bool {
	for n := 0; n < d.retries; n++ {
		if d.p.Out(gpio.Low) != nil {
			return false
		}
		delay(tRSTL)
		if d.p.In(d.pull, gpio.NoEdge) != nil {
			return false
		}
		delay(tPDW)
		present := d.p.Read() == gpio.Low
		delay(tRSTH)
		if present {
			return true
		}
	}
	return false
}

// ReadBits implements owi.Bus.
func (d *Dev) ReadBits(bits int) byte {
	var v byte
	for i := uint(0); i < uint(bits); i++ {
		if d.readBit() == gpio.High {
			v |= 1 << i
		}
	}
	d.crc = owi.UpdateCRC8(d.crc, v, bits)
	return v
}

// WriteBits implements owi.Bus.
func (d *Dev) WriteBits(value byte, bits int) {
	for i := uint(0); i < uint(bits); i++ {
		d.writeBit((value >> i) & 1)
	}
}

// CRC implements owi.Bus.
func (d *Dev) CRC() byte { return d.crc }

// ResetCRC implements owi.Bus.
func (d *Dev) ResetCRC() { d.crc = 0 }

// readBit issues a read slot: a short low pulse, then sample before 15µs
// have elapsed from the falling edge.
func (d *Dev) readBit() gpio.Level {
	d.p.Out(gpio.Low)
	delay(tLOW1)
	d.p.In(d.pull, gpio.NoEdge)
	delay(tRDV)
	l := d.p.Read()
	delay(tSLOT - tLOW1 - tRDV)
	return l
}

// writeBit issues a write slot: a 1 is a short low pulse, a 0 holds the
// line low for most of the slot.
func (d *Dev) writeBit(b byte) {
	low := tLOW0
	if b != 0 {
		low = tLOW1
	}
	d.p.Out(gpio.Low)
	delay(low)
	d.p.In(d.pull, gpio.NoEdge)
	delay(tSLOT - low)
}

// Standard speed timings, see the datasheet of any 1-Wire device.
const (
	tRSTL = 480 * time.Microsecond // reset low
	tPDW  = 70 * time.Microsecond  // presence sample after release
	tRSTH = 410 * time.Microsecond // rest of the reset high window
	tSLOT = 70 * time.Microsecond  // full time slot incl. recovery
	tLOW1 = 6 * time.Microsecond   // low pulse for write 1 / read
	tLOW0 = 60 * time.Microsecond  // low pulse for write 0
	tRDV  = 9 * time.Microsecond   // sample point after the falling edge
)

// delay busy-waits, swapped out in tests.
var delay = busyWait

func busyWait(t time.Duration) {
	for end := time.Now().Add(t); time.Now().Before(end); {
	}
}

var _ conn.Resource = &Dev{}
var _ owi.Bus = &Dev{}
