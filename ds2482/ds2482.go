// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds2482 accesses a 1-Wire bus through a DS2482-100, DS2482-800 or
// DS2483 I²C to 1-Wire bridge.
//
// The bridge generates the reset pulses and time slots in hardware; this
// driver exposes them through the owi.Bus bit level contract.
package ds2482

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"

	"github.com/jazzgil/owi"
)

// PupOhm controls the strength of the passive pull-up resistor
// on the 1-wire data line. The default value is 1000Ω.
type PupOhm uint8

const (
	// R500Ω passive pull-up resistor.
	R500Ω = 4
	// R1000Ω passive pull-up resistor.
	R1000Ω = 6
)

// Opts contains options to pass to the constructor.
type Opts struct {
	PassivePullup bool // false:use active pull-up, true: disable active pullup

	// ResetRetries bounds how many reset pulses are issued before Reset
	// gives up waiting for a presence pulse. Recovery from electrical
	// glitches belongs to this layer, not to the protocol core.
	ResetRetries int

	// The following options are only available on the ds2483 (not ds2482-100).
	// The actual value used is the closest possible value (rounded up or down).
	ResetLow       time.Duration // reset low time, range 440μs..740μs
	PresenceDetect time.Duration // presence detect sample time, range 58μs..76μs
	Write0Low      time.Duration // write zero low time, range 52μs..70μs
	Write0Recovery time.Duration // write zero recovery time, range 2750ns..25250ns
	PullupRes      PupOhm        // passive pull-up resistance, true: 500Ω, false: 1kΩ
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	PassivePullup:  false,
	ResetRetries:   4,
	ResetLow:       560 * time.Microsecond,
	PresenceDetect: 68 * time.Microsecond,
	Write0Low:      64 * time.Microsecond,
	Write0Recovery: 5250 * time.Nanosecond,
	PullupRes:      R1000Ω,
}

// New returns a device object that communicates over I²C to the
// DS2482/DS2483 controller and implements owi.Bus.
//
// Valid I²C addresses are 0x18, 0x19, 0x20 and 0x21.
func New(i i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	switch addr {
	case 0x18, 0x19, 0x20, 0x21:
	default:
		return nil, errors.New("ds2482: given address not supported by device")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{i2c: &i2c.Dev{Bus: i, Addr: addr}}
	if err := d.makeDev(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a handle to a ds248x bridge and implements the owi.Bus interface.
//
// Dev implements a persistent error model: if a fatal error is encountered
// it places itself into an error state and all subsequent operations fail
// fast; Reset returns false and ReadBits floats high. Err exposes the
// fault; a fresh Dev, which reinitializes the hardware, must be created to
// proceed.
//
// A persistent error is only set when there is a problem with the bridge
// itself or the I²C bus used to access it. Conditions on the 1-wire side,
// such as a missing presence pulse, are reported in-band per the owi.Bus
// contract.
type Dev struct {
	mu           sync.Mutex    // lock for the bridge while an operation is in progress
	i2c          conn.Conn     // i2c device handle for the ds248x
	isDS248x     int           // 0: ds2482-100 1: ds2482-800 2: ds2483,
	confReg      byte          // value written to configuration register
	tReset       time.Duration // time to perform a 1-wire reset
	tSlot        time.Duration // time to perform a 1-bit 1-wire read/write
	resetRetries int           // reset attempts before reporting no presence
	crc          byte          // integrity accumulator, updated on reads
	err          error         // persistent error, device will no longer operate
}

func (d *Dev) String() string {
	switch d.isDS248x {
	case isDS2482x100:
		return fmt.Sprintf("DS2482-100{%s}", d.i2c)
	case isDS2482x800:
		return fmt.Sprintf("DS2482-800{%s}", d.i2c)
	case isDS2483:
		return fmt.Sprintf("DS2483{%s}", d.i2c)
	default:
		return fmt.Sprintf("Undefined{%s}", d.i2c)
	}
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Err returns the persistent bridge error, if any.
func (d *Dev) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Reset implements owi.Bus. It issues a 1-Wire reset pulse and returns true
// if a device answered with a presence pulse, retrying up to the configured
// ceiling to ride out electrical glitches.
func (d *Dev) Reset() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for n := 0; n < d.resetRetries; n++ {
		d.i2cTx([]byte{cmd1WReset}, nil)
		status := d.waitIdle(d.tReset)
		if d.err != nil {
			return false
		}
		if status&0x04 != 0 {
			// Bus short, worth another attempt.
			continue
		}
		if status&0x02 != 0 {
			return true
		}
	}
	return false
}

// ReadBits implements owi.Bus. Full bytes use the bridge's byte read
// command, partial reads fall back to single bit transactions.
func (d *Dev) ReadBits(bits int) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var v byte
	if bits == 8 {
		d.i2cTx([]byte{cmd1WRead}, nil)
		d.waitIdle(8 * d.tSlot)
		var buf [1]byte
		d.i2cTx([]byte{cmdSetReadPtr, regRDR}, buf[:])
		v = buf[0]
	} else {
		for i := uint(0); i < uint(bits); i++ {
			if d.touchBit(1) {
				v |= 1 << i
			}
		}
	}
	if d.err != nil {
		// The adapter is gone; an undriven line reads all ones.
		return 0xff
	}
	d.crc = owi.UpdateCRC8(d.crc, v, bits)
	return v
}

// WriteBits implements owi.Bus.
func (d *Dev) WriteBits(value byte, bits int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if bits == 8 {
		d.i2cTx([]byte{cmd1WWrite, value}, nil)
		d.waitIdle(8 * d.tSlot)
		return
	}
	for i := uint(0); i < uint(bits); i++ {
		d.touchBit((value >> i) & 1)
	}
}

// CRC implements owi.Bus.
func (d *Dev) CRC() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.crc
}

// ResetCRC implements owi.Bus.
func (d *Dev) ResetCRC() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.crc = 0
}

// ChannelSelect function is for selecting one of eight 1-w channels on
// DS2482-800. On other chips it does nothing. Function silently limits
// channel selection between 0 and 7. It is expected that the application
// keeps track of which 1-w device is connected to which channel.
//
// Communication error is returned if present.
func (d *Dev) ChannelSelect(ch int) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isDS248x != isDS2482x800 {
		return nil
	}
	if ch < 0 {
		ch = 0
	}
	if ch > 7 {
		ch = 7
	}
	csc := []byte{cscIO0w, cscIO1w, cscIO2w, cscIO3w, cscIO4w, cscIO5w, cscIO6w, cscIO7w}
	if err = d.i2c.Tx([]byte{cmdChannelSelect, csc[ch]}, nil); err != nil {
		return fmt.Errorf("ds2482-800: error while selecting channel: %s", err)
	}
	return nil
}

// SelectedChannel reads which 1-w channel is selected on a DS2482-800. On
// other chips it always returns 0. On error returns 255.
func (d *Dev) SelectedChannel() (ch int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isDS248x != isDS2482x800 {
		return 0
	}
	var sch [1]byte
	if err := d.i2c.Tx([]byte{cmdSetReadPtr, regCSR}, sch[:]); err != nil {
		return 255
	}
	csc := []byte{cscIO0r, cscIO1r, cscIO2r, cscIO3r, cscIO4r, cscIO5r, cscIO6r, cscIO7r}
	ch = bytes.Index(csc, []byte{sch[0]})
	if ch < 0 || ch > 7 {
		return 255
	}
	return ch
}

//

// touchBit performs a single bit time slot and returns the sampled line
// level. Driving a 1 doubles as a read slot.
func (d *Dev) touchBit(bit byte) bool {
	var v byte
	if bit != 0 {
		v = 0x80
	}
	d.i2cTx([]byte{cmd1WBit, v}, nil)
	status := d.waitIdle(d.tSlot)
	return status&0x20 != 0 // SBR, the sampled bit
}

// i2cTx is a helper function to call i2c.Tx and handle the error by persisting
// it.
func (d *Dev) i2cTx(w, r []byte) {
	if d.err != nil {
		return
	}
	d.err = d.i2c.Tx(w, r)
}

// waitIdle waits for the one wire bus to be idle.
//
// It initially sleeps for the delay and then polls the status register and
// sleeps for a tenth of the delay each time the status register indicates that
// the bus is still busy. The last read status byte is returned.
//
// An overall timeout of 3ms is applied to the whole procedure. waitIdle uses
// the persistent error model and returns 0 if there is an error.
func (d *Dev) waitIdle(delay time.Duration) byte {
	if d.err != nil {
		return 0
	}
	// Overall timeout.
	tOut := time.Now().Add(3 * time.Millisecond)
	sleep(delay)
	for {
		// Read status register.
		var status [1]byte
		d.i2cTx(nil, status[:])
		// If bus idle complete, return status. This also returns if d.err!=nil
		// because in that case status[0]==0.
		if (status[0] & 1) == 0 {
			return status[0]
		}
		// If we're timing out return error. This is an error with the bridge,
		// not with devices on the 1-wire bus, hence it is persistent.
		if time.Now().After(tOut) {
			d.err = fmt.Errorf("ds2482: timeout waiting for bus cycle to finish")
			return 0
		}
		// Try not to hog the kernel thread.
		sleep(delay / 10)
	}
}

func (d *Dev) makeDev(opts *Opts) error {
	d.tReset = 2 * opts.ResetLow
	d.tSlot = opts.Write0Low + opts.Write0Recovery
	d.resetRetries = opts.ResetRetries
	if d.resetRetries < 1 {
		d.resetRetries = 1
	}

	// Issue a reset command.
	if err := d.i2c.Tx([]byte{cmdReset}, nil); err != nil {
		return fmt.Errorf("ds2482: error while resetting: %s", err)
	}

	// Read the status register to confirm that we have a responding ds248x
	var stat [1]byte
	if err := d.i2c.Tx([]byte{cmdSetReadPtr, regStatus}, stat[:]); err != nil {
		return fmt.Errorf("ds2482: error while reading status register: %s", err)
	}
	if stat[0] != 0x18 {
		return fmt.Errorf("ds2482: invalid status register value: %#x, expected 0x18", stat[0])
	}

	// Write the device configuration register to get the chip out of reset state, immediately
	// read it back to get confirmation.
	d.confReg = 0xe1 // standard-speed, no strong pullup, no powerdown, active pull-up
	if opts.PassivePullup {
		d.confReg ^= 0x11
	}
	var dcr [1]byte
	if err := d.i2c.Tx([]byte{cmdWriteConfig, d.confReg}, dcr[:]); err != nil {
		return fmt.Errorf("ds2482: error while writing device config register: %s", err)
	}
	// When reading back we only get the bottom nibble
	if dcr[0] != d.confReg&0x0f {
		return fmt.Errorf("ds2482: failure to write device config register, wrote %#x got %#x back",
			d.confReg, dcr[0])
	}

	// Set the read ptr to the port configuration register to determine whether we have a
	// ds2483 vs ds2482-100. This will fail on devices that do not have a port config
	// register, such as the ds2482-100.
	if d.i2c.Tx([]byte{cmdSetReadPtr, regPCR}, nil) == nil {
		d.isDS248x = isDS2483
		buf := []byte{cmdAdjPort,
			byte(0x00 + ((opts.ResetLow/time.Microsecond - 430) / 20 & 0x0f)),
			byte(0x20 + ((opts.PresenceDetect/time.Microsecond - 55) / 2 & 0x0f)),
			byte(0x40 + ((opts.Write0Low/time.Microsecond - 51) / 2 & 0x0f)),
			byte(0x60 + (((opts.Write0Recovery-1250)/2500 + 5) & 0x0f)),
			byte(0x80 + (opts.PullupRes & 0x0f)),
		}
		if err := d.i2c.Tx(buf, nil); err != nil {
			return fmt.Errorf("ds2482: error while setting port config values: %s", err)
		}
	} else {
		if d.i2c.Tx([]byte{cmdSetReadPtr, regCSR}, nil) == nil {
			d.isDS248x = isDS2482x800
			buf := []byte{cmdChannelSelect, cscIO0w}
			if err := d.i2c.Tx(buf, nil); err != nil {
				return fmt.Errorf("ds2482-800: error while selecting channel: %s", err)
			}
		} else {
			d.isDS248x = isDS2482x100
		}
	}
	return nil
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ owi.Bus = &Dev{}

const (
	cmdReset         = 0xf0 // reset ds248x
	cmdSetReadPtr    = 0xe1 // set the read pointer
	cmdWriteConfig   = 0xd2 // write the device configuration
	cmdAdjPort       = 0xc3 // adjust 1-wire port (ds2483)
	cmdChannelSelect = 0xc3 // channel select (ds2482-800)
	cmd1WReset       = 0xb4 // reset the 1-wire bus
	cmd1WBit         = 0x87 // perform a single-bit transaction on the 1-wire bus
	cmd1WWrite       = 0xa5 // perform a byte write on the 1-wire bus
	cmd1WRead        = 0x96 // perform a byte read on the 1-wire bus

	regDCR    = 0xc3 // read ptr for device configuration register
	regStatus = 0xf0 // read ptr for status register
	regRDR    = 0xe1 // read ptr for read-data register
	regPCR    = 0xb4 // read ptr for port configuration register
	regCSR    = 0xd2 // read ptr for channel selection register

	// ds2482-800 channel selection codes to be written and read back
	cscIO0w = 0xF0 // channel 0 writing
	cscIO0r = 0xB8 // channel 0 reading
	cscIO1w = 0xE1 // channel 1 writing
	cscIO1r = 0xB1 // channel 1 reading
	cscIO2w = 0xD2 // channel 2 writing
	cscIO2r = 0xAA // channel 2 reading
	cscIO3w = 0xC3 // channel 3 writing
	cscIO3r = 0xA3 // channel 3 reading
	cscIO4w = 0xB4 // channel 4 writing
	cscIO4r = 0x9C // channel 4 reading
	cscIO5w = 0xA5 // channel 5 writing
	cscIO5r = 0x95 // channel 5 reading
	cscIO6w = 0x96 // channel 6 writing
	cscIO6r = 0x8E // channel 6 reading
	cscIO7w = 0x87 // channel 7 writing
	cscIO7r = 0x87 // channel 7 reading

	isDS2482x100 = 0 // DS2482-100 selected
	isDS2482x800 = 1 // DS2482-800 selected
	isDS2483     = 2 // DS2483 selected
)
