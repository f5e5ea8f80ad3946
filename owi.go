// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owi implements the core of the Dallas/Maxim 1-Wire bus protocol:
// ROM addressing, resumable device discovery and integrity checked block
// transfers, built on a minimal bit level bus contract.
//
// The package is hardware independent. Physical access is provided by a Bus
// implementation: ds2482 for an I²C bridge, bitbang for a raw GPIO pin, or
// owitest for a simulated bus in tests.
//
// The bus is half duplex and has no arbitration hardware; callers sharing
// one Bus across goroutines must serialize access themselves.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/tech-articles/1wire-communication-through-software.pdf
package owi

import "fmt"

// Bus is the primitive 1-Wire bus contract.
//
// All operations are synchronous and blocking. The precise time slot
// generation happens entirely inside the implementation; no timing concern
// leaks into this package.
type Bus interface {
	// Reset issues a bus reset pulse and returns true if at least one
	// device answered with a presence pulse.
	Reset() bool
	// ReadBits samples bits (1..8) time slots from the line and returns
	// them packed LSB-first in the low bits of the result. Every bit
	// sampled must be folded into the integrity accumulator, see
	// UpdateCRC8.
	ReadBits(bits int) byte
	// WriteBits drives the low bits (1..8) of value onto the line,
	// LSB-first.
	WriteBits(value byte, bits int)
	// CRC returns the current value of the integrity accumulator.
	CRC() byte
	// ResetCRC clears the integrity accumulator.
	ResetCRC()
}

// ROM is the unique 64-bit identity carried by every 1-Wire device.
//
//	+---------------------+------------------------+----------------+
//	|  8-bit family code  |  48-bit serial number  |  8-bit CRC     |
//	+---------------------+------------------------+----------------+
//	    byte 0                 bytes 1..6              byte 7
//
// Every byte travels on the wire LSB-first, byte 0 first.
type ROM [8]byte

// Family returns the device type classification byte.
func (r ROM) Family() byte { return r[0] }

// Serial returns the 48-bit serial number.
func (r ROM) Serial() uint64 {
	var s uint64
	for i := 6; i >= 1; i-- {
		s = s<<8 | uint64(r[i])
	}
	return s
}

// Checksum returns the trailing CRC byte.
func (r ROM) Checksum() byte { return r[7] }

// Valid returns true if the checksum matches the family and serial bytes.
func (r ROM) Valid() bool { return CRC8(r[:7]) == r[7] }

// String returns the canonical family.serial.crc rendering, e.g.
// "28.00000070e41a.c2".
func (r ROM) String() string {
	return fmt.Sprintf("%02x.%012x.%02x", r[0], r.Serial(), r[7])
}

// Pos is a search resume position over the 64 ROM bits.
//
// A search pass returns the deepest bit position holding an unexplored
// branch; feeding it back as last together with the unchanged code buffer
// resumes the enumeration. Failures are reported through a separate error,
// not through a negative Pos.
type Pos int8

const (
	// First starts a fresh search.
	First Pos = -1
	// Last reports that no unexplored branch remains.
	Last Pos = 64
)

// Standard ROM commands.
const (
	cmdSearchROM   = 0xf0 // initiate device search
	cmdReadROM     = 0x33 // read family code and serial number
	cmdMatchROM    = 0x55 // select the device with a given rom code
	cmdSkipROM     = 0xcc // broadcast, or single device shortcut
	cmdAlarmSearch = 0xec // initiate search among alarming devices
)

// ReadBlock reads len(buf) bytes from the bus.
//
// The last byte of a block is the checksum the transmitting device computed
// over the preceding ones; the block is intact iff it drives the
// accumulator back to zero.
func ReadBlock(b Bus, buf []byte) bool {
	b.ResetCRC()
	for i := range buf {
		buf[i] = b.ReadBits(8)
	}
	return b.CRC() == 0
}

// WriteBlock writes the command byte followed by buf verbatim. There is no
// integrity protection on the write path.
func WriteBlock(b Bus, cmd byte, buf []byte) {
	b.WriteBits(cmd, 8)
	for _, v := range buf {
		b.WriteBits(v, 8)
	}
}

// ReadROM reads the identity of the device on the bus into code.
//
// It is only usable when exactly one device is present: with several
// devices the line carries the wired-AND of all their replies, which fails
// the integrity check.
func ReadROM(b Bus, code *ROM) error {
	if !b.Reset() {
		return errNoPresence
	}
	b.WriteBits(cmdReadROM, 8)
	if !ReadBlock(b, code[:]) {
		return errCRC
	}
	return nil
}

// MatchROM selects the device with the given identity. Function commands
// written afterwards address only that device, until the next reset.
func MatchROM(b Bus, code ROM) error {
	if !b.Reset() {
		return errNoPresence
	}
	WriteBlock(b, cmdMatchROM, code[:])
	return nil
}

// SkipROM addresses every device at once. Only safe before function
// commands that are genuinely broadcastable, or when a single device is
// present.
func SkipROM(b Bus) error {
	if !b.Reset() {
		return errNoPresence
	}
	b.WriteBits(cmdSkipROM, 8)
	return nil
}

// BusError is implemented by errors originating on the 1-Wire line itself,
// as opposed to a fault in the adapter used to reach it.
type BusError interface {
	error
	BusError() bool
}

type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

const (
	errNoPresence = busError("owi: no device present")
	errNoResponse = busError("owi: no device responded")
	errCRC        = busError("owi: invalid CRC")
)
