// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owitest simulates a 1-Wire bus populated with devices.
//
// The simulation is behavioral, not scripted: reads return the wired-AND of
// every participating device's reply, devices drop off when the master
// writes a search or match bit that contradicts their identity, and alarm
// searches only involve devices flagged as alarming. This reproduces the
// electrical semantics the discovery algorithm depends on.
package owitest

import (
	"github.com/jazzgil/owi"
)

// Device is one simulated 1-Wire slave.
type Device struct {
	ROM owi.ROM
	// Alarm marks the device as answering alarm searches.
	Alarm bool
	// Respond maps a function command byte to the bytes the device then
	// drives on the line, typically a payload with a trailing CRC8.
	// Commands without an entry leave the line floating high.
	Respond map[byte][]byte

	off      bool // silent until the next reset
	selected bool // addressed for function commands
	resp     []byte
	rdPos    int
}

// Bus is an in-memory 1-Wire bus. It implements owi.Bus.
//
// The zero value is an empty bus with no devices. Not safe for concurrent
// use; 1-Wire is strictly half duplex anyway.
type Bus struct {
	Devices []*Device
	// NoPresence forces Reset to report an empty bus.
	NoPresence bool

	// Traffic counters, for asserting that an operation stopped early.
	Resets      int
	BitsRead    int
	BitsWritten int

	crc   byte
	state state
	shift byte // partial byte assembled from written bits
	nbits int
	phase int // search slot: 0 = bit, 1 = complement, 2 = direction
	pos   int // bit progress through a 64-bit rom transfer
}

type state int

const (
	stateIdle    state = iota // line floating, before any reset
	stateROMCmd               // assembling the rom command byte
	stateSearch               // search rom / alarm search bit loop
	stateMatch                // receiving the 64 match rom bits
	stateReadROM              // devices transmitting their rom
	stateFunc                 // assembling a function command byte
	stateRespond              // devices transmitting a function response
)

func (b *Bus) String() string {
	return "owitest"
}

// Reset implements owi.Bus. Every device rejoins the bus.
func (b *Bus) Reset() bool {
	b.Resets++
	b.shift, b.nbits = 0, 0
	for _, d := range b.Devices {
		d.off = false
		d.selected = false
		d.resp = nil
		d.rdPos = 0
	}
	if b.NoPresence || len(b.Devices) == 0 {
		b.state = stateIdle
		return false
	}
	b.state = stateROMCmd
	return true
}

// ReadBits implements owi.Bus.
func (b *Bus) ReadBits(bits int) byte {
	var v byte
	for i := uint(0); i < uint(bits); i++ {
		if b.readBit() != 0 {
			v |= 1 << i
		}
	}
	b.crc = owi.UpdateCRC8(b.crc, v, bits)
	b.BitsRead += bits
	return v
}

// WriteBits implements owi.Bus.
func (b *Bus) WriteBits(value byte, bits int) {
	for i := uint(0); i < uint(bits); i++ {
		b.writeBit((value >> i) & 1)
	}
	b.BitsWritten += bits
}

// CRC implements owi.Bus.
func (b *Bus) CRC() byte { return b.crc }

// ResetCRC implements owi.Bus.
func (b *Bus) ResetCRC() { b.crc = 0 }

func (b *Bus) readBit() byte {
	switch b.state {
	case stateSearch:
		bit, comp := byte(1), byte(1)
		for _, d := range b.Devices {
			if d.off {
				continue
			}
			if romBit(d.ROM, b.pos) == 0 {
				bit = 0
			} else {
				comp = 0
			}
		}
		if b.phase == 0 {
			b.phase = 1
			return bit
		}
		b.phase = 2
		return comp
	case stateReadROM:
		bit := byte(1)
		for _, d := range b.Devices {
			if d.off {
				continue
			}
			if romBit(d.ROM, b.pos) == 0 {
				bit = 0
			}
		}
		b.pos++
		if b.pos == 64 {
			for _, d := range b.Devices {
				d.selected = !d.off
			}
			b.state = stateFunc
		}
		return bit
	case stateRespond:
		bit := byte(1)
		for _, d := range b.Devices {
			if d.off || !d.selected || d.rdPos >= 8*len(d.resp) {
				continue
			}
			if (d.resp[d.rdPos/8]>>(uint(d.rdPos)%8))&1 == 0 {
				bit = 0
			}
			d.rdPos++
		}
		return bit
	default:
		// Nothing drives the line, the pull-up wins.
		return 1
	}
}

func (b *Bus) writeBit(v byte) {
	switch b.state {
	case stateSearch:
		for _, d := range b.Devices {
			if d.off {
				continue
			}
			if romBit(d.ROM, b.pos) != v {
				d.off = true
			}
		}
		b.pos++
		b.phase = 0
		if b.pos == 64 {
			// A completed search pass leaves the surviving device
			// addressed, like on a real bus.
			for _, d := range b.Devices {
				d.selected = !d.off
			}
			b.state = stateFunc
		}
	case stateMatch:
		for _, d := range b.Devices {
			if d.off {
				continue
			}
			if romBit(d.ROM, b.pos) != v {
				d.off = true
			}
		}
		b.pos++
		if b.pos == 64 {
			for _, d := range b.Devices {
				d.selected = !d.off
			}
			b.state = stateFunc
		}
	case stateROMCmd, stateFunc:
		if v != 0 {
			b.shift |= 1 << uint(b.nbits)
		}
		if b.nbits++; b.nbits == 8 {
			cmd := b.shift
			b.shift, b.nbits = 0, 0
			if b.state == stateROMCmd {
				b.romCommand(cmd)
			} else {
				b.function(cmd)
			}
		}
	default:
		// Writes to an idle or responding bus are consumed as device
		// data; nothing to model.
	}
}

func (b *Bus) romCommand(cmd byte) {
	switch cmd {
	case 0xf0, 0xec:
		if cmd == 0xec {
			for _, d := range b.Devices {
				if !d.Alarm {
					d.off = true
				}
			}
		}
		b.state = stateSearch
		b.pos, b.phase = 0, 0
	case 0x33:
		for _, d := range b.Devices {
			d.selected = !d.off
		}
		b.state = stateReadROM
		b.pos = 0
	case 0x55:
		b.state = stateMatch
		b.pos = 0
	case 0xcc:
		for _, d := range b.Devices {
			d.selected = !d.off
		}
		b.state = stateFunc
	default:
		b.state = stateIdle
	}
}

func (b *Bus) function(cmd byte) {
	for _, d := range b.Devices {
		if d.off || !d.selected {
			continue
		}
		d.resp = d.Respond[cmd]
		d.rdPos = 0
	}
	b.state = stateRespond
}

func romBit(r owi.ROM, pos int) byte {
	return (r[pos/8] >> (uint(pos) % 8)) & 1
}

// MakeROM builds a checksum-valid identity from a family code and a 48-bit
// serial number.
func MakeROM(family byte, serial uint64) owi.ROM {
	var r owi.ROM
	r[0] = family
	for i := 1; i <= 6; i++ {
		r[i] = byte(serial)
		serial >>= 8
	}
	r[7] = owi.CRC8(r[:7])
	return r
}

var _ owi.Bus = &Bus{}
