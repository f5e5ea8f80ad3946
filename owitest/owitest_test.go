// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owitest

import (
	"testing"

	"github.com/jazzgil/owi"
)

func block(payload ...byte) []byte {
	return append(payload, owi.CRC8(payload))
}

// TestReadBlock_integrity checks that a pristine block passes the
// accumulator check and that any single flipped bit fails it.
func TestReadBlock_integrity(t *testing.T) {
	rom := MakeROM(0x28, 0x740000070e41)
	good := block(0xe0, 0x01, 0x00, 0x00, 0x3f, 0xff, 0x10, 0x10)
	read := func(resp []byte) bool {
		bus := &Bus{Devices: []*Device{
			{ROM: rom, Respond: map[byte][]byte{0xbe: resp}},
		}}
		d := owi.Dev{Bus: bus, ROM: rom}
		return d.Tx([]byte{0xbe}, make([]byte, len(resp))) == nil
	}

	if !read(good) {
		t.Fatal("pristine block failed the integrity check")
	}
	for pos := 0; pos < 8*len(good); pos++ {
		bad := append([]byte{}, good...)
		bad[pos/8] ^= 1 << uint(pos%8)
		if read(bad) {
			t.Fatalf("flipped bit %d went undetected", pos)
		}
	}
}

// TestReadROM_and checks the wired-AND: with two devices transmitting at
// once the master sees the AND of both identities.
func TestReadROM_and(t *testing.T) {
	a := MakeROM(0x28, 0x740000070e41)
	b := MakeROM(0x28, 0x130000070c99)
	bus := &Bus{Devices: []*Device{{ROM: a}, {ROM: b}}}

	if !bus.Reset() {
		t.Fatal("expected presence")
	}
	bus.WriteBits(0x33, 8)
	for i := 0; i < 8; i++ {
		if got, want := bus.ReadBits(8), a[i]&b[i]; got != want {
			t.Fatalf("byte %d: got %#02x, expected %#02x", i, got, want)
		}
	}
}

func TestMakeROM(t *testing.T) {
	r := MakeROM(0x10, 0x0000070e41ac)
	if !r.Valid() {
		t.Fatal("expected a valid checksum")
	}
	if r.Family() != 0x10 || r.Serial() != 0x0000070e41ac {
		t.Fatalf("got %s", r)
	}
}

func TestBus_idle(t *testing.T) {
	// An undriven line reads all ones.
	bus := &Bus{}
	if bus.Reset() {
		t.Fatal("empty bus answered presence")
	}
	if v := bus.ReadBits(8); v != 0xff {
		t.Fatalf("got %#02x", v)
	}
}
