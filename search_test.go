// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owi_test

import (
	"testing"

	"github.com/jazzgil/owi"
	"github.com/jazzgil/owi/owitest"
)

// TestSearchROM_order walks three devices of one family and checks the
// exact traversal: at every fresh discrepancy the 0 branch is taken first,
// so serial 2 (bit 0 of its serial is 0) comes before serials 1 and 3.
func TestSearchROM_order(t *testing.T) {
	a := owitest.MakeROM(0x10, 1)
	b := owitest.MakeROM(0x10, 2)
	c := owitest.MakeROM(0x10, 3)
	bus := &owitest.Bus{Devices: []*owitest.Device{
		{ROM: a}, {ROM: b}, {ROM: c},
	}}

	var code owi.ROM
	last, err := owi.SearchROM(bus, 0x10, &code, owi.First)
	if err != nil {
		t.Fatal(err)
	}
	if code != b || last != 8 {
		t.Fatalf("first pass: got %s at %d", code, last)
	}
	if last, err = owi.SearchROM(bus, 0x10, &code, last); err != nil {
		t.Fatal(err)
	}
	if code != a || last != 9 {
		t.Fatalf("second pass: got %s at %d", code, last)
	}
	if last, err = owi.SearchROM(bus, 0x10, &code, last); err != nil {
		t.Fatal(err)
	}
	if code != c || last != owi.Last {
		t.Fatalf("third pass: got %s at %d", code, last)
	}
}

func TestSearchAll(t *testing.T) {
	roms := []owi.ROM{
		owitest.MakeROM(0x28, 0x740000070e41),
		owitest.MakeROM(0x28, 0x130000070c99),
		owitest.MakeROM(0x10, 0x000000000001),
		owitest.MakeROM(0x3a, 0xffffffffffff),
		owitest.MakeROM(0x28, 0x55aa55aa55aa),
	}
	bus := &owitest.Bus{}
	for i := range roms {
		bus.Devices = append(bus.Devices, &owitest.Device{ROM: roms[i]})
	}

	found, err := owi.SearchAll(bus, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != len(roms) {
		t.Fatalf("found %d devices, expected %d", len(found), len(roms))
	}
	seen := map[owi.ROM]bool{}
	for _, f := range found {
		if seen[f] {
			t.Errorf("%s found twice", f)
		}
		seen[f] = true
	}
	for _, r := range roms {
		if !seen[r] {
			t.Errorf("%s not found", r)
		}
	}
	// One reset per pass, one pass per device; never more than the 64
	// positions of the identity.
	if bus.Resets > 64 {
		t.Errorf("search took %d passes", bus.Resets)
	}
}

func TestSearchAll_family(t *testing.T) {
	bus := &owitest.Bus{Devices: []*owitest.Device{
		{ROM: owitest.MakeROM(0x28, 0x740000070e41)},
		{ROM: owitest.MakeROM(0x10, 0x000000000007)},
		{ROM: owitest.MakeROM(0x28, 0x130000070c99)},
	}}
	found, err := owi.SearchAll(bus, 0x28)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("found %d devices, expected 2", len(found))
	}
	for _, f := range found {
		if f.Family() != 0x28 {
			t.Errorf("family filter leaked %s", f)
		}
	}
}

func TestAlarmSearch(t *testing.T) {
	alarming := owitest.MakeROM(0x28, 0x130000070c99)
	bus := &owitest.Bus{Devices: []*owitest.Device{
		{ROM: owitest.MakeROM(0x28, 0x740000070e41)},
		{ROM: alarming, Alarm: true},
		{ROM: owitest.MakeROM(0x10, 0x000000000007)},
	}}
	var code owi.ROM
	last, err := owi.AlarmSearch(bus, &code, owi.First)
	if err != nil {
		t.Fatal(err)
	}
	if code != alarming || last != owi.Last {
		t.Fatalf("got %s at %d", code, last)
	}
}

// TestAlarmSearch_none checks the collision abort: with nobody answering
// the first position reads 11 and the pass stops without further traffic.
func TestAlarmSearch_none(t *testing.T) {
	bus := &owitest.Bus{Devices: []*owitest.Device{
		{ROM: owitest.MakeROM(0x28, 0x740000070e41)},
	}}
	var code owi.ROM
	if _, err := owi.AlarmSearch(bus, &code, owi.First); err == nil {
		t.Fatal("expected an error")
	}
	if bus.BitsRead != 2 {
		t.Errorf("read %d bits after the abort position", bus.BitsRead-2)
	}
	if bus.BitsWritten != 8 {
		t.Errorf("wrote %d bits beyond the command", bus.BitsWritten-8)
	}
}

// TestNoDevice checks that a failed reset aborts every command before any
// bus traffic.
func TestNoDevice(t *testing.T) {
	bus := &owitest.Bus{NoPresence: true}
	var code owi.ROM
	if _, err := owi.SearchROM(bus, 0, &code, owi.First); err == nil {
		t.Error("search: expected an error")
	}
	if err := owi.ReadROM(bus, &code); err == nil {
		t.Error("read rom: expected an error")
	}
	if err := owi.MatchROM(bus, code); err == nil {
		t.Error("match rom: expected an error")
	}
	if err := owi.SkipROM(bus); err == nil {
		t.Error("skip rom: expected an error")
	}
	if bus.BitsRead != 0 || bus.BitsWritten != 0 {
		t.Errorf("bus traffic after failed reset: %d read, %d written",
			bus.BitsRead, bus.BitsWritten)
	}
	if bus.Resets != 4 {
		t.Errorf("expected 4 resets, got %d", bus.Resets)
	}
}

func TestReadROM(t *testing.T) {
	rom := owitest.MakeROM(0x28, 0x740000070e41)
	bus := &owitest.Bus{Devices: []*owitest.Device{{ROM: rom}}}
	var code owi.ROM
	if err := owi.ReadROM(bus, &code); err != nil {
		t.Fatal(err)
	}
	if code != rom {
		t.Fatalf("got %s, expected %s", code, rom)
	}
}
