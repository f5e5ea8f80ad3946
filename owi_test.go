// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owi

import "testing"

// The sample identity worked through in Maxim application note 27:
// family 0x02, serial 0x00000001b81c, CRC 0xa2.
var sampleROM = ROM{0x02, 0x1c, 0xb8, 0x01, 0x00, 0x00, 0x00, 0xa2}

func TestROM(t *testing.T) {
	if f := sampleROM.Family(); f != 0x02 {
		t.Errorf("family %#02x", f)
	}
	if s := sampleROM.Serial(); s != 0x00000001b81c {
		t.Errorf("serial %#012x", s)
	}
	if c := sampleROM.Checksum(); c != 0xa2 {
		t.Errorf("checksum %#02x", c)
	}
	if !sampleROM.Valid() {
		t.Error("expected valid checksum")
	}
	bad := sampleROM
	bad[3] ^= 0x10
	if bad.Valid() {
		t.Error("expected invalid checksum")
	}
}

func TestROM_String(t *testing.T) {
	if s := sampleROM.String(); s != "02.00000001b81c.a2" {
		t.Errorf("got %q", s)
	}
}
