// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owi

import "testing"

func TestCRC8(t *testing.T) {
	var tests = []struct {
		bytes  []byte
		result byte
	}{
		// The worked example from Maxim application note 27.
		{bytes: []byte{0x02, 0x1c, 0xb8, 0x01, 0x00, 0x00, 0x00}, result: 0xa2},
		{bytes: []byte{0x02, 0x1c, 0xb8, 0x01, 0x00, 0x00, 0x00, 0xa2}, result: 0x00},
		{bytes: nil, result: 0x00},
	}
	for _, test := range tests {
		res := CRC8(test.bytes)
		if res != test.result {
			t.Errorf("CRC8(%#v)!=%#02x received %#02x", test.bytes, test.result, res)
		}
	}
}

func TestUpdateCRC8_partial(t *testing.T) {
	// Feeding a byte in two bit groups must match feeding it whole.
	whole := UpdateCRC8(0, 0xb8, 8)
	split := UpdateCRC8(UpdateCRC8(0, 0xb8, 3), 0xb8>>3, 5)
	if whole != split {
		t.Errorf("expected %#02x, got %#02x", whole, split)
	}
}
