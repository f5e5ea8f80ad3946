// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owi

// CRC8 computes the Dallas/Maxim CRC (x⁸+x⁵+x⁴+1, bit reversed) of buf and
// returns the calculated value. A block followed by its own checksum byte
// computes to zero.
func CRC8(buf []byte) byte {
	var crc byte
	for _, v := range buf {
		crc = UpdateCRC8(crc, v, 8)
	}
	return crc
}

// UpdateCRC8 folds the low bits (1..8) of value into the running crc,
// LSB-first. Bus implementations use it to maintain the integrity
// accumulator as a side effect of ReadBits.
func UpdateCRC8(crc, value byte, bits int) byte {
	for ; bits > 0; bits-- {
		mix := (crc ^ value) & 1
		crc >>= 1
		if mix != 0 {
			crc ^= 0x8c
		}
		value >>= 1
	}
	return crc
}
