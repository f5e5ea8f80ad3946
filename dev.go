// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owi

// Dev is a device on a 1-Wire bus.
//
// It associates an identity with the bus it lives on so that addressed
// transactions can be issued without repeating the rom code. It is a value
// type holding a non-owning bus reference; copying it is cheap and it does
// not need to be closed.
type Dev struct {
	Bus Bus
	ROM ROM
}

func (d *Dev) String() string {
	return d.ROM.String()
}

// Select addresses the device. The next function command written on the
// bus reaches only this device.
func (d *Dev) Select() error {
	return MatchROM(d.Bus, d.ROM)
}

// Tx addresses the device, writes the function command bytes in w and, if r
// is not empty, reads len(r) bytes back with the integrity check. The last
// byte of r receives the checksum the device transmitted.
func (d *Dev) Tx(w, r []byte) error {
	if err := MatchROM(d.Bus, d.ROM); err != nil {
		return err
	}
	for _, v := range w {
		d.Bus.WriteBits(v, 8)
	}
	if len(r) != 0 && !ReadBlock(d.Bus, r) {
		return errCRC
	}
	return nil
}
