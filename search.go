// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owi

// SearchROM discovers one device identity per call.
//
// The search is resumable: pass First and a zeroed code buffer to start,
// then feed the returned position and the unchanged buffer back in until
// Last is returned. The bits of code below the previous return value must
// be preserved between calls since the walk replays them to reproduce the
// path chosen so far.
//
// A non-zero family keeps re-issuing search passes internally until a
// device of that family is found or the enumeration completes; the code
// left in the buffer on Last is the final device visited and need not match
// the family.
func SearchROM(b Bus, family byte, code *ROM, last Pos) (Pos, error) {
	for {
		if !b.Reset() {
			return First, errNoPresence
		}
		b.WriteBits(cmdSearchROM, 8)
		var err error
		if last, err = search(b, code, last); err != nil {
			return First, err
		}
		if last == Last || family == 0 || code[0] == family {
			return last, nil
		}
	}
}

// AlarmSearch runs a single search pass restricted to devices currently in
// an alarm condition. Resumption works as for SearchROM; there is no family
// filter.
func AlarmSearch(b Bus, code *ROM, last Pos) (Pos, error) {
	if !b.Reset() {
		return First, errNoPresence
	}
	b.WriteBits(cmdAlarmSearch, 8)
	return search(b, code, last)
}

// SearchAll enumerates every device on the bus, or every device of the
// given family if family is non-zero, and returns their identities in
// discovery order. Each identity is checksum validated.
func SearchAll(b Bus, family byte) ([]ROM, error) {
	var found []ROM
	var code ROM
	last := First
	for {
		var err error
		if last, err = SearchROM(b, family, &code, last); err != nil {
			return found, err
		}
		if family == 0 || code.Family() == family {
			if !code.Valid() {
				return found, errCRC
			}
			found = append(found, code)
		}
		if last == Last {
			return found, nil
		}
	}
}

// search walks the 64 address bits once, resolving at most one discrepancy
// beyond the path already fixed by earlier passes.
//
// At every position the bus answers two bits: the wired-AND of all
// responding devices' address bit, then of its complement. The master
// writes the chosen direction back and devices holding the other value stay
// silent until the next reset.
func search(b Bus, code *ROM, last Pos) (Pos, error) {
	pos := Pos(0)
	next := Last
	for i := 0; i < 8; i++ {
		var data byte
		for j := uint(0); j < 8; j++ {
			data >>= 1
			switch b.ReadBits(2) {
			case 0x0:
				// Devices disagree at this position.
				switch {
				case pos == last:
					// The branch this pass resolves: take the 1 side.
					// Shallower discrepancies found from here on are new.
					b.WriteBits(1, 1)
					data |= 0x80
					last = First
				case pos > last:
					// Unresolved discrepancy: take the 0 side and queue
					// the 1 side. The deepest occurrence wins.
					b.WriteBits(0, 1)
					next = pos
				case code[i]&(1<<j) != 0:
					// Already resolved on an earlier pass: replay it.
					b.WriteBits(1, 1)
					data |= 0x80
				default:
					// Replayed 0: its 1 side is still pending.
					b.WriteBits(0, 1)
					next = pos
				}
			case 0x1:
				// Every responding device holds 1.
				b.WriteBits(1, 1)
				data |= 0x80
			case 0x2:
				// Every responding device holds 0.
				b.WriteBits(0, 1)
			case 0x3:
				// Nobody answered.
				return First, errNoResponse
			}
			pos++
		}
		code[i] = data
	}
	return next, nil
}
