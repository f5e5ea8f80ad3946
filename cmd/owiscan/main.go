// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// owiscan lists the devices on a 1-Wire bus reached through a DS2482/DS2483
// I²C bridge or a bit-banged GPIO pin, and optionally reads the temperature
// of every DS18B20 family sensor found.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/jazzgil/owi"
	"github.com/jazzgil/owi/bitbang"
	"github.com/jazzgil/owi/ds18b20"
	"github.com/jazzgil/owi/ds2482"
)

func mainImpl() error {
	i2cName := flag.String("i2c", "", "I²C bus with a DS2482/DS2483 bridge (\"\" for none)")
	i2cAddr := flag.Uint("addr", 0x18, "I²C address of the bridge")
	pinName := flag.String("pin", "", "GPIO pin carrying a bit-banged bus")
	family := flag.Uint("family", 0, "only list devices of this family code")
	alarm := flag.Bool("alarm", false, "only list devices in alarm state")
	temp := flag.Bool("temp", false, "read temperatures from DS18B20 family devices")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}
	if *family > 0xff {
		return errors.New("-family must be a byte")
	}

	if _, err := host.Init(); err != nil {
		return err
	}

	var bus owi.Bus
	switch {
	case *i2cName != "" && *pinName != "":
		return errors.New("-i2c and -pin are exclusive")
	case *i2cName != "":
		ib, err := i2creg.Open(*i2cName)
		if err != nil {
			return err
		}
		defer ib.Close()
		d, err := ds2482.New(ib, uint16(*i2cAddr), &ds2482.DefaultOpts)
		if err != nil {
			return err
		}
		bus = d
	case *pinName != "":
		p := gpioreg.ByName(*pinName)
		if p == nil {
			return fmt.Errorf("no such pin %q", *pinName)
		}
		d, err := bitbang.New(p, nil)
		if err != nil {
			return err
		}
		bus = d
	default:
		return errors.New("specify -i2c or -pin")
	}

	stdout := colorable.NewColorableStdout()
	var codes []owi.ROM
	if *alarm {
		var code owi.ROM
		last := owi.First
		for {
			var err error
			if last, err = owi.AlarmSearch(bus, &code, last); err != nil {
				return err
			}
			codes = append(codes, code)
			if last == owi.Last {
				break
			}
		}
	} else {
		var err error
		if codes, err = owi.SearchAll(bus, byte(*family)); err != nil {
			return err
		}
	}

	for _, code := range codes {
		if *temp && isThermometer(code) {
			printTemp(stdout, bus, code)
			continue
		}
		fmt.Fprintln(stdout, code)
	}
	if len(codes) == 0 {
		fmt.Fprintln(stdout, "no device found")
	}
	return nil
}

func isThermometer(code owi.ROM) bool {
	f := ds18b20.Family(code.Family())
	return f == ds18b20.DS18B20 || f == ds18b20.DS18S20
}

func printTemp(w io.Writer, bus owi.Bus, code owi.ROM) {
	d, err := ds18b20.New(bus, code, 10)
	if err != nil {
		fmt.Fprintf(w, "%s  %v\n", code, err)
		return
	}
	e := physic.Env{}
	if err := d.Sense(&e); err != nil {
		fmt.Fprintf(w, "%s  %v\n", code, err)
		return
	}
	fmt.Fprintf(w, "%s  %s%s\033[0m\n", code, ansi256.Default.Block(tempColor(e.Temperature)), e.Temperature)
}

// tempColor maps -10°C..40°C onto a blue to red scale.
func tempColor(t physic.Temperature) color.NRGBA {
	f := (t.Celsius() + 10) / 50
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return color.NRGBA{R: byte(255 * f), B: byte(255 * (1 - f)), A: 255}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "owiscan: %s.\n", err)
		os.Exit(1)
	}
}
