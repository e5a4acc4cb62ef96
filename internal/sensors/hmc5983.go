// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"errors"
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/imu"
)

// HMC5983 register map.
const (
	hmcRegCRA    = 0x00
	hmcRegCRB    = 0x01
	hmcRegMode   = 0x02
	hmcRegData   = 0x03 // X MSB, X LSB, Z MSB, Z LSB, Y MSB, Y LSB
	hmcRegStatus = 0x09
	hmcRegIDA    = 0x0A

	hmcStatusReady = 0x01
	hmcModeCont    = 0x00
	hmcModeSingle  = 0x01

	// Output register value reported on ADC overflow.
	hmcOverflow = -4096
)

// HMCDefaultAddr is the fixed I2C address of the HMC5983.
const HMCDefaultAddr = 0x1E

// Typical LSB/Gauss per gain code (datasheet table 9).
var (
	hmcGainXY = [8]int{1370, 1090, 820, 660, 440, 390, 330, 230}
	hmcGainZ  = [8]int{1330, 980, 660, 600, 400, 355, 295, 205}
)

var (
	// ErrHMCOverflow is returned when an axis saturated the ADC.
	ErrHMCOverflow = errors.New("hmc: measurement overflow")
	// ErrHMCNotReady is returned when a single-shot conversion did not complete.
	ErrHMCNotReady = errors.New("hmc: data not ready")
	// ErrHMCBadID is returned when the identity registers do not read "H43".
	ErrHMCBadID = errors.New("hmc: unexpected identity")
)

// HMCOpts configures the HMC5983.
type HMCOpts struct {
	Addr       uint16
	ODRHz      int    // 3, 7, 15, 30 or 75
	AvgSamples int    // 1, 2, 4 or 8
	GainCode   byte   // 0..7
	Mode       string // "continuous" or "single"
}

// HMCOptsFromConfig maps the HMC_* keys onto driver options.
func HMCOptsFromConfig(cfg *config.Config) HMCOpts {
	return HMCOpts{
		Addr:       cfg.HMCI2CAddr,
		ODRHz:      cfg.HMCODRHz,
		AvgSamples: cfg.HMCAvgSamples,
		GainCode:   cfg.HMCGainCode,
		Mode:       cfg.HMCMode,
	}
}

// HMC5983 is a 3-axis magnetometer on an I2C bus.
// Readings are reported in µT×10.
type HMC5983 struct {
	dev        i2c.Dev
	single     bool
	lsbPerGaXY int
	lsbPerGaZ  int

	pollInterval time.Duration
	pollTries    int
}

// NewHMC5983 writes the configuration registers and returns the device.
func NewHMC5983(bus i2c.Bus, opts HMCOpts) (*HMC5983, error) {
	addr := opts.Addr
	if addr == 0 {
		addr = HMCDefaultAddr
	}
	gc := opts.GainCode
	if gc > 7 {
		gc = 1
	}
	d := &HMC5983{
		dev:          i2c.Dev{Addr: addr, Bus: bus},
		single:       opts.Mode == "single",
		lsbPerGaXY:   hmcGainXY[gc],
		lsbPerGaZ:    hmcGainZ[gc],
		pollInterval: time.Millisecond,
		pollTries:    50,
	}

	if err := d.writeReg(hmcRegCRA, hmcCRA(opts.AvgSamples, opts.ODRHz)); err != nil {
		return nil, fmt.Errorf("hmc: write CRA: %w", err)
	}
	if err := d.writeReg(hmcRegCRB, gc<<5); err != nil {
		return nil, fmt.Errorf("hmc: write CRB: %w", err)
	}
	mode := byte(hmcModeCont)
	if d.single {
		// idle until a reading is requested
		mode = 0x03
	}
	if err := d.writeReg(hmcRegMode, mode); err != nil {
		return nil, fmt.Errorf("hmc: write MODE: %w", err)
	}
	return d, nil
}

// hmcCRA packs averaging (bits 6..5) and output rate (bits 4..2) with
// normal bias and the temperature sensor off.
func hmcCRA(avg, odrHz int) byte {
	var cra byte
	switch avg {
	case 8:
		cra |= 0b11 << 5
	case 4:
		cra |= 0b10 << 5
	case 2:
		cra |= 0b01 << 5
	}
	switch odrHz {
	case 75:
		cra |= 0b110 << 2
	case 30:
		cra |= 0b101 << 2
	case 7:
		cra |= 0b011 << 2
	case 3:
		cra |= 0b010 << 2
	default: // 15 Hz
		cra |= 0b100 << 2
	}
	return cra
}

// ID reads the identity registers and checks for "H43".
func (d *HMC5983) ID() (string, error) {
	buf := make([]byte, 3)
	if err := d.dev.Tx([]byte{hmcRegIDA}, buf); err != nil {
		return "", fmt.Errorf("hmc: read ID: %w", err)
	}
	id := string(buf)
	if id != "H43" {
		return id, fmt.Errorf("%w %q", ErrHMCBadID, id)
	}
	return id, nil
}

// SenseRaw returns X, Y, Z in raw ADC counts. In single mode it triggers a
// conversion and waits for the ready bit first.
func (d *HMC5983) SenseRaw() (x, y, z int16, err error) {
	if d.single {
		if err := d.trigger(); err != nil {
			return 0, 0, 0, err
		}
	}
	data := make([]byte, 6)
	if err := d.dev.Tx([]byte{hmcRegData}, data); err != nil {
		return 0, 0, 0, fmt.Errorf("hmc: read data: %w", err)
	}
	x = int16(data[0])<<8 | int16(data[1])
	z = int16(data[2])<<8 | int16(data[3])
	y = int16(data[4])<<8 | int16(data[5])
	if x == hmcOverflow || y == hmcOverflow || z == hmcOverflow {
		return x, y, z, ErrHMCOverflow
	}
	return x, y, z, nil
}

// Sense returns X, Y, Z in µT×10.
func (d *HMC5983) Sense() (x, y, z int16, err error) {
	rx, ry, rz, err := d.SenseRaw()
	if err != nil {
		return 0, 0, 0, err
	}
	return countsToMicroTesla10(rx, d.lsbPerGaXY),
		countsToMicroTesla10(ry, d.lsbPerGaXY),
		countsToMicroTesla10(rz, d.lsbPerGaZ), nil
}

// ReadMag implements imu.MagSource.
func (d *HMC5983) ReadMag() (imu.MagRaw, error) {
	x, y, z, err := d.Sense()
	if err != nil {
		return imu.MagRaw{}, err
	}
	return imu.NewMagRaw("hmc", x, y, z, time.Now()), nil
}

func (d *HMC5983) trigger() error {
	if err := d.writeReg(hmcRegMode, hmcModeSingle); err != nil {
		return fmt.Errorf("hmc: trigger: %w", err)
	}
	status := make([]byte, 1)
	for i := 0; i < d.pollTries; i++ {
		if err := d.dev.Tx([]byte{hmcRegStatus}, status); err != nil {
			return fmt.Errorf("hmc: read status: %w", err)
		}
		if status[0]&hmcStatusReady != 0 {
			return nil
		}
		time.Sleep(d.pollInterval)
	}
	return ErrHMCNotReady
}

func (d *HMC5983) writeReg(reg, val byte) error {
	return d.dev.Tx([]byte{reg, val}, nil)
}

// countsToMicroTesla10 converts counts to µT×10: 1 Gauss = 100 µT.
func countsToMicroTesla10(counts int16, lsbPerGauss int) int16 {
	return int16(float64(counts) / float64(lsbPerGauss) * 1000.0)
}

// OpenHMC5983 initializes the periph host, opens HMC_I2C_BUS and configures
// the sensor. The caller closes the returned bus.
func OpenHMC5983(cfg *config.Config) (*HMC5983, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("hmc: periph host init failed: %w", err)
	}
	// empty name selects the first registered bus
	bus, err := i2creg.Open(cfg.HMCI2CBus)
	if err != nil {
		return nil, nil, fmt.Errorf("hmc: i2c open failed on bus %q: %w", cfg.HMCI2CBus, err)
	}
	dev, err := NewHMC5983(bus, HMCOptsFromConfig(cfg))
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	id, err := dev.ID()
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	log.Printf("hmc: ID=%q on %s (addr=0x%02X)", id, bus, dev.dev.Addr)
	return dev, bus, nil
}
