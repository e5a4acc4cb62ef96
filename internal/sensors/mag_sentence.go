// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/relabs-tech/magcal/internal/imu"
	"github.com/relabs-tech/magcal/internal/magcal"
)

// TypeMAG is the sentence type of a magnetometer reading:
//
//	$MCMAG,<x µT>,<y µT>,<z µT>*hh
const TypeMAG = "MAG"

// MAG is a parsed magnetometer sentence.
type MAG struct {
	nmea.BaseSentence
	X float64
	Y float64
	Z float64
}

func init() {
	if err := nmea.RegisterParser(TypeMAG, parseMAG); err != nil {
		panic(fmt.Sprintf("sensors: register %s parser: %v", TypeMAG, err))
	}
}

func parseMAG(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	p.AssertType(TypeMAG)
	if len(s.Fields) != 3 {
		return nil, fmt.Errorf("nmea: %s expects 3 fields, got %d", TypeMAG, len(s.Fields))
	}
	m := MAG{
		BaseSentence: s,
		X:            p.Float64(0, "x"),
		Y:            p.Float64(1, "y"),
		Z:            p.Float64(2, "z"),
	}
	return m, p.Err()
}

// ParseMagSentence parses one $xxMAG line into a reading stamped now.
func ParseMagSentence(line string) (imu.MagRaw, error) {
	s, err := nmea.Parse(line)
	if err != nil {
		return imu.MagRaw{}, err
	}
	m, ok := s.(MAG)
	if !ok {
		return imu.MagRaw{}, fmt.Errorf("serial: unexpected sentence type %q", s.DataType())
	}
	return imu.FromMicroTesla("serial", magcal.Sample{X: m.X, Y: m.Y, Z: m.Z}, time.Now()), nil
}
