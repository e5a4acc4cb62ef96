package imu

import (
	"math"
	"time"

	"github.com/relabs-tech/magcal/internal/magcal"
)

// MagRaw is one magnetometer reading as published on the mag topic.
// Mx, My, Mz are in µT×10 to match the rig's int16 convention.
type MagRaw struct {
	Source string `json:"source,omitempty"` // "hmc", "serial", ...

	Mx int16 `json:"mx"`
	My int16 `json:"my"`
	Mz int16 `json:"mz"`

	Norm float64 `json:"norm"` // magnitude in µT
	Time string  `json:"time"` // RFC3339
}

// NewMagRaw builds a reading from µT×10 counts, filling Norm and Time.
func NewMagRaw(source string, x, y, z int16, at time.Time) MagRaw {
	r := MagRaw{Source: source, Mx: x, My: y, Mz: z, Time: at.UTC().Format(time.RFC3339)}
	r.Norm = r.Sample().Norm()
	return r
}

// FromMicroTesla converts a float reading in µT, saturating at the int16 range.
func FromMicroTesla(source string, s magcal.Sample, at time.Time) MagRaw {
	return NewMagRaw(source, toCounts(s.X), toCounts(s.Y), toCounts(s.Z), at)
}

// Sample returns the reading in µT.
func (r MagRaw) Sample() magcal.Sample {
	return magcal.Sample{
		X: float64(r.Mx) / 10.0,
		Y: float64(r.My) / 10.0,
		Z: float64(r.Mz) / 10.0,
	}
}

func toCounts(ut float64) int16 {
	v := math.Round(ut * 10)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// MagSource yields magnetometer readings one at a time. ReadMag blocks until
// a reading is available.
type MagSource interface {
	ReadMag() (MagRaw, error)
}
