// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/imu"
)

// SerialSource reads $xxMAG sentences from a byte stream. Lines that are
// empty, not sentences, or fail to parse are skipped.
type SerialSource struct {
	r       *bufio.Reader
	Skipped int
}

// NewSerialSource wraps r.
func NewSerialSource(r io.Reader) *SerialSource {
	return &SerialSource{r: bufio.NewReader(r)}
}

// ReadMag implements imu.MagSource. It returns the reader's error (io.EOF
// at end of stream) once no further line is available.
func (s *SerialSource) ReadMag() (imu.MagRaw, error) {
	for {
		line, err := s.r.ReadString('\n')
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "$") {
			raw, perr := ParseMagSentence(line)
			if perr == nil {
				return raw, nil
			}
			s.Skipped++
		} else if line != "" {
			s.Skipped++
		}
		if err != nil {
			return imu.MagRaw{}, err
		}
	}
}

// OpenSerialSource opens SERIAL_PORT at SERIAL_BAUD_RATE (8N1).
// The caller closes the returned port.
func OpenSerialSource(cfg *config.Config) (*SerialSource, io.Closer, error) {
	opts := serial.OpenOptions{
		PortName:              cfg.SerialPort,
		BaudRate:              uint(cfg.SerialBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("serial: open %s: %w", cfg.SerialPort, err)
	}
	log.Printf("serial: port opened on %s at %d baud", opts.PortName, opts.BaudRate)
	return NewSerialSource(port), port, nil
}
