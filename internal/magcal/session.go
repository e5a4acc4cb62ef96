// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package magcal

import (
	"github.com/relabs-tech/magcal/internal/moments"
)

// Session accumulates magnetometer samples for a single ellipsoid fit.
//
// A session is Accumulating until Finalize is called, after which it is
// Finalized: further samples are dropped and Finalize returns ErrFinalized.
// Memory use is constant in the number of samples.
//
// Session is not safe for concurrent use; callers that feed it from several
// goroutines must serialize access.
type Session struct {
	count     int
	sumNorms  float64
	gram      *moments.Accumulator
	opts      Options
	finalized bool
	row       [DesignLen]float64
}

// NewSession returns an empty session using DefaultOptions.
func NewSession() *Session {
	return NewSessionWithOptions(DefaultOptions())
}

// NewSessionWithOptions returns an empty session using opts for the solve.
func NewSessionWithOptions(opts Options) *Session {
	return &Session{
		gram: moments.New(DesignLen),
		opts: opts.withDefaults(),
	}
}

// Ingest adds one raw reading. Readings are accepted as-is.
func (s *Session) Ingest(sample Sample) {
	if s.finalized {
		return
	}
	s.count++
	s.sumNorms += sample.Norm()
	s.row = DesignVector(sample)
	s.gram.Feed(s.row[:])
}

// Count returns the number of ingested samples.
func (s *Session) Count() int { return s.count }

// MeanNorm returns the mean field magnitude seen so far. ok is false when no
// samples were ingested.
func (s *Session) MeanNorm() (mean float64, ok bool) {
	if s.count == 0 {
		return 0, false
	}
	return s.sumNorms / float64(s.count), true
}

// Finalized reports whether Finalize has been called.
func (s *Session) Finalized() bool { return s.finalized }

// Clone returns an independent copy of an accumulating session.
func (s *Session) Clone() *Session {
	return &Session{
		count:     s.count,
		sumNorms:  s.sumNorms,
		gram:      s.gram.Clone(),
		opts:      s.opts,
		finalized: s.finalized,
	}
}

// Finalize solves the ellipsoid fit and consumes the session. Whatever the
// outcome, the session cannot be finalized again.
func (s *Session) Finalize() (Calibration, error) {
	if s.finalized {
		return Calibration{}, ErrFinalized
	}
	s.finalized = true
	cal, err := solve(s.gram.Matrix(), s.count, s.sumNorms, s.opts)
	// the session holds no further use; drop the matrix
	s.gram = moments.New(DesignLen)
	return cal, err
}

// Peek runs the same solve as Finalize on the current state without
// consuming the session, so more samples can still be ingested.
func (s *Session) Peek() (Calibration, error) {
	if s.finalized {
		return Calibration{}, ErrFinalized
	}
	return solve(s.gram.Matrix(), s.count, s.sumNorms, s.opts)
}
