// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/imu"
	"github.com/relabs-tech/magcal/internal/magcal"
)

var (
	testOffset = magcal.Sample{X: 18.5, Y: -7.25, Z: 31}
	testScale  = [3]float64{1.12, 0.91, 1.03}
)

const testField = 48.0

// ellipsoidSource yields readings on an axis-aligned ellipsoid, quantized
// to the µT×10 wire format. n <= 0 means unlimited.
type ellipsoidSource struct {
	mu  sync.Mutex
	rng *rand.Rand
	n   int
	out int
}

func newEllipsoidSource(seed uint64, n int) *ellipsoidSource {
	return &ellipsoidSource{rng: rand.New(rand.NewPCG(seed, seed+1)), n: n}
}

func (e *ellipsoidSource) next() magcal.Sample {
	for {
		d := magcal.Sample{X: e.rng.NormFloat64(), Y: e.rng.NormFloat64(), Z: e.rng.NormFloat64()}
		n := d.Norm()
		if n < 1e-6 {
			continue
		}
		return magcal.Sample{
			X: testField*d.X/n/testScale[0] + testOffset.X,
			Y: testField*d.Y/n/testScale[1] + testOffset.Y,
			Z: testField*d.Z/n/testScale[2] + testOffset.Z,
		}
	}
}

func (e *ellipsoidSource) ReadMag() (imu.MagRaw, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.n > 0 && e.out >= e.n {
		return imu.MagRaw{}, io.EOF
	}
	e.out++
	return imu.FromMicroTesla("test", e.next(), time.Unix(1700000000, 0)), nil
}

// errSource always fails.
type errSource struct{ err error }

func (e errSource) ReadMag() (imu.MagRaw, error) { return imu.MagRaw{}, e.err }

// blockingSource never yields until closed.
type blockingSource struct {
	done chan struct{}
	once sync.Once
}

func newBlockingSource() *blockingSource { return &blockingSource{done: make(chan struct{})} }

func (b *blockingSource) ReadMag() (imu.MagRaw, error) {
	<-b.done
	return imu.MagRaw{}, io.EOF
}

func (b *blockingSource) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

// stallingSource yields n ellipsoid readings, then blocks until closed.
type stallingSource struct {
	*ellipsoidSource
	stall *blockingSource
}

func newStallingSource(seed uint64, n int) *stallingSource {
	return &stallingSource{ellipsoidSource: newEllipsoidSource(seed, n), stall: newBlockingSource()}
}

func (s *stallingSource) ReadMag() (imu.MagRaw, error) {
	raw, err := s.ellipsoidSource.ReadMag()
	if errors.Is(err, io.EOF) {
		return s.stall.ReadMag()
	}
	return raw, err
}

func (s *stallingSource) Close() error { return s.stall.Close() }

// chanSource hands out whatever is sent on its channel.
type chanSource chan imu.MagRaw

func (c chanSource) ReadMag() (imu.MagRaw, error) {
	raw, ok := <-c
	if !ok {
		return imu.MagRaw{}, io.EOF
	}
	return raw, nil
}

var errSensor = errors.New("sensor unplugged")

// doneToken is an mqtt.Token that is already complete.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	Topic    string
	Retained bool
	Payload  []byte
}

// fakePublisher records Publish calls.
type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{Topic: topic, Retained: retained, Payload: payload.([]byte)})
	return doneToken{err: f.err}
}

func (f *fakePublisher) on(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.msgs {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// fakeMessage is an mqtt.Message with a fixed topic and payload.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.MQTTBroker = "tcp://localhost:1883"
	cfg.CalMinSamples = 100
	cfg.CalMaxSamples = 1500
	cfg.CalDurationSec = 30
	cfg.CalProgressEvery = 100
	cfg.CalOutputDir = dir
	return cfg
}
