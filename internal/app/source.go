// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/imu"
	"github.com/relabs-tech/magcal/internal/sensors"
)

// maxReadErrors aborts a collection after this many consecutive read errors.
const maxReadErrors = 10

// pacedSource limits how often the wrapped source is read.
type pacedSource struct {
	src      imu.MagSource
	interval time.Duration
	last     time.Time
}

func (p *pacedSource) ReadMag() (imu.MagRaw, error) {
	if wait := p.interval - time.Since(p.last); wait > 0 && !p.last.IsZero() {
		time.Sleep(wait)
	}
	p.last = time.Now()
	return p.src.ReadMag()
}

// MQTTSource delivers readings received on the mag topic.
type MQTTSource struct {
	readings chan imu.MagRaw
	done     chan struct{}
	once     sync.Once
}

// NewMQTTSource returns a source with room for buffer pending readings.
// Readings arriving while the buffer is full are dropped.
func NewMQTTSource(buffer int) *MQTTSource {
	return &MQTTSource{
		readings: make(chan imu.MagRaw, buffer),
		done:     make(chan struct{}),
	}
}

// Handle is the mqtt.MessageHandler for the mag topic.
func (s *MQTTSource) Handle(_ mqtt.Client, msg mqtt.Message) {
	var raw imu.MagRaw
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		log.Printf("calibrator: MQTT payload unmarshal error on %s: %v", msg.Topic(), err)
		return
	}
	if raw.Source == "" {
		raw.Source = msg.Topic()
	}
	select {
	case s.readings <- raw:
	case <-s.done:
	default:
	}
}

// ReadMag blocks for the next reading. It returns io.EOF after Close.
func (s *MQTTSource) ReadMag() (imu.MagRaw, error) {
	select {
	case raw := <-s.readings:
		return raw, nil
	case <-s.done:
		return imu.MagRaw{}, io.EOF
	}
}

// Close unblocks readers.
func (s *MQTTSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// SharedSource serializes access to a source that several collections may
// read in turn. A single goroutine reads the wrapped source on demand.
type SharedSource struct {
	src  imu.MagSource
	ch   chan reading
	done chan struct{}
	once sync.Once
}

// NewSharedSource starts the reader goroutine for src.
func NewSharedSource(src imu.MagSource) *SharedSource {
	s := &SharedSource{src: src, ch: make(chan reading), done: make(chan struct{})}
	go s.pump()
	return s
}

func (s *SharedSource) pump() {
	for {
		raw, err := s.src.ReadMag()
		select {
		case s.ch <- reading{raw: raw, err: err}:
		case <-s.done:
			return
		}
		if errors.Is(err, io.EOF) {
			return
		}
	}
}

// ReadMag implements imu.MagSource. It returns io.EOF once the wrapped
// source ended or Close was called.
func (s *SharedSource) ReadMag() (imu.MagRaw, error) {
	return s.ReadMagContext(context.Background())
}

// ReadMagContext is ReadMag that gives up when ctx is done. A reading is
// never taken from the source on behalf of a cancelled caller.
func (s *SharedSource) ReadMagContext(ctx context.Context) (imu.MagRaw, error) {
	if err := ctx.Err(); err != nil {
		return imu.MagRaw{}, err
	}
	select {
	case r := <-s.ch:
		if errors.Is(r.err, io.EOF) {
			s.Close()
		}
		return r.raw, r.err
	case <-s.done:
		return imu.MagRaw{}, io.EOF
	case <-ctx.Done():
		return imu.MagRaw{}, ctx.Err()
	}
}

// contextSource is a source whose reads can be abandoned.
type contextSource interface {
	ReadMagContext(ctx context.Context) (imu.MagRaw, error)
}

// Close stops the reader goroutine. The wrapped source is closed when it
// implements io.Closer.
func (s *SharedSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if c, ok := s.src.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// ConnectMQTT connects a client with the given ID to MQTT_BROKER.
func ConnectMQTT(cfg *config.Config, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().AddBroker(cfg.MQTTBroker).SetClientID(clientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.MQTTBroker, token.Error())
	}
	log.Printf("connected to MQTT broker at %s as %s", cfg.MQTTBroker, clientID)
	return client, nil
}

// OpenSource opens the sample source named by CAL_SOURCE. For the mqtt
// source client must be connected; it may be nil otherwise.
func OpenSource(cfg *config.Config, client mqtt.Client) (imu.MagSource, io.Closer, error) {
	switch cfg.CalSource {
	case config.SourceHMC:
		dev, bus, err := sensors.OpenHMC5983(cfg)
		if err != nil {
			return nil, nil, err
		}
		return &pacedSource{src: dev, interval: cfg.HMCSamplePeriod()}, bus, nil

	case config.SourceSerial:
		if cfg.SerialPort == "" {
			return nil, nil, errors.New("calibrator: serial source needs SERIAL_PORT")
		}
		src, port, err := sensors.OpenSerialSource(cfg)
		if err != nil {
			return nil, nil, err
		}
		return src, port, nil

	case config.SourceMQTT:
		if client == nil {
			return nil, nil, errors.New("calibrator: mqtt source needs a connected client")
		}
		src := NewMQTTSource(256)
		token := client.Subscribe(cfg.TopicMag, 0, src.Handle)
		token.Wait()
		if token.Error() != nil {
			return nil, nil, fmt.Errorf("calibrator: subscribe %s: %w", cfg.TopicMag, token.Error())
		}
		log.Printf("calibrator: subscribed to MQTT topic %s", cfg.TopicMag)
		return src, closerFunc(func() error {
			client.Unsubscribe(cfg.TopicMag).Wait()
			return src.Close()
		}), nil
	}
	return nil, nil, fmt.Errorf("calibrator: unknown source %q", cfg.CalSource)
}

type reading struct {
	raw imu.MagRaw
	err error
}

// Collect feeds readings from src into cal until ctx is done, the source
// ends (io.EOF), or the calibrator is full. onProgress, when set, is called
// every `every` samples and once more when collection ends.
func Collect(ctx context.Context, src imu.MagSource, cal *Calibrator, every int, onProgress func(Progress)) error {
	if every <= 0 {
		every = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	read := src.ReadMag
	if cs, ok := src.(contextSource); ok {
		read = func() (imu.MagRaw, error) { return cs.ReadMagContext(ctx) }
	}

	ch := make(chan reading)
	go func() {
		for ctx.Err() == nil {
			raw, err := read()
			if ctx.Err() != nil {
				return
			}
			select {
			case ch <- reading{raw: raw, err: err}:
			case <-ctx.Done():
				return
			}
			if errors.Is(err, io.EOF) {
				return
			}
		}
	}()

	emit := func() {
		if onProgress != nil {
			onProgress(cal.Progress())
		}
	}
	failures := 0
	for {
		select {
		case <-ctx.Done():
			emit()
			return nil
		case r := <-ch:
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					emit()
					return nil
				}
				failures++
				log.Printf("calibrator: read error: %v", r.err)
				if failures >= maxReadErrors {
					return fmt.Errorf("calibrator: %d consecutive read errors: %w", failures, r.err)
				}
				continue
			}
			failures = 0
			p, full := cal.Add(r.raw)
			if full {
				emit()
				return nil
			}
			if onProgress != nil && p.Samples%every == 0 {
				onProgress(p)
			}
		}
	}
}
