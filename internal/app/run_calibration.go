// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/imu"
	"github.com/relabs-tech/magcal/internal/store"
)

// publisher is the part of mqtt.Client used to publish.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

func publishJSON(pub publisher, topic string, retained bool, v any) {
	if pub == nil || topic == "" {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("calibrator: JSON marshal error: %v", err)
		return
	}
	token := pub.Publish(topic, 0, retained, payload)
	token.Wait()
	if token.Error() != nil {
		log.Printf("calibrator: publish to %s failed: %v", topic, token.Error())
	}
}

// ProgressEvent is published on TOPIC_MAG_PROGRESS.
type ProgressEvent struct {
	Type    string `json:"type"` // progress, complete, error
	Source  string `json:"source"`
	Message string `json:"message,omitempty"`
	Progress
}

// runCalibration collects from src for at most CAL_DURATION_SEC, solves, and
// persists the result. Progress and the retained result go to pub when set.
func runCalibration(ctx context.Context, cfg *config.Config, src imu.MagSource, cal *Calibrator, pub publisher, db *store.DB) (Persisted, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.CalDuration())
	defer cancel()

	log.Printf("calibrator: collecting up to %d samples from %s for %s", cfg.CalMaxSamples, cal.Source(), cfg.CalDuration())
	err := Collect(ctx, src, cal, cfg.CalProgressEvery, func(p Progress) {
		publishJSON(pub, cfg.TopicMagProgress, false, ProgressEvent{Type: "progress", Source: cal.Source(), Progress: p})
	})
	if err != nil {
		publishJSON(pub, cfg.TopicMagProgress, false, ProgressEvent{Type: "error", Source: cal.Source(), Message: err.Error(), Progress: cal.Progress()})
		return Persisted{}, err
	}

	res, err := cal.Finish()
	if err != nil {
		publishJSON(pub, cfg.TopicMagProgress, false, ProgressEvent{Type: "error", Source: cal.Source(), Message: err.Error(), Progress: cal.Progress()})
		return Persisted{}, err
	}
	log.Printf("calibrator: %s fit: offset=%.2f field=%.2fµT rms=%.3fµT confidence=%.2f coverage=%.0f%%",
		res.Source, res.Offset, res.FieldStrength, res.Quality.RMSError, res.Quality.Confidence, res.Coverage*100)

	out, err := PersistResult(cfg, db, res, cal.Samples())
	if err != nil {
		return out, err
	}
	publishJSON(pub, cfg.TopicMagCalibration, true, out.Result)
	publishJSON(pub, cfg.TopicMagProgress, false, ProgressEvent{Type: "complete", Source: cal.Source(), Message: out.File, Progress: cal.Progress()})
	return out, nil
}

// OpenHistory opens CAL_DB_PATH, or returns nil when it is unset.
func OpenHistory(cfg *config.Config) (*store.DB, error) {
	if cfg.CalDBPath == "" {
		return nil, nil
	}
	db, err := store.Open(cfg.CalDBPath)
	if err != nil {
		return nil, err
	}
	log.Printf("calibrator: history database %s", cfg.CalDBPath)
	return db, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// RunMQTTCalibrator calibrates from readings published on TOPIC_MAG.
func RunMQTTCalibrator(configPath string) error {
	if err := config.InitGlobal(configPath); err != nil {
		return fmt.Errorf("config init failed: %w", err)
	}
	cfg := *config.Get()
	cfg.CalSource = config.SourceMQTT

	client, err := ConnectMQTT(&cfg, cfg.MQTTClientIDCalibrator)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	db, err := OpenHistory(&cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	src, closer, err := OpenSource(&cfg, client)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signalContext()
	defer stop()
	_, err = runCalibration(ctx, &cfg, src, NewCalibrator(config.SourceMQTT, &cfg), client, db)
	return err
}

// RunSerialCalibration calibrates from $xxMAG sentences on SERIAL_PORT.
// Results are published when the broker is reachable.
func RunSerialCalibration(configPath string) error {
	if err := config.InitGlobal(configPath); err != nil {
		return fmt.Errorf("config init failed: %w", err)
	}
	cfg := *config.Get()
	cfg.CalSource = config.SourceSerial

	var pub publisher
	if client, err := ConnectMQTT(&cfg, cfg.MQTTClientIDCalibrator); err != nil {
		log.Printf("serial: continuing without MQTT: %v", err)
	} else {
		defer client.Disconnect(250)
		pub = client
	}

	db, err := OpenHistory(&cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	src, closer, err := OpenSource(&cfg, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signalContext()
	defer stop()
	_, err = runCalibration(ctx, &cfg, src, NewCalibrator(config.SourceSerial, &cfg), pub, db)
	return err
}
