// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/imu"
	"github.com/relabs-tech/magcal/internal/sensors"
)

// RunHMC5983Producer reads the HMC5983 every HMC_SAMPLE_INTERVAL and
// publishes each reading as JSON on TOPIC_MAG.
func RunHMC5983Producer(configPath string) error {
	if err := config.InitGlobal(configPath); err != nil {
		return fmt.Errorf("hmc: config init failed: %w", err)
	}
	cfg := config.Get()

	dev, bus, err := sensors.OpenHMC5983(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	client, err := ConnectMQTT(cfg, cfg.MQTTClientIDProducer)
	if err != nil {
		return fmt.Errorf("hmc: %w", err)
	}
	defer client.Disconnect(250)

	ctx, stop := signalContext()
	defer stop()

	log.Printf("hmc: producer started, publishing on %s every %s", cfg.TopicMag, cfg.HMCSamplePeriod())
	return produce(ctx, dev, client, cfg.TopicMag, cfg.HMCSamplePeriod())
}

// produce publishes one reading per tick until ctx is done. Read errors
// are logged and the tick is skipped.
func produce(ctx context.Context, src imu.MagSource, pub publisher, topic string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("hmc: producer stopped")
			return nil
		case <-ticker.C:
		}

		raw, err := src.ReadMag()
		if err != nil {
			log.Printf("hmc: read error: %v", err)
			continue
		}
		payload, err := json.Marshal(raw)
		if err != nil {
			log.Printf("hmc: JSON marshal error: %v", err)
			continue
		}
		token := pub.Publish(topic, 0, false, payload)
		token.Wait()
		if token.Error() != nil {
			log.Printf("hmc: publish error: %v", token.Error())
		}
	}
}
