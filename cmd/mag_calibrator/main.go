// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/magcal/internal/app"
)

func main() {
	configPath := flag.String("config", "magcal_config.txt", "Path to configuration file")
	flag.Parse()

	log.Println("starting magnetometer calibrator (MQTT subscriber)")
	log.Println("Note: requires the HMC5983 producer to be publishing (sudo ./hmc5983_producer)")

	if err := app.RunMQTTCalibrator(*configPath); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
