// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Guided magnetometer calibration on the console.
//
// The operator presses ENTER, rotates the device through all orientations,
// and presses ENTER again (or waits for CAL_DURATION_SEC). The samples are
// fitted with a full ellipsoid (hard-iron offset + 3x3 soft-iron transform)
// and the result is written as <source>_<unix>_mag_calibration.json under
// CAL_OUTPUT_DIR.
//
// Run:
//
//	go run ./cmd/calibration -config magcal_config.txt
//	go run ./cmd/calibration -source serial
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/magcal/internal/app"
	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/imu"
)

func main() {
	in := bufio.NewReader(os.Stdin)

	configPath := flag.String("config", "magcal_config.txt", "Path to configuration file")
	source := flag.String("source", "", "Override CAL_SOURCE (hmc, serial, mqtt)")
	flag.Parse()

	fmt.Println("=== Guided Magnetometer Calibration (ellipsoid fit) ===")
	fmt.Println()

	if err := config.InitGlobal(*configPath); err != nil {
		fatal(fmt.Errorf("failed to load config from %s: %w", *configPath, err))
	}
	cfg := *config.Get()
	if *source != "" {
		cfg.CalSource = strings.ToLower(*source)
	}

	var client mqtt.Client
	if cfg.CalSource == config.SourceMQTT {
		c, err := app.ConnectMQTT(&cfg, cfg.MQTTClientIDCalibrator)
		if err != nil {
			fatal(err)
		}
		defer c.Disconnect(250)
		client = c
	}

	src, closer, err := app.OpenSource(&cfg, client)
	if err != nil {
		fatal(err)
	}
	defer closer.Close()

	db, err := app.OpenHistory(&cfg)
	if err != nil {
		fatal(err)
	}
	if db != nil {
		defer db.Close()
	}

	fmt.Printf("Source: %s | min %d samples | max %d samples | timeout %s\n\n",
		cfg.CalSource, cfg.CalMinSamples, cfg.CalMaxSamples, cfg.CalDuration())
	fmt.Println("Rotate the device slowly through all orientations (3D), including upside down.")
	fmt.Println("Move away from large metal objects and power cables if possible.")
	fmt.Println()
	waitEnter(in, "Press ENTER to start capture, then ENTER again to stop...")

	cal := app.NewCalibrator(cfg.CalSource, &cfg)
	if err := captureUntilEnterOrTimeout(in, &cfg, src, cal); err != nil {
		fatal(err)
	}
	fmt.Println()

	res, err := cal.Finish()
	if errors.Is(err, app.ErrNotEnoughSamples) {
		fatal(fmt.Errorf("%w; rotate longer or lower CAL_MIN_SAMPLES", err))
	}
	if err != nil {
		fatal(err)
	}

	printResult(res)

	out, err := app.PersistResult(&cfg, db, res, cal.Samples())
	if err != nil {
		fatal(err)
	}
	fmt.Printf("\nWrote: %s\n", out.File)
	for _, p := range out.Plots {
		fmt.Printf("Plot:  %s\n", p)
	}
}

// captureUntilEnterOrTimeout collects until ENTER, CAL_DURATION_SEC, or
// CAL_MAX_SAMPLES, whichever comes first.
func captureUntilEnterOrTimeout(in *bufio.Reader, cfg *config.Config, src imu.MagSource, cal *app.Calibrator) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.CalDuration())
	defer cancel()

	go func() {
		_, _ = in.ReadString('\n')
		cancel()
	}()

	return app.Collect(ctx, src, cal, cfg.CalProgressEvery, func(p app.Progress) {
		ready := " "
		if p.Ready {
			ready = "✓"
		}
		fmt.Printf("\r  samples %5d/%d (%3.0f%%) | coverage %3.0f%% | |B| %6.2f µT %s ",
			p.Samples, p.Target, p.Percent, p.Coverage*100, p.MeanNorm, ready)
	})
}

func printResult(res app.Result) {
	fmt.Println("\nCalibration complete.")
	fmt.Printf("Hard-iron offset (µT): X=%.3f Y=%.3f Z=%.3f\n", res.Offset[0], res.Offset[1], res.Offset[2])
	fmt.Println("Soft-iron transform:")
	for _, row := range res.Transform {
		fmt.Printf("  [% .5f % .5f % .5f]\n", row[0], row[1], row[2])
	}
	fmt.Printf("Field strength: %.2f µT from %d samples\n", res.FieldStrength, res.SampleCount)
	q := res.Quality
	fmt.Printf("Corrected |B|: mean=%.3f stddev=%.3f rms=%.3f max=%.3f µT\n", q.MeanNorm, q.StdDev, q.RMSError, q.MaxAbsError)
	fmt.Printf("Coverage: %.0f%% | confidence=%.2f\n", res.Coverage*100, q.Confidence)
	if res.Coverage < 0.5 {
		fmt.Println("Warning: less than half of the orientations were visited; the fit may be poor.")
	}
}

// ---------- Console helpers ----------

func waitEnter(in *bufio.Reader, prompt string) {
	fmt.Print(prompt)
	_, _ = in.ReadString('\n')
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
