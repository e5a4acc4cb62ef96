// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Sample sources accepted by CAL_SOURCE.
const (
	SourceHMC    = "hmc"
	SourceSerial = "serial"
	SourceMQTT   = "mqtt"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker             string
	MQTTClientIDProducer   string
	MQTTClientIDCalibrator string
	MQTTClientIDWeb        string

	// Topics
	TopicMag            string
	TopicMagCalibration string
	TopicMagProgress    string

	// HMC5983 Hardware
	HMCI2CBus  string
	HMCI2CAddr uint16
	// Output data rate in Hz: 3, 7, 15, 30 or 75 (rounded register values)
	HMCODRHz int
	// Samples averaged per measurement: 1, 2, 4 or 8
	HMCAvgSamples int
	// Gain code 0-7 (0=±0.88Ga ... 7=±8.1Ga)
	HMCGainCode byte
	// "continuous" or "single"
	HMCMode           string
	HMCSampleInterval int // milliseconds

	// Serial sample stream
	SerialPort     string
	SerialBaudRate int

	// Calibration run
	CalSource        string
	CalMinSamples    int
	CalMaxSamples    int
	CalDurationSec   int
	CalOutputDir     string
	CalImagTolerance float64
	CalMaxCondition  float64 // LU condition limit; raise for offsets far beyond the field strength
	CalProgressEvery int
	CalDBPath        string // empty disables the history database
	CalPlot          bool   // write the residual histogram next to the JSON result

	// Web Server
	WebServerPort int
}

// Default returns the configuration used for keys absent from the file.
func Default() *Config {
	return &Config{
		MQTTClientIDProducer:   "magcal-hmc-producer",
		MQTTClientIDCalibrator: "magcal-calibrator",
		MQTTClientIDWeb:        "magcal-web",

		TopicMag:            "inertial/mag/hmc",
		TopicMagCalibration: "inertial/mag/calibration",
		TopicMagProgress:    "inertial/mag/calibration/progress",

		HMCI2CBus:         "",
		HMCI2CAddr:        0x1E,
		HMCODRHz:          75,
		HMCAvgSamples:     8,
		HMCGainCode:       1,
		HMCMode:           "continuous",
		HMCSampleInterval: 20,

		SerialBaudRate: 115200,

		CalSource:        SourceHMC,
		CalMinSamples:    200,
		CalMaxSamples:    5000,
		CalDurationSec:   60,
		CalOutputDir:     ".",
		CalImagTolerance: 1e-9,
		CalMaxCondition:  1e12,
		CalProgressEvery: 25,

		WebServerPort: 8080,
	}
}

// Package-level singleton, set once by InitGlobal and read through Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines from r on top of Default.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func atoiRange(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CALIBRATOR":
		c.MQTTClientIDCalibrator = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	// Topics
	case "TOPIC_MAG":
		c.TopicMag = value
	case "TOPIC_MAG_CALIBRATION":
		c.TopicMagCalibration = value
	case "TOPIC_MAG_PROGRESS":
		c.TopicMagProgress = value

	// HMC5983
	case "HMC_I2C_BUS":
		c.HMCI2CBus = value
	case "HMC_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid HMC_I2C_ADDR %q: %w", value, err)
		}
		if addr > 0x7F {
			return fmt.Errorf("HMC_I2C_ADDR must be a 7-bit address, got %#x", addr)
		}
		c.HMCI2CAddr = uint16(addr)
	case "HMC_ODR_HZ":
		hz, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HMC_ODR_HZ %q: %w", value, err)
		}
		switch hz {
		case 3, 7, 15, 30, 75:
		default:
			return fmt.Errorf("HMC_ODR_HZ must be one of 3, 7, 15, 30, 75, got %d", hz)
		}
		c.HMCODRHz = hz
	case "HMC_AVG_SAMPLES":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HMC_AVG_SAMPLES %q: %w", value, err)
		}
		switch n {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("HMC_AVG_SAMPLES must be one of 1, 2, 4, 8, got %d", n)
		}
		c.HMCAvgSamples = n
	case "HMC_GAIN_CODE":
		gain, err := atoiRange(key, value, 0, 7)
		if err != nil {
			return err
		}
		c.HMCGainCode = byte(gain)
	case "HMC_MODE":
		mode := strings.ToLower(value)
		if mode != "continuous" && mode != "single" {
			return fmt.Errorf("HMC_MODE must be continuous or single, got %q", value)
		}
		c.HMCMode = mode
	case "HMC_SAMPLE_INTERVAL":
		c.HMCSampleInterval, err = atoiRange(key, value, 1, 60000)

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = rate

	// Calibration
	case "CAL_SOURCE":
		src := strings.ToLower(value)
		switch src {
		case SourceHMC, SourceSerial, SourceMQTT:
		default:
			return fmt.Errorf("CAL_SOURCE must be hmc, serial or mqtt, got %q", value)
		}
		c.CalSource = src
	case "CAL_MIN_SAMPLES":
		c.CalMinSamples, err = atoiRange(key, value, 10, 1_000_000)
	case "CAL_MAX_SAMPLES":
		c.CalMaxSamples, err = atoiRange(key, value, 10, 1_000_000)
	case "CAL_DURATION_SEC":
		c.CalDurationSec, err = atoiRange(key, value, 1, 86400)
	case "CAL_OUTPUT_DIR":
		c.CalOutputDir = value
	case "CAL_IMAG_TOLERANCE":
		tol, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid CAL_IMAG_TOLERANCE %q: %w", value, err)
		}
		if !(tol > 0) || tol >= 1 {
			return fmt.Errorf("CAL_IMAG_TOLERANCE must be in (0, 1), got %g", tol)
		}
		c.CalImagTolerance = tol
	case "CAL_MAX_CONDITION":
		cond, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid CAL_MAX_CONDITION %q: %w", value, err)
		}
		if !(cond > 1) || math.IsInf(cond, 0) {
			return fmt.Errorf("CAL_MAX_CONDITION must be a finite number above 1, got %g", cond)
		}
		c.CalMaxCondition = cond
	case "CAL_PROGRESS_EVERY":
		c.CalProgressEvery, err = atoiRange(key, value, 1, 100000)
	case "CAL_DB_PATH":
		c.CalDBPath = value
	case "CAL_PLOT":
		plot, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid CAL_PLOT %q: %w", value, err)
		}
		c.CalPlot = plot

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = atoiRange(key, value, 1, 65535)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.CalMaxSamples < c.CalMinSamples {
		return fmt.Errorf("CAL_MAX_SAMPLES (%d) must not be below CAL_MIN_SAMPLES (%d)", c.CalMaxSamples, c.CalMinSamples)
	}
	if c.CalSource == SourceSerial && c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required when CAL_SOURCE=serial")
	}
	if c.CalSource == SourceSerial && c.SerialBaudRate <= 0 {
		return fmt.Errorf("SERIAL_BAUD_RATE must be positive, got %d", c.SerialBaudRate)
	}
	return nil
}

// HMCSamplePeriod returns HMC_SAMPLE_INTERVAL as a duration.
func (c *Config) HMCSamplePeriod() time.Duration {
	return time.Duration(c.HMCSampleInterval) * time.Millisecond
}

// CalDuration returns CAL_DURATION_SEC as a duration.
func (c *Config) CalDuration() time.Duration {
	return time.Duration(c.CalDurationSec) * time.Second
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads the file; later calls return nil.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
