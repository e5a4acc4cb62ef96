// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("MQTT_BROKER=tcp://localhost:1883\n"))
	require.NoError(t, err)

	want := Default()
	want.MQTTBroker = "tcp://localhost:1883"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFull(t *testing.T) {
	input := `
# broker
MQTT_BROKER = tcp://10.0.0.2:1883
MQTT_CLIENT_ID_PRODUCER=prod
MQTT_CLIENT_ID_CALIBRATOR=cal
MQTT_CLIENT_ID_WEB=web

TOPIC_MAG=rig/mag
TOPIC_MAG_CALIBRATION=rig/mag/cal
TOPIC_MAG_PROGRESS=rig/mag/progress

HMC_I2C_BUS=/dev/i2c-1
HMC_I2C_ADDR=0x1e
HMC_ODR_HZ=30
HMC_AVG_SAMPLES=4
HMC_GAIN_CODE=5
HMC_MODE=Single
HMC_SAMPLE_INTERVAL=50

SERIAL_PORT=/dev/ttyUSB0
SERIAL_BAUD_RATE=57600

CAL_SOURCE=serial
CAL_MIN_SAMPLES=300
CAL_MAX_SAMPLES=900
CAL_DURATION_SEC=45
CAL_OUTPUT_DIR=/var/lib/magcal
CAL_IMAG_TOLERANCE=1e-7
CAL_MAX_CONDITION=1e30
CAL_PROGRESS_EVERY=10
CAL_DB_PATH=/var/lib/magcal/history.db
CAL_PLOT=true

WEB_SERVER_PORT=9090
`
	cfg, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	want := &Config{
		MQTTBroker:             "tcp://10.0.0.2:1883",
		MQTTClientIDProducer:   "prod",
		MQTTClientIDCalibrator: "cal",
		MQTTClientIDWeb:        "web",
		TopicMag:               "rig/mag",
		TopicMagCalibration:    "rig/mag/cal",
		TopicMagProgress:       "rig/mag/progress",
		HMCI2CBus:              "/dev/i2c-1",
		HMCI2CAddr:             0x1E,
		HMCODRHz:               30,
		HMCAvgSamples:          4,
		HMCGainCode:            5,
		HMCMode:                "single",
		HMCSampleInterval:      50,
		SerialPort:             "/dev/ttyUSB0",
		SerialBaudRate:         57600,
		CalSource:              SourceSerial,
		CalMinSamples:          300,
		CalMaxSamples:          900,
		CalDurationSec:         45,
		CalOutputDir:           "/var/lib/magcal",
		CalImagTolerance:       1e-7,
		CalMaxCondition:        1e30,
		CalProgressEvery:       10,
		CalDBPath:              "/var/lib/magcal/history.db",
		CalPlot:                true,
		WebServerPort:          9090,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 50*time.Millisecond, cfg.HMCSamplePeriod())
	assert.Equal(t, 45*time.Second, cfg.CalDuration())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing broker", "TOPIC_MAG=x\n", "MQTT_BROKER is required"},
		{"unknown key", "MQTT_BROKER=b\nFOO=1\n", `config line 2: unknown config key: "FOO"`},
		{"no equals", "MQTT_BROKER=b\nbogus\n", "invalid config line 2"},
		{"bad odr", "MQTT_BROKER=b\nHMC_ODR_HZ=50\n", "HMC_ODR_HZ must be one of"},
		{"bad avg", "MQTT_BROKER=b\nHMC_AVG_SAMPLES=3\n", "HMC_AVG_SAMPLES must be one of"},
		{"bad gain", "MQTT_BROKER=b\nHMC_GAIN_CODE=8\n", "HMC_GAIN_CODE must be 0-7"},
		{"bad addr", "MQTT_BROKER=b\nHMC_I2C_ADDR=0x80\n", "7-bit"},
		{"bad mode", "MQTT_BROKER=b\nHMC_MODE=idle\n", "HMC_MODE"},
		{"bad source", "MQTT_BROKER=b\nCAL_SOURCE=usb\n", "CAL_SOURCE"},
		{"bad tolerance", "MQTT_BROKER=b\nCAL_IMAG_TOLERANCE=0\n", "CAL_IMAG_TOLERANCE"},
		{"bad condition", "MQTT_BROKER=b\nCAL_MAX_CONDITION=0.5\n", "CAL_MAX_CONDITION"},
		{"infinite condition", "MQTT_BROKER=b\nCAL_MAX_CONDITION=+Inf\n", "CAL_MAX_CONDITION"},
		{"bad plot", "MQTT_BROKER=b\nCAL_PLOT=maybe\n", "CAL_PLOT"},
		{"max below min", "MQTT_BROKER=b\nCAL_MIN_SAMPLES=500\nCAL_MAX_SAMPLES=100\n", "must not be below"},
		{"serial without port", "MQTT_BROKER=b\nCAL_SOURCE=serial\n", "SERIAL_PORT is required"},
		{"bad port", "MQTT_BROKER=b\nWEB_SERVER_PORT=70000\n", "WEB_SERVER_PORT must be 1-65535"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "magcal_config.txt")
	require.NoError(t, os.WriteFile(path, []byte("MQTT_BROKER=tcp://broker:1883\nCAL_MAX_SAMPLES=800\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
	assert.Equal(t, 800, cfg.CalMaxSamples)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorContains(t, err, "failed to open config file")
}

func TestInitGlobal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "magcal_config.txt")
	require.NoError(t, os.WriteFile(path, []byte("MQTT_BROKER=tcp://global:1883\n"), 0o644))

	require.NoError(t, InitGlobal(path))
	require.NotNil(t, Get())
	assert.Equal(t, "tcp://global:1883", Get().MQTTBroker)

	// later calls keep the first configuration
	require.NoError(t, InitGlobal(filepath.Join(t.TempDir(), "other.txt")))
	assert.Equal(t, "tcp://global:1883", Get().MQTTBroker)
}
