package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/magcal/internal/imu"
)

func TestConsolePrinter(t *testing.T) {
	var buf bytes.Buffer
	p := consolePrinter{out: &buf}

	raw, err := json.Marshal(imu.MagRaw{Source: "hmc", Mx: 123, My: -45, Mz: 6, Norm: 13.2})
	require.NoError(t, err)
	p.mag(nil, fakeMessage{topic: "inertial/mag/hmc", payload: raw})
	assert.Contains(t, buf.String(), "mx=   123 my=   -45 mz=     6")
	assert.Contains(t, buf.String(), "src=hmc")

	buf.Reset()
	ev, err := json.Marshal(ProgressEvent{Type: "progress", Source: "mqtt", Progress: Progress{Samples: 250, Target: 1000, Percent: 25, Coverage: 0.5}})
	require.NoError(t, err)
	p.progress(nil, fakeMessage{payload: ev})
	assert.Contains(t, buf.String(), "mqtt:   250/1000 ( 25%) coverage= 50%")

	buf.Reset()
	ev, err = json.Marshal(ProgressEvent{Type: "error", Source: "mqtt", Message: "boom"})
	require.NoError(t, err)
	p.progress(nil, fakeMessage{payload: ev})
	assert.Equal(t, "[CAL!]  mqtt: boom\n", buf.String())

	buf.Reset()
	res, err := json.Marshal(sampleResult())
	require.NoError(t, err)
	p.result(nil, fakeMessage{payload: res})
	assert.Contains(t, buf.String(), "[RES ]  hmc @ 2026-03-01 12:00:00  offset=(18.50, -7.25, 31.00)")

	buf.Reset()
	p.result(nil, fakeMessage{payload: []byte("nope")})
	p.progress(nil, fakeMessage{payload: []byte("nope")})
	p.mag(nil, fakeMessage{payload: []byte("nope")})
	assert.Empty(t, buf.String())
}
