// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/magcal/internal/imu"
)

func TestProducePublishesReadings(t *testing.T) {
	pub := &fakePublisher{}
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := produce(ctx, newEllipsoidSource(21, 0), pub, "inertial/mag/hmc", 10*time.Millisecond)
	require.NoError(t, err)

	msgs := pub.on("inertial/mag/hmc")
	require.NotEmpty(t, msgs)
	for _, m := range msgs {
		assert.False(t, m.Retained)
		var raw imu.MagRaw
		require.NoError(t, json.Unmarshal(m.Payload, &raw))
		assert.Equal(t, "test", raw.Source)
		assert.NotZero(t, raw.Norm)
	}
}

func TestProduceSkipsReadErrors(t *testing.T) {
	pub := &fakePublisher{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, produce(ctx, errSource{err: errSensor}, pub, "inertial/mag/hmc", 5*time.Millisecond))
	assert.Empty(t, pub.msgs)
}
