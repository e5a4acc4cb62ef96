// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/magcal/internal/config"
	"github.com/relabs-tech/magcal/internal/store"
)

func decodeEvents(t *testing.T, msgs []published) []ProgressEvent {
	t.Helper()
	out := make([]ProgressEvent, 0, len(msgs))
	for _, m := range msgs {
		var ev ProgressEvent
		require.NoError(t, json.Unmarshal(m.Payload, &ev))
		out = append(out, ev)
	}
	return out
}

func TestRunCalibrationPublishes(t *testing.T) {
	cfg := testConfig(t.TempDir())
	db, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer db.Close()

	pub := &fakePublisher{}
	cal := NewCalibrator(config.SourceMQTT, cfg)
	out, err := runCalibration(context.Background(), cfg, newEllipsoidSource(11, 500), cal, pub, db)
	require.NoError(t, err)
	assert.FileExists(t, out.File)

	events := decodeEvents(t, pub.on(cfg.TopicMagProgress))
	require.NotEmpty(t, events)
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, "progress", ev.Type)
		assert.Equal(t, config.SourceMQTT, ev.Source)
	}
	last := events[len(events)-1]
	assert.Equal(t, "complete", last.Type)
	assert.Equal(t, out.File, last.Message)
	assert.Equal(t, 500, last.Samples)

	results := pub.on(cfg.TopicMagCalibration)
	require.Len(t, results, 1)
	assert.True(t, results[0].Retained)
	var res Result
	require.NoError(t, json.Unmarshal(results[0].Payload, &res))
	assert.Equal(t, out.Result.ID, res.ID)
	assert.InDelta(t, testOffset.X, res.Offset[0], 0.1)

	latest, err := db.Latest(config.SourceMQTT)
	require.NoError(t, err)
	assert.Equal(t, res.ID, latest.ID)
}

func TestRunCalibrationTooFewSamples(t *testing.T) {
	cfg := testConfig(t.TempDir())
	pub := &fakePublisher{}
	cal := NewCalibrator(config.SourceSerial, cfg)

	_, err := runCalibration(context.Background(), cfg, newEllipsoidSource(12, 30), cal, pub, nil)
	require.ErrorIs(t, err, ErrNotEnoughSamples)

	events := decodeEvents(t, pub.on(cfg.TopicMagProgress))
	require.NotEmpty(t, events)
	assert.Equal(t, "error", events[len(events)-1].Type)
	assert.Empty(t, pub.on(cfg.TopicMagCalibration))
}

func TestRunCalibrationSourceFailure(t *testing.T) {
	cfg := testConfig(t.TempDir())
	pub := &fakePublisher{}
	cal := NewCalibrator(config.SourceHMC, cfg)

	_, err := runCalibration(context.Background(), cfg, errSource{err: errSensor}, cal, pub, nil)
	require.ErrorIs(t, err, errSensor)

	events := decodeEvents(t, pub.on(cfg.TopicMagProgress))
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].Type)
	assert.Contains(t, events[0].Message, "sensor unplugged")
}

func TestPublishJSONWithoutPublisher(t *testing.T) {
	assert.NotPanics(t, func() { publishJSON(nil, "topic", false, Progress{}) })
	pub := &fakePublisher{}
	publishJSON(pub, "", false, Progress{})
	assert.Empty(t, pub.msgs)
}

func TestOpenHistory(t *testing.T) {
	cfg := testConfig(t.TempDir())
	db, err := OpenHistory(cfg)
	require.NoError(t, err)
	assert.Nil(t, db)

	cfg.CalDBPath = filepath.Join(t.TempDir(), "h.db")
	db, err = OpenHistory(cfg)
	require.NoError(t, err)
	require.NotNil(t, db)
	assert.NoError(t, db.Close())
}
