package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/panel-cli/internal/model"
)

func TestComputeRunStats(t *testing.T) {
	now := time.Now()
	runs := []model.Run{
		{
			Status:    model.RunStatusComplete,
			Report:    &model.QualityReport{RowsEmitted: 1000},
			CreatedAt: now,
			UpdatedAt: now.Add(10 * time.Second),
		},
		{
			Status:    model.RunStatusComplete,
			Report:    &model.QualityReport{RowsEmitted: 500},
			CreatedAt: now,
			UpdatedAt: now.Add(20 * time.Second),
		},
		{Status: model.RunStatusFailed},
		{Status: model.RunStatusCancelled},
		{Status: model.RunStatusJoining},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Cancelled)
	assert.Equal(t, 1, s.Other)
	assert.Equal(t, int64(1500), s.RowsEmitted)
	assert.InDelta(t, 15.0, s.AvgDurSecs, 0.001)
}

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "0123456789abcdef",
			Status:    model.RunStatusComplete,
			Report:    &model.QualityReport{RowsEmitted: 42, RowsDropped: 3},
			CreatedAt: now,
			UpdatedAt: now.Add(5 * time.Second),
		},
		{
			ID:        "fedcba9876543210",
			Status:    model.RunStatusFailed,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	var b strings.Builder
	formatRunsList(&b, runs)
	out := b.String()

	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "failed")
}

func TestFormatRunStats(t *testing.T) {
	var b strings.Builder
	formatRunStats(&b, runStats{Total: 3, Complete: 2, Failed: 1, RowsEmitted: 99, AvgDurSecs: 1.5})
	out := b.String()

	assert.Contains(t, out, "Total runs:")
	assert.Contains(t, out, "99")
	assert.Contains(t, out, "1.5s")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("123456789"))
	assert.Equal(t, "short", truncateID("short"))
}
