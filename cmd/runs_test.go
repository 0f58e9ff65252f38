package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mspence07/PropertyIntel/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := started.Add(90 * time.Second)

	runs := []model.ScrapeRun{
		{
			RunID:          "0b1f2c3d-aaaa-bbbb-cccc-ddddeeeeffff",
			TargetMonth:    "2024-01",
			Region:         "NI",
			StartedAt:      started,
			CompletedAt:    &completed,
			Status:         model.RunStatusSuccess,
			RecordsFound:   2100,
			RecordsWritten: 2095,
		},
		{
			RunID:        "9e8d7c6b-1111-2222-3333-444455556666",
			TargetMonth:  "2024-02",
			Region:       "NI",
			StartedAt:    started,
			Status:       model.RunStatusFailed,
			ErrorMessage: model.StrPtr("archive transfer failed after a very long chain of retries"),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "0b1f2c3d")
	assert.NotContains(t, out, "ddddeeeeffff")
	assert.Contains(t, out, "2024-01")
	assert.Contains(t, out, "SUCCESS")
	assert.Contains(t, out, "2095")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "FAILED")
	// Long error messages are truncated with an ellipsis.
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, "long chain of retries")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 4)
}

func TestFormatRunsList_NoCompletion(t *testing.T) {
	runs := []model.ScrapeRun{{
		RunID:       "abc",
		TargetMonth: "2024-03",
		StartedAt:   time.Now(),
		Status:      model.RunStatusRunning,
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	assert.Contains(t, buf.String(), "RUNNING")
}
