package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScrapeRun(t *testing.T) {
	run := NewScrapeRun("2024-03")

	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, "2024-03", run.TargetMonth)
	assert.Equal(t, Region, run.Region)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Nil(t, run.CompletedAt)
	assert.Nil(t, run.ErrorMessage)
}

func TestScrapeRun_UniqueIDs(t *testing.T) {
	a := NewScrapeRun("2024-03")
	b := NewScrapeRun("2024-03")
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestScrapeRun_Complete(t *testing.T) {
	run := NewScrapeRun("2024-03")
	run.Complete(120, 120)

	assert.Equal(t, RunStatusSuccess, run.Status)
	assert.Equal(t, 120, run.RecordsFound)
	assert.Equal(t, 120, run.RecordsWritten)
	require.NotNil(t, run.CompletedAt)
	assert.Nil(t, run.ErrorMessage)
}

func TestScrapeRun_Fail(t *testing.T) {
	run := NewScrapeRun("2024-03")
	run.Fail("batch write failed")

	assert.Equal(t, RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, "batch write failed", *run.ErrorMessage)
	require.NotNil(t, run.CompletedAt, "failed runs must still be stamped complete")
}

func TestStrPtr(t *testing.T) {
	assert.Nil(t, StrPtr(""))
	p := StrPtr("On or near High Street")
	require.NotNil(t, p)
	assert.Equal(t, "On or near High Street", *p)
}
