package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerPhases(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	timer := NewTimer("load", WithClock(clock))

	pt := timer.Start("metadata")
	clock.Advance(5 * time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, pt.Stop())

	// second stop keeps the first measurement
	clock.Advance(time.Second)
	assert.Equal(t, 5*time.Millisecond, pt.Stop())

	err := timer.TimeFunc("events", func() error {
		clock.Advance(20 * time.Millisecond)
		return errors.New("boom")
	})
	require.Error(t, err)

	phases := timer.Phases()
	require.Len(t, phases, 2)
	assert.Equal(t, "metadata", phases[0].Name)
	assert.Equal(t, "events", phases[1].Name)
	assert.Equal(t, 20*time.Millisecond, timer.Duration("events"))
	assert.Equal(t, 1025*time.Millisecond, timer.Total())
}

func TestTimerDisabled(t *testing.T) {
	timer := NewTimer("load", WithEnabled(false))
	pt := timer.Start("metadata")
	assert.Zero(t, pt.Stop())
	assert.Empty(t, timer.Phases())
	timer.PrintSummary()
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "15µs", FormatDuration(15*time.Microsecond))
	assert.Equal(t, "1.50ms", FormatDuration(1500*time.Microsecond))
	assert.Equal(t, "2.00s", FormatDuration(2*time.Second))
}
