package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_BothLayouts(t *testing.T) {
	d, err := Parse("2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 2025, d.Year())
	assert.Equal(t, time.June, d.Month())

	dt, err := Parse("2025-06-01 14:30:00")
	require.NoError(t, err)
	assert.Equal(t, 14, dt.Hour())
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "not-a-date", "01/06/2025", "2025-13-40"} {
		_, err := Parse(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestDayComparisons(t *testing.T) {
	morning := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2025, 1, 10, 22, 0, 0, 0, time.UTC)
	nextDay := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC)

	assert.False(t, AfterDay(evening, morning), "same calendar day")
	assert.True(t, AfterDay(nextDay, evening))
	assert.True(t, BeforeDay(morning, nextDay))
	assert.False(t, BeforeDay(evening, morning))
}

func TestMin(t *testing.T) {
	a := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	b := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, a, Min(a, b))
	assert.Equal(t, a, Min(b, a))
}
