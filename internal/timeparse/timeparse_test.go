package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixed reference: Wednesday, January 15, 2025, 10:00 local time.
var refNow = time.Date(2025, 1, 15, 10, 0, 0, 0, time.Local)

func TestParseCompactDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"+6h", refNow.Add(6 * time.Hour)},
		{"-1d", refNow.AddDate(0, 0, -1)},
		{"+2w", refNow.AddDate(0, 0, 14)},
		{"3m", refNow.AddDate(0, 3, 0)},
		{"1y", refNow.AddDate(1, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCompactDuration(tt.input, refNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsCompactDuration(t *testing.T) {
	assert.True(t, IsCompactDuration("+2w"))
	assert.True(t, IsCompactDuration("3d"))
	assert.False(t, IsCompactDuration("tomorrow"))
	assert.False(t, IsCompactDuration("2026-03-01"))
	assert.False(t, IsCompactDuration("2x"))
}

func TestParseNaturalLanguage(t *testing.T) {
	got, err := ParseNaturalLanguage("tomorrow", refNow)
	require.NoError(t, err)
	assert.Equal(t, 16, got.Day())
	assert.Equal(t, time.January, got.Month())

	got, err = ParseNaturalLanguage("next friday", refNow)
	require.NoError(t, err)
	assert.Equal(t, time.Friday, got.Weekday())

	_, err = ParseNaturalLanguage("gibberish input", refNow)
	assert.Error(t, err)
}

func TestParseAbsolute(t *testing.T) {
	got, err := ParseAbsolute("2026-03-01T12:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), got)

	// Date-only deadlines mean end of that day.
	got, err = ParseAbsolute("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.March, got.Month())
	assert.Equal(t, 1, got.Day())
	assert.Equal(t, 23, got.Hour())

	_, err = ParseAbsolute("not a date")
	assert.Error(t, err)
}

func TestParseLayering(t *testing.T) {
	// Compact wins first.
	got, err := Parse("+1d", refNow)
	require.NoError(t, err)
	assert.Equal(t, refNow.AddDate(0, 0, 1), got)

	// Absolute falls through the natural language layer.
	got, err = Parse("2026-03-01T00:00:00Z", refNow)
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())

	_, err = Parse("complete nonsense here", refNow)
	assert.Error(t, err)
}
