package sspdomain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sspbackend/internal/sspdomain"
)

func TestDateTime_StringIsFixedWidth(t *testing.T) {
	t.Parallel()

	dt, err := sspdomain.NewDateTime(time.Date(2026, 7, 31, 12, 30, 45, 123456789, time.UTC))
	require.NoError(t, err)
	require.Len(t, dt.String(), 25)
	require.Equal(t, "2026-07-31T12:30:45+00:00", dt.String())
}

func TestDateTime_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   time.Time
	}{
		{name: "utc", in: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "with offset", in: time.Date(2030, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))},
		{name: "truncates sub-second", in: time.Date(2030, 1, 1, 0, 0, 0, 999999999, time.UTC)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dt, err := sspdomain.NewDateTime(tc.in)
			require.NoError(t, err)

			parsed, err := sspdomain.ParseDateTime(dt.String())
			require.NoError(t, err)
			require.True(t, dt.Equal(parsed))
		})
	}
}

func TestParseDateTime_RejectsWrongLength(t *testing.T) {
	t.Parallel()

	_, err := sspdomain.ParseDateTime("2026-07-31T12:30:45Z")
	require.Error(t, err)
}

func TestNewDateTime_RejectsYearOverflow(t *testing.T) {
	t.Parallel()

	_, err := sspdomain.NewDateTime(time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}
