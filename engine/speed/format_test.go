package speed

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatRateZero(t *testing.T) {
	s, err := FormatRate(0)
	require.NoError(t, err)
	require.Equal(t, "0 B/s", s)
}

func TestFormatRateUnits(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{500, "500 B/s"},
		{1536, "1.50 KiB/s"},
		{1024 * 1024 * 2.5, "2.50 MiB/s"},
		{1024 * 1024 * 1024 * 3, "3.00 GiB/s"},
	}
	for _, c := range cases {
		got, err := FormatRate(c.in)
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}
}

func TestFormatRateRejectsNegative(t *testing.T) {
	_, err := FormatRate(-1)
	require.Error(t, err)
}
