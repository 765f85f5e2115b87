package alarik

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRangeHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		size   int64
		want   *ObjectRange
	}{
		{"start-end", "bytes=2-5", 10, &ObjectRange{Start: 2, End: 5}},
		{"start-only", "bytes=5-", 10, &ObjectRange{Start: 5, End: 9}},
		{"suffix", "bytes=-3", 10, &ObjectRange{Start: 7, End: 9}},
		{"end-clamped", "bytes=5-100", 10, &ObjectRange{Start: 5, End: 9}},
		{"missing", "", 10, nil},
		{"multi-range-falls-back", "bytes=0-1,3-4", 10, nil},
		{"non-numeric-falls-back", "bytes=abc-5", 10, nil},
		{"inverted-falls-back", "bytes=5-2", 10, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRangeHeader(tc.header, tc.size)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRangeHeaderNotSatisfiable(t *testing.T) {
	_, err := ParseRangeHeader("bytes=50-60", 10)
	require.Error(t, err)
	resp, ok := err.(*ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, ErrInvalidRange, resp.Code)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.Code.Status())
}

func TestContentRangeHeader(t *testing.T) {
	assert.Equal(t, "bytes 2-5/10", ContentRangeHeader(ObjectRange{Start: 2, End: 5}, 10))
}
