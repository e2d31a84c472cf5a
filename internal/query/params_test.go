package query

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePage(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 1},
		{"1", 1},
		{"3", 3},
		{" 4", 4},
		{"2.9", 2},
		{"5abc", 5},
		{"abc", 1},
		{"NaN", 1},
		{"0", 1},
		{"-2", 1},
		{"+7", 7},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParsePage(tt.in), "page %q", tt.in)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in   string
		max  int64
		want int64
	}{
		{"", 20, 10},
		{"5", 20, 5},
		{"20", 20, 20},
		{"21", 20, 20},
		{"1000", 50, 50},
		{"0", 20, 10},
		{"-5", 20, 10},
		{"NaN", 20, 10},
		{"15", 0, 15},
		{"99999999999999999999999", 50, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLimit(tt.in, tt.max), "limit %q max %d", tt.in, tt.max)
	}
}

func TestSkip(t *testing.T) {
	assert.Equal(t, int64(0), Skip(1, 10))
	assert.Equal(t, int64(0), Skip(0, 10))
	assert.Equal(t, int64(20), Skip(3, 10))
	assert.Equal(t, int64(math.MaxInt64), Skip(math.MaxInt64, 20))
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, int64(0), TotalPages(0, 10))
	assert.Equal(t, int64(1), TotalPages(1, 10))
	assert.Equal(t, int64(1), TotalPages(10, 10))
	assert.Equal(t, int64(3), TotalPages(21, 10))
}
