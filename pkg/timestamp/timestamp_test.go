package timestamp

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testTime = time.Date(2023, 1, 15, 12, 30, 45, 123456789, time.UTC)

func TestNow(t *testing.T) {
	before := time.Now().UnixNano()
	ns := NowNs()
	after := time.Now().UnixNano()
	assert.True(t, ns >= before && ns <= after)

	ms := NowMs()
	assert.InDelta(t, float64(time.Now().UnixMilli()), float64(ms), 1000)
}

func TestConversions(t *testing.T) {
	ns := testTime.UnixNano()
	assert.True(t, FromUnixNs(ns).Equal(testTime))
	assert.Equal(t, ns, ToUnixNs(testTime))
	assert.True(t, FromUnixMs(testTime.UnixMilli()).Equal(testTime.Truncate(time.Millisecond)))

	assert.True(t, FromUnixNs(0).IsZero())
	assert.True(t, FromUnixMs(0).IsZero())
	assert.Zero(t, ToUnixNs(time.Time{}))
}

func TestGuess(t *testing.T) {
	tests := []struct {
		name  string
		input int64
		want  time.Time
	}{
		{"seconds", testTime.Unix(), testTime.Truncate(time.Second)},
		{"milliseconds", testTime.UnixMilli(), testTime.Truncate(time.Millisecond)},
		{"microseconds", testTime.UnixMicro(), testTime.Truncate(time.Microsecond)},
		{"nanoseconds", testTime.UnixNano(), testTime},
		{"zero", 0, time.Time{}},
		{"negative", -5, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Guess(tt.input)
			if tt.want.IsZero() {
				assert.True(t, got.IsZero())
				return
			}
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}

func TestAge(t *testing.T) {
	now := testTime.Add(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, Age(testTime.UnixNano(), now))
	assert.Equal(t, time.Duration(math.MaxInt64), Age(0, now))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "2023-01-15T12:30:45.123Z", Format(testTime.UnixNano()))
	assert.Empty(t, Format(0))
}
