package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_Countdown(t *testing.T) {
	b, err := NewBackoff(Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 400 * time.Millisecond, Multiplier: 2})
	require.NoError(t, err)

	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	assert.Zero(t, b.Remaining(), "unarmed countdown allows an attempt")

	assert.Equal(t, 100*time.Millisecond, b.Arm())
	assert.Equal(t, 100*time.Millisecond, b.Remaining())

	now = now.Add(60 * time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, b.Remaining())

	now = now.Add(time.Second)
	assert.Zero(t, b.Remaining())

	assert.Equal(t, 200*time.Millisecond, b.Arm())
	assert.Equal(t, 400*time.Millisecond, b.Arm())
	assert.Equal(t, 400*time.Millisecond, b.Arm(), "delay is capped at MaxDelay")

	b.Reset()
	assert.Zero(t, b.Remaining())
	assert.Equal(t, 100*time.Millisecond, b.Arm())
}

func TestBackoff_Fixed(t *testing.T) {
	b := Fixed(50 * time.Millisecond)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 50*time.Millisecond, b.Arm())
	}
}

func TestBackoff_WaitHonoursContext(t *testing.T) {
	b := Fixed(time.Hour)
	b.Arm()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := b.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBackoff_WaitExpires(t *testing.T) {
	b := Fixed(10 * time.Millisecond)
	b.Arm()
	require.NoError(t, b.Wait(context.Background()))
	assert.Zero(t, b.Remaining())
}
