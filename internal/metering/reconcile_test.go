package metering

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResplitProportional(t *testing.T) {
	// 30:10 start split keeps a 3:1 ratio over the remainder.
	available, extra := Resplit(1200, 30, 10) // 20 minutes left
	assert.InDelta(t, 15.0, available, 1e-9)
	assert.InDelta(t, 5.0, extra, 1e-9)
}

func TestResplitPlanOnly(t *testing.T) {
	// A session started with no top-up balance puts everything back into
	// the plan bucket.
	available, extra := Resplit(50, 1, 0)
	assert.InDelta(t, 50.0/60.0, available, 1e-9)
	assert.Zero(t, extra)
}

func TestResplitExhausted(t *testing.T) {
	available, extra := Resplit(0, 30, 10)
	assert.Zero(t, available)
	assert.Zero(t, extra)
}

func TestResplitZeroStartSplit(t *testing.T) {
	// Degenerate start split: the whole remainder lands in available.
	available, extra := Resplit(120, 0, 0)
	assert.InDelta(t, 2.0, available, 1e-9)
	assert.Zero(t, extra)
}

func TestResplitNegativeClamped(t *testing.T) {
	available, extra := Resplit(-5, 10, 5)
	assert.Zero(t, available)
	assert.Zero(t, extra)
}

func TestResplitSumMatchesSeconds(t *testing.T) {
	for _, remaining := range []int64{1, 59, 60, 3599, 7200} {
		available, extra := Resplit(remaining, 42.5, 17.5)
		assert.InDelta(t, float64(remaining)/60, available+extra, 1e-9)
	}
}
