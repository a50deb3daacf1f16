package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeRangeValid(t *testing.T) {
	assert.True(t, TimeRange{StartMin: 0, EndMin: MinutesPerDay}.Valid())
	assert.True(t, TimeRange{StartMin: 540, EndMin: 660}.Valid())
	assert.False(t, TimeRange{StartMin: 660, EndMin: 540}.Valid())
	assert.False(t, TimeRange{StartMin: 540, EndMin: 540}.Valid())
	assert.False(t, TimeRange{StartMin: -1, EndMin: 60}.Valid())
	assert.False(t, TimeRange{StartMin: 0, EndMin: MinutesPerDay + 1}.Valid())
}

func TestTimeRangeOverlaps(t *testing.T) {
	a := TimeRange{StartMin: 540, EndMin: 660}
	assert.True(t, a.Overlaps(TimeRange{StartMin: 600, EndMin: 720}))
	assert.True(t, a.Overlaps(TimeRange{StartMin: 500, EndMin: 550}))
	// Touching boundaries do not overlap.
	assert.False(t, a.Overlaps(TimeRange{StartMin: 660, EndMin: 720}))
	assert.False(t, a.Overlaps(TimeRange{StartMin: 480, EndMin: 540}))
}

func TestTimeRangeContains(t *testing.T) {
	day := TimeRange{StartMin: 540, EndMin: 660}
	assert.True(t, day.Contains(TimeRange{StartMin: 540, EndMin: 660}))
	assert.True(t, day.Contains(TimeRange{StartMin: 570, EndMin: 630}))
	assert.False(t, day.Contains(TimeRange{StartMin: 530, EndMin: 630}))
	assert.False(t, day.Contains(TimeRange{StartMin: 600, EndMin: 690}))
}

func TestTimeRangeString(t *testing.T) {
	assert.Equal(t, "09:00-11:30", TimeRange{StartMin: 540, EndMin: 690}.String())
	assert.Equal(t, "18:05-24:00", TimeRange{StartMin: 1085, EndMin: 1440}.String())
}

func TestRangesOverlap(t *testing.T) {
	assert.False(t, RangesOverlap(nil))
	assert.False(t, RangesOverlap([]TimeRange{
		{StartMin: 540, EndMin: 660},
		{StartMin: 660, EndMin: 720},
	}))
	assert.True(t, RangesOverlap([]TimeRange{
		{StartMin: 660, EndMin: 720},
		{StartMin: 540, EndMin: 661},
	}))
}
