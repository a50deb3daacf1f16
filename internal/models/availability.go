package models

import (
	"fmt"
	"sort"
	"time"
)

// MinutesPerDay bounds all availability ranges. Ranges never cross midnight.
const MinutesPerDay = 24 * 60

// TimeRange is a minute-of-day interval [StartMin, EndMin).
type TimeRange struct {
	StartMin int `db:"start_min" json:"start_min"`
	EndMin   int `db:"end_min" json:"end_min"`
}

// Valid reports whether the range is well formed.
func (r TimeRange) Valid() bool {
	return r.StartMin >= 0 && r.StartMin < r.EndMin && r.EndMin <= MinutesPerDay
}

// Contains reports whether other lies fully inside r.
func (r TimeRange) Contains(other TimeRange) bool {
	return r.StartMin <= other.StartMin && other.EndMin <= r.EndMin
}

// Overlaps reports whether r and other share at least one minute. Touching
// boundaries do not overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.StartMin < other.EndMin && other.StartMin < r.EndMin
}

// String renders the range as HH:MM-HH:MM for operator-facing diagnostics.
func (r TimeRange) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", r.StartMin/60, r.StartMin%60, r.EndMin/60, r.EndMin%60)
}

// SortRanges orders ranges by start minute in place.
func SortRanges(ranges []TimeRange) {
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].StartMin < ranges[j].StartMin })
}

// RangesOverlap reports whether any two ranges in the set intersect.
func RangesOverlap(ranges []TimeRange) bool {
	sorted := make([]TimeRange, len(ranges))
	copy(sorted, ranges)
	SortRanges(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Overlaps(sorted[i]) {
			return true
		}
	}
	return false
}

// WeeklyAvailability is a recurring allowed range on a weekday (0 = Sunday).
type WeeklyAvailability struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Weekday   int       `db:"weekday" json:"weekday"`
	StartMin  int       `db:"start_min" json:"start_min"`
	EndMin    int       `db:"end_min" json:"end_min"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Range returns the rule's minute range.
func (w WeeklyAvailability) Range() TimeRange {
	return TimeRange{StartMin: w.StartMin, EndMin: w.EndMin}
}

// DateAvailability is a concrete day's allowed range. The presence of any
// row for a (teacher, date) pair replaces the weekly template for that day.
type DateAvailability struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Date      time.Time `db:"date" json:"date"`
	StartMin  int       `db:"start_min" json:"start_min"`
	EndMin    int       `db:"end_min" json:"end_min"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Range returns the override's minute range.
func (d DateAvailability) Range() TimeRange {
	return TimeRange{StartMin: d.StartMin, EndMin: d.EndMin}
}
