package common

import (
	"sort"
	"time"
)

// Median gets the median number in a slice of numbers. For an even number of
// values the lower of the two middle values is returned, so the result is
// always one of the inputs.
func Median(input []int64) int64 {
	s := make([]int64, len(input))
	copy(s, input)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })

	l := len(s)
	if l == 0 {
		return 0
	}
	return s[(l-1)/2]
}

// MedianTime is Median applied to timestamps at nanosecond resolution.
func MedianTime(input []time.Time) time.Time {
	if len(input) == 0 {
		return time.Time{}
	}
	nanos := make([]int64, len(input))
	for i, t := range input {
		nanos[i] = t.UnixNano()
	}
	return time.Unix(0, Median(nanos)).UTC()
}
