package common

import "sort"

// Median returns the median of a slice of int64. It is used to compute
// consensus timestamps from famous-witness perspectives: a minority of
// skewed clocks cannot move a median.
func Median(input []int64) (median int64) {
	s := make([]int64, len(input))
	copy(s, input)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })

	l := len(s)
	if l == 0 {
		return 0
	} else if l%2 == 0 {
		mid := l/2 - 1
		median = (s[mid] + s[mid+1]) / 2
	} else {
		median = s[l/2]
	}

	return median
}
