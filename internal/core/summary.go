package core

import (
	"sort"
	"strconv"
)

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// MonthName returns the English month name, or the raw number when month
// is outside 1-12.
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return strconv.Itoa(month)
	}
	return monthNames[month-1]
}

// MonthLabel builds the navigation label, e.g. "March 2024".
func MonthLabel(year, month int) string {
	return MonthName(month) + " " + strconv.Itoa(year)
}

// MonthIndex is ordered newest first.
type MonthIndex []MonthEntry

// SortDescending stable-sorts by year then month, newest first.
func (idx MonthIndex) SortDescending() {
	sort.SliceStable(idx, func(i, j int) bool {
		if idx[i].Year != idx[j].Year {
			return idx[i].Year > idx[j].Year
		}
		return idx[i].Month > idx[j].Month
	})
}

// Find returns the position of key, or -1.
func (idx MonthIndex) Find(key MonthKey) int {
	for i := range idx {
		if idx[i].Year == key.Year && idx[i].Month == key.Month {
			return i
		}
	}
	return -1
}

// Clone copies the index. Entries are copied by value; SummaryContent
// pointers are shared since contents are never mutated once set.
func (idx MonthIndex) Clone() MonthIndex {
	if idx == nil {
		return nil
	}
	out := make(MonthIndex, len(idx))
	copy(out, idx)
	return out
}
