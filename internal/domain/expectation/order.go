package expectation

import "sort"

// Less reports whether a is evaluated before b: priority descending, then
// create time ascending. ID ascending keeps the order total when both tie.
func Less(a, b *Expectation) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreateTime.Equal(b.CreateTime) {
		return a.CreateTime.Before(b.CreateTime)
	}
	return a.ID < b.ID
}

// Sort orders expectations in dispatch order, in place.
func Sort(list []*Expectation) {
	sort.SliceStable(list, func(i, j int) bool {
		return Less(list[i], list[j])
	})
}

// SortActive returns clones of the active expectations in dispatch order.
func SortActive(list []*Expectation) []*Expectation {
	out := make([]*Expectation, 0, len(list))
	for _, e := range list {
		if e.Activate {
			out = append(out, e.Clone())
		}
	}
	Sort(out)
	return out
}

// IsSorted reports whether list is already in dispatch order.
func IsSorted(list []*Expectation) bool {
	for i := 1; i < len(list); i++ {
		if Less(list[i], list[i-1]) {
			return false
		}
	}
	return true
}
