package core

import (
	"sort"
	"strings"
	"sync"
)

// parallelSortThreshold is the child list length above which sorting is
// performed concurrently. Below it, the goroutine handoff costs more than it
// saves.
const parallelSortThreshold = 100

// CompareNames orders child names case-insensitively and lexicographically,
// with ties between case-insensitive equals broken by code-point order. This
// is the one ordering used everywhere in the directory map; it is pinned by
// tests, and natural (numeric-run) ordering is deliberately not used, so
// "a10" sorts before "a2".
func CompareNames(a, b string) int {
	foldedA := strings.ToLower(a)
	foldedB := strings.ToLower(b)
	if foldedA != foldedB {
		return strings.Compare(foldedA, foldedB)
	}
	return strings.Compare(a, b)
}

// SortNames sorts a child name list in place under CompareNames. Lists
// longer than parallelSortThreshold are sorted with a concurrent merge sort;
// shorter lists are sorted sequentially.
func SortNames(names []string) {
	if len(names) <= parallelSortThreshold {
		sortNamesSequential(names)
		return
	}
	parallelMergeSort(names, 2)
}

// sortNamesSequential sorts a name list in place sequentially.
func sortNamesSequential(names []string) {
	sort.Slice(names, func(i, j int) bool {
		return CompareNames(names[i], names[j]) < 0
	})
}

// parallelMergeSort sorts a name list by concurrently sorting halves and
// merging the results. The depth parameter bounds goroutine fan-out to 2^n.
func parallelMergeSort(names []string, depth int) {
	// At the recursion floor (or for short segments), sort sequentially.
	if depth == 0 || len(names) <= parallelSortThreshold {
		sortNamesSequential(names)
		return
	}

	// Copy and sort both halves concurrently.
	middle := len(names) / 2
	left := make([]string, middle)
	right := make([]string, len(names)-middle)
	copy(left, names[:middle])
	copy(right, names[middle:])
	var wait sync.WaitGroup
	wait.Add(2)
	go func() {
		defer wait.Done()
		parallelMergeSort(left, depth-1)
	}()
	go func() {
		defer wait.Done()
		parallelMergeSort(right, depth-1)
	}()
	wait.Wait()

	// Merge the sorted halves back into the target slice.
	i, j, k := 0, 0, 0
	for i < len(left) && j < len(right) {
		if CompareNames(left[i], right[j]) <= 0 {
			names[k] = left[i]
			i++
		} else {
			names[k] = right[j]
			j++
		}
		k++
	}
	for i < len(left) {
		names[k] = left[i]
		i++
		k++
	}
	for j < len(right) {
		names[k] = right[j]
		j++
		k++
	}
}
