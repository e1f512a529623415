package extract

import (
	"sort"

	"poreprep/internal/models"
)

// MergeExtents concatenates the per-worker extent lists and orders them by
// label, so that with partitions covering 1..N the extent of label id sits
// at index id-1.
func MergeExtents(lists [][]models.Extent) []models.Extent {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	merged := make([]models.Extent, 0, n)
	for _, l := range lists {
		merged = append(merged, l...)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Label < merged[j].Label
	})
	return merged
}

// GlobalPatchSize is the largest side over all extents. Every patch in a
// run uses it, so one outsized object enlarges all of them.
func GlobalPatchSize(extents []models.Extent) int {
	size := 0
	for _, e := range extents {
		if s := e.Side(); s > size {
			size = s
		}
	}
	return size
}
