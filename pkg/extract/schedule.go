package extract

import (
	"fmt"
	"runtime/debug"
)

// Partition is a contiguous range [Start, End) of label ids handled by one
// worker. The same partitions are used for both phases.
type Partition struct {
	Index int
	Start int
	End   int
}

// Len returns the number of labels in the partition
func (p Partition) Len() int {
	if p.End < p.Start {
		return 0
	}
	return p.End - p.Start
}

// FileOffset is the first output file index of the partition. Every label
// produces VariantsPerLabel files, so offsets never overlap between
// partitions.
func (p Partition) FileOffset() int {
	return p.Start * VariantsPerLabel
}

func (p Partition) String() string {
	return fmt.Sprintf("partition %d [%d, %d)", p.Index, p.Start, p.End)
}

// Partitions splits the label ids 1..totalObjects (background 0 excluded)
// into nthreads contiguous ranges of totalObjects/nthreads ids. The last
// range also takes the remainder. Ranges may be empty when there are more
// workers than labels.
func Partitions(totalObjects, nthreads int) []Partition {
	if nthreads < 1 {
		nthreads = 1
	}
	if totalObjects < 0 {
		totalObjects = 0
	}
	per := totalObjects / nthreads
	spare := totalObjects % nthreads

	parts := make([]Partition, nthreads)
	for t := 0; t < nthreads; t++ {
		start := 1 + t*per
		end := start + per
		if t == nthreads-1 {
			end += spare
		}
		parts[t] = Partition{Index: t, Start: start, End: end}
	}
	return parts
}

type partitionResult[T any] struct {
	index int
	value T
	err   error
}

// runPartitions runs task once per partition, each on its own goroutine,
// and blocks until every one of them has reported. Results are returned in
// partition order whatever order they arrived in. A failing or panicking
// task does not stop the others; the first failure is returned as a
// WorkerError once all partitions have reported.
func runPartitions[T any](parts []Partition, task func(Partition) (T, error), done func(completed, total int)) ([]T, error) {
	results := make(chan partitionResult[T], len(parts))

	for i, p := range parts {
		go func(i int, p Partition) {
			res := partitionResult[T]{index: i}
			defer func() {
				if r := recover(); r != nil {
					res.err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
				}
				results <- res
			}()
			res.value, res.err = task(p)
		}(i, p)
	}

	out := make([]T, len(parts))
	var firstErr error
	for completed := 1; completed <= len(parts); completed++ {
		res := <-results
		if res.err != nil && firstErr == nil {
			firstErr = &WorkerError{Partition: parts[res.index], Err: res.err}
		}
		out[res.index] = res.value
		if done != nil {
			done(completed, len(parts))
		}
	}

	return out, firstErr
}
