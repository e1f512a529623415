package extract

import "fmt"

// WorkerError is an unexpected failure inside a partition task. It aborts
// the run; files already written by other partitions are left as they are.
type WorkerError struct {
	Partition Partition
	Err       error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker for %s failed: %v", e.Partition, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
