// Package batch partitions an ordered test collection into fixed-size
// contiguous batches.
package batch

import "fmt"

// Split partitions items into batches of size elements each. Every batch
// except possibly the last is full, concatenating the batches reproduces the
// input exactly, and batch N+1 starts where batch N ended. A non-positive
// size is an input error, not something to clamp.
func Split[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}
	var batches [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches, nil
}
