package batch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		items     int
		size      int
		wantCount int
		wantLast  int
	}{
		{name: "even split", items: 6, size: 2, wantCount: 3, wantLast: 2},
		{name: "short final batch", items: 7, size: 3, wantCount: 3, wantLast: 1},
		{name: "single batch", items: 2, size: 10, wantCount: 1, wantLast: 2},
		{name: "size one", items: 4, size: 1, wantCount: 4, wantLast: 1},
		{name: "empty collection", items: 0, size: 2, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]int, tt.items)
			for i := range items {
				items[i] = i
			}

			batches, err := Split(items, tt.size)
			require.NoError(t, err)
			require.Len(t, batches, tt.wantCount)

			// Concatenating the batches must reconstruct the input exactly.
			flat := []int{}
			for i, b := range batches {
				if i < len(batches)-1 {
					require.Len(t, b, tt.size)
				} else {
					require.Len(t, b, tt.wantLast)
				}
				flat = append(flat, b...)
			}
			require.Equal(t, items, flat)
		})
	}
}

func TestSplitInvalidSize(t *testing.T) {
	_, err := Split([]int{1, 2, 3}, 0)
	require.Error(t, err)

	_, err = Split([]int{1, 2, 3}, -1)
	require.Error(t, err)
}
