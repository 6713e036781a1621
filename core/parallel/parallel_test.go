package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestChunks(t *testing.T) {
	tests := []struct {
		name    string
		items   int
		workers int
		want    int
	}{
		{"empty", 0, 4, 0},
		{"fewer items than workers", 3, 8, 3},
		{"even split", 8, 4, 4},
		{"uneven split", 10, 4, 4},
		{"single worker", 10, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunks(tt.items, tt.workers)
			if len(got) != tt.want {
				t.Fatalf("len(chunks) = %d, want %d (%v)", len(got), tt.want, got)
			}
			covered := 0
			for i, c := range got {
				if i > 0 && c[0] != got[i-1][1] {
					t.Errorf("chunk %d starts at %d, previous ended at %d", i, c[0], got[i-1][1])
				}
				covered += c[1] - c[0]
			}
			if covered != tt.items {
				t.Errorf("covered %d items, want %d", covered, tt.items)
			}
		})
	}
}

func TestParallelizeCoversEveryIndex(t *testing.T) {
	const n = 1000
	seen := make([]int32, n)
	Parallelize(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})
	for i, c := range seen {
		if c != 1 {
			t.Fatalf("index %d visited %d times", i, c)
		}
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		if start != 0 || end != 10 {
			t.Errorf("got range [%d, %d), want [0, 10)", start, end)
		}
	})
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}

	ParallelizeWithThreshold(0, 100, func(start, end int) {
		t.Error("fn must not be called for zero items")
	})
}

func TestForEachChunkReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	err := ForEachChunk(context.Background(), 100, 4, func(_ context.Context, start, _ int) error {
		if start == 0 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("ForEachChunk() = %v, want boom", err)
	}
}

func TestForEachChunkCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ForEachChunk(ctx, 10, 2, func(context.Context, int, int) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ForEachChunk() = %v, want context.Canceled", err)
	}
}
