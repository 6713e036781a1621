package dataset

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/liverrisk/pkg/errors"
)

// SplitOptions はTrainTestSplitの設定
type SplitOptions struct {
	// TestSize はテストに回す割合 (0, 1)
	TestSize float64
	// Seed は乱数シード
	Seed uint64
	// Stratify が非nilの場合、このラベルのクラス比率を両側で保つ
	Stratify []float64
}

// Split は訓練とテストの行インデックス
type Split struct {
	Train []int
	Test  []int
}

// TrainTestSplit はn行を訓練とテストに分割する
//
// テスト件数は ceil(TestSize*n)。同じSeedなら同じ分割を返す。
// 層化する場合は各クラスへのテスト件数を最大剰余法で割り当てる。
func TrainTestSplit(n int, opts SplitOptions) (Split, error) {
	if opts.TestSize <= 0 || opts.TestSize >= 1 || math.IsNaN(opts.TestSize) {
		return Split{}, errors.NewValidationError("test_size", "must be in (0, 1)", opts.TestSize)
	}
	if n < 2 {
		return Split{}, errors.NewValidationError("n_samples", "need at least 2 samples to split", n)
	}
	nTest := int(math.Ceil(opts.TestSize * float64(n)))
	if nTest >= n {
		return Split{}, errors.NewValidationError("test_size", "leaves no training samples", opts.TestSize)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	if opts.Stratify == nil {
		perm := rng.Perm(n)
		return Split{Train: perm[nTest:], Test: perm[:nTest]}, nil
	}
	return stratifiedSplit(n, nTest, opts.Stratify, rng)
}

func stratifiedSplit(n, nTest int, y []float64, rng *rand.Rand) (Split, error) {
	if len(y) != n {
		return Split{}, errors.NewDimensionError("TrainTestSplit", n, len(y), 0)
	}

	byClass := map[float64][]int{}
	for i, v := range y {
		if math.IsNaN(v) {
			return Split{}, errors.NewValidationError("stratify", "labels must not be missing", i)
		}
		byClass[v] = append(byClass[v], i)
	}
	classes := make([]float64, 0, len(byClass))
	for c, idx := range byClass {
		if len(idx) < 2 {
			return Split{}, errors.NewValidationError("stratify",
				"the least populated class has only 1 member", c)
		}
		classes = append(classes, c)
	}
	sort.Float64s(classes)
	if nTest > n-len(classes) {
		return Split{}, errors.NewValidationError("test_size",
			"leaves a class without training samples", float64(nTest)/float64(n))
	}

	alloc := allocate(nTest, n, classes, byClass)

	var split Split
	for i, c := range classes {
		idx := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		split.Test = append(split.Test, idx[:alloc[i]]...)
		split.Train = append(split.Train, idx[alloc[i]:]...)
	}
	rng.Shuffle(len(split.Test), func(a, b int) { split.Test[a], split.Test[b] = split.Test[b], split.Test[a] })
	rng.Shuffle(len(split.Train), func(a, b int) { split.Train[a], split.Train[b] = split.Train[b], split.Train[a] })
	return split, nil
}

// allocate distributes nTest test rows over classes proportionally to their
// size, giving leftover rows to the largest fractional remainders.
func allocate(nTest, n int, classes []float64, byClass map[float64][]int) []int {
	alloc := make([]int, len(classes))
	type rem struct {
		i    int
		frac float64
	}
	rems := make([]rem, len(classes))
	used := 0
	for i, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		alloc[i] = int(math.Floor(exact))
		used += alloc[i]
		rems[i] = rem{i, exact - float64(alloc[i])}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for k := 0; used < nTest; k = (k + 1) % len(rems) {
		i := rems[k].i
		if alloc[i] < len(byClass[classes[i]])-1 {
			alloc[i]++
			used++
		}
	}
	return alloc
}
