package ml

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// ForestConfig controls random forest training.
type ForestConfig struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	Seed            int64
	Workers         int // 0 means GOMAXPROCS
}

func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:           100,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Seed:            42,
	}
}

// TreeNode is a flat node; Feature < 0 marks a leaf.
type TreeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

type RegressionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

// Predict walks the tree from the root. Samples with x[f] <= threshold go left.
func (t *RegressionTree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// RandomForest is a bagged ensemble of CART regression trees.
type RandomForest struct {
	Features    int              `json:"features"`
	Trees       []RegressionTree `json:"trees"`
	Importances []float64        `json:"importances"`
}

// FitForest trains the ensemble. Each tree draws its own bootstrap sample
// from a source seeded with cfg.Seed + tree index, so results do not depend
// on scheduling.
func FitForest(ctx context.Context, x [][]float64, y []float64, cfg ForestConfig) (*RandomForest, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("fit forest: %d rows, %d targets", len(x), len(y))
	}
	if cfg.Trees <= 0 {
		return nil, fmt.Errorf("fit forest: trees must be positive")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := len(x[0])

	trees := make([]RegressionTree, cfg.Trees)
	importances := make([][]float64, cfg.Trees)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < cfg.Trees; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
			idx := make([]int, len(x))
			for k := range idx {
				idx[k] = rng.Intn(len(x))
			}
			b := &treeBuilder{x: x, y: y, cfg: cfg, importance: make([]float64, p)}
			b.build(idx, 0)
			trees[i] = RegressionTree{Nodes: b.nodes}
			importances[i] = normalize(b.importance)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	total := make([]float64, p)
	for _, imp := range importances {
		for j, v := range imp {
			total[j] += v
		}
	}
	total = normalize(total)
	if sum(total) == 0 {
		// constant target: no split reduced impurity
		for j := range total {
			total[j] = 1 / float64(p)
		}
	}
	return &RandomForest{Features: p, Trees: trees, Importances: total}, nil
}

// TreePredictions returns each tree's output for x.
func (f *RandomForest) TreePredictions(x []float64) []float64 {
	out := make([]float64, len(f.Trees))
	for i := range f.Trees {
		out[i] = f.Trees[i].Predict(x)
	}
	return out
}

// Predict returns the ensemble mean.
func (f *RandomForest) Predict(x []float64) float64 {
	return stat.Mean(f.TreePredictions(x), nil)
}

type treeBuilder struct {
	x          [][]float64
	y          []float64
	cfg        ForestConfig
	nodes      []TreeNode
	importance []float64
}

// build grows the subtree for idx and returns its node index.
func (b *treeBuilder) build(idx []int, depth int) int {
	var s, sq float64
	for _, i := range idx {
		s += b.y[i]
		sq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	node := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Feature: -1, Value: s / n})

	parentSSE := sq - s*s/n
	if depth >= b.cfg.MaxDepth || len(idx) < b.cfg.MinSamplesSplit || parentSSE <= 1e-12 {
		return node
	}

	feature, threshold, gain, ok := b.bestSplit(idx, s, parentSSE)
	if !ok {
		return node
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importance[feature] += gain

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[node] = TreeNode{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: s / n}
	return node
}

// bestSplit scans every feature for the threshold with the largest SSE decrease.
func (b *treeBuilder) bestSplit(idx []int, total, parentSSE float64) (int, float64, float64, bool) {
	minLeaf := max(b.cfg.MinSamplesLeaf, 1)
	n := len(idx)
	sorted := make([]int, n)

	bestFeature, bestThreshold, bestGain := -1, 0.0, 0.0
	for f := 0; f < len(b.x[idx[0]]); f++ {
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })

		var ls, lsq float64
		var rsq float64
		for _, i := range sorted {
			rsq += b.y[i] * b.y[i]
		}
		for k := 1; k < n; k++ {
			yi := b.y[sorted[k-1]]
			ls += yi
			lsq += yi * yi
			rsq -= yi * yi

			lo, hi := b.x[sorted[k-1]][f], b.x[sorted[k]][f]
			if lo == hi || k < minLeaf || n-k < minLeaf {
				continue
			}
			rs := total - ls
			nl, nr := float64(k), float64(n-k)
			childSSE := (lsq - ls*ls/nl) + (rsq - rs*rs/nr)
			gain := parentSSE - childSSE
			if gain > bestGain+1e-12 {
				mid := (lo + hi) / 2
				if mid == hi {
					mid = lo
				}
				bestFeature, bestThreshold, bestGain = f, mid, gain
			}
		}
	}
	return bestFeature, bestThreshold, bestGain, bestFeature >= 0
}

func normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	total := sum(v)
	if total == 0 {
		return out
	}
	for i, x := range v {
		out[i] = x / total
	}
	return out
}

func sum(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s
}
