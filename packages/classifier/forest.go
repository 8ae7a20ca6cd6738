package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"trinayana/packages/features"
)

const leaf = -1

// ForestFile is the JSON export of a fitted random forest: per tree the
// flattened node arrays of a CART decision tree.
type ForestFile struct {
	FeatureNames []string   `json:"feature_names"`
	Classes      []int      `json:"classes"`
	Trees        []TreeFile `json:"trees"`
}

type TreeFile struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

type tree struct {
	left, right []int
	feature     []int
	threshold   []float64
	proba       [][]float64 // per node, normalized class distribution
}

// Forest averages the leaf class probabilities of its trees, the way a
// random forest votes.
type Forest struct {
	classes []int
	trees   []tree
}

func LoadForest(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var file ForestFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode model file %s: %w", path, err)
	}
	return NewForest(file)
}

// NewForest validates a forest export. The feature names must match the
// extractor's column layout exactly.
func NewForest(file ForestFile) (*Forest, error) {
	if len(file.FeatureNames) != features.NumFeatures {
		return nil, fmt.Errorf("model expects %d features, extractor produces %d", len(file.FeatureNames), features.NumFeatures)
	}
	for i, name := range file.FeatureNames {
		if name != features.Names[i] {
			return nil, fmt.Errorf("model column %d is %q, want %q", i, name, features.Names[i])
		}
	}
	if len(file.Classes) == 0 {
		return nil, errors.New("model has no classes")
	}
	if len(file.Trees) == 0 {
		return nil, errors.New("model has no trees")
	}

	f := &Forest{classes: file.Classes, trees: make([]tree, 0, len(file.Trees))}
	for i, tf := range file.Trees {
		t, err := buildTree(tf, len(file.Classes))
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		f.trees = append(f.trees, t)
	}
	return f, nil
}

func buildTree(tf TreeFile, numClasses int) (tree, error) {
	n := len(tf.ChildrenLeft)
	if n == 0 {
		return tree{}, errors.New("empty tree")
	}
	if len(tf.ChildrenRight) != n || len(tf.Feature) != n || len(tf.Threshold) != n || len(tf.Value) != n {
		return tree{}, errors.New("node arrays differ in length")
	}

	t := tree{
		left:      tf.ChildrenLeft,
		right:     tf.ChildrenRight,
		feature:   tf.Feature,
		threshold: tf.Threshold,
		proba:     make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		l, r := tf.ChildrenLeft[i], tf.ChildrenRight[i]
		if l == leaf {
			if len(tf.Value[i]) != numClasses {
				return tree{}, fmt.Errorf("node %d has %d class weights, want %d", i, len(tf.Value[i]), numClasses)
			}
			t.proba[i] = normalize(tf.Value[i])
			continue
		}
		// Children always come after their parent, which rules out cycles.
		if l <= i || r <= i || l >= n || r >= n {
			return tree{}, fmt.Errorf("node %d has invalid children %d/%d", i, l, r)
		}
		if f := tf.Feature[i]; f < 0 || f >= features.NumFeatures {
			return tree{}, fmt.Errorf("node %d splits on unknown feature %d", i, f)
		}
	}
	return t, nil
}

func normalize(weights []float64) []float64 {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	out := make([]float64, len(weights))
	if sum == 0 {
		return out
	}
	for i, w := range weights {
		out[i] = w / sum
	}
	return out
}

func (f *Forest) Name() string { return "forest" }

func (f *Forest) Predict(_ context.Context, rec features.Record) (int, error) {
	proba := f.PredictProba(rec.Vector())
	best := 0
	for i, p := range proba {
		if p > proba[best] {
			best = i
		}
	}
	return f.classes[best], nil
}

// PredictProba returns the mean class distribution over all trees, in the
// order of the model's classes.
func (f *Forest) PredictProba(row []float64) []float64 {
	sum := make([]float64, len(f.classes))
	for _, t := range f.trees {
		for i, p := range t.leafProba(row) {
			sum[i] += p
		}
	}
	for i := range sum {
		sum[i] /= float64(len(f.trees))
	}
	return sum
}

func (t tree) leafProba(row []float64) []float64 {
	node := 0
	for t.left[node] != leaf {
		if row[t.feature[node]] <= t.threshold[node] {
			node = t.left[node]
		} else {
			node = t.right[node]
		}
	}
	return t.proba[node]
}
