package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

const (
	nativeFormat = "credit-model/v1"
	treeLeaf     = -1
)

// nativeArtifact is the JSON export of a fitted tree ensemble or logistic model.
// Trees use the scikit-learn node layout: leaves have left == right == -1 and carry
// a per-class value, split nodes send row[feature] <= threshold to the left child.
type nativeArtifact struct {
	Format string `json:"format"`
	ModelMetadata
	Trees    []treeSpec    `json:"trees,omitempty"`
	Logistic *logisticSpec `json:"logistic,omitempty"`
}

type treeSpec struct {
	Nodes []nodeSpec `json:"nodes"`
}

type nodeSpec struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

type logisticSpec struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

func loadNative(path string) (Classifier, *ModelMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read artifact: %w", err)
	}

	var art nativeArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, nil, fmt.Errorf("parse artifact: %w", err)
	}
	if art.Format != nativeFormat {
		return nil, nil, fmt.Errorf("unsupported artifact format %q", art.Format)
	}
	if len(art.Features) == 0 {
		return nil, nil, fmt.Errorf("artifact declares no features")
	}
	nClasses := len(art.Classes)
	if nClasses == 0 {
		nClasses = 2
	}

	meta := art.ModelMetadata
	var clf Classifier
	switch {
	case len(art.Trees) > 0 && art.Logistic != nil:
		return nil, nil, fmt.Errorf("artifact carries both trees and logistic coefficients")
	case len(art.Trees) > 0:
		f, err := newForest(art.Features, nClasses, art.Trees)
		if err != nil {
			return nil, nil, err
		}
		clf = f
		meta.Backend = "forest"
	case art.Logistic != nil:
		l, err := newLogistic(art.Features, nClasses, art.Logistic)
		if err != nil {
			return nil, nil, err
		}
		clf = l
		meta.Backend = "logistic"
	default:
		return nil, nil, fmt.Errorf("artifact carries no model")
	}
	return clf, &meta, nil
}

type forest struct {
	names    []string
	nClasses int
	trees    [][]nodeSpec
}

func newForest(names []string, nClasses int, specs []treeSpec) (*forest, error) {
	f := &forest{names: names, nClasses: nClasses}
	for t, spec := range specs {
		nodes := make([]nodeSpec, len(spec.Nodes))
		copy(nodes, spec.Nodes)
		if len(nodes) == 0 {
			return nil, fmt.Errorf("tree %d is empty", t)
		}
		for i := range nodes {
			n := &nodes[i]
			if n.Left == treeLeaf && n.Right == treeLeaf {
				dist, err := leafDistribution(n.Value, nClasses)
				if err != nil {
					return nil, fmt.Errorf("tree %d node %d: %w", t, i, err)
				}
				n.Value = dist
				continue
			}
			if n.Feature < 0 || n.Feature >= len(names) {
				return nil, fmt.Errorf("tree %d node %d: feature %d out of range", t, i, n.Feature)
			}
			// children always follow their parent, which rules out cycles
			if n.Left <= i || n.Left >= len(nodes) || n.Right <= i || n.Right >= len(nodes) {
				return nil, fmt.Errorf("tree %d node %d: invalid children %d/%d", t, i, n.Left, n.Right)
			}
			if math.IsNaN(n.Threshold) {
				return nil, fmt.Errorf("tree %d node %d: NaN threshold", t, i)
			}
		}
		f.trees = append(f.trees, nodes)
	}
	return f, nil
}

func leafDistribution(value []float64, nClasses int) ([]float64, error) {
	if len(value) != nClasses {
		return nil, fmt.Errorf("leaf has %d values for %d classes", len(value), nClasses)
	}
	var sum float64
	for _, v := range value {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid leaf value %f", v)
		}
		sum += v
	}
	if sum == 0 {
		return nil, fmt.Errorf("leaf values sum to zero")
	}
	dist := make([]float64, nClasses)
	for i, v := range value {
		dist[i] = v / sum
	}
	return dist, nil
}

func (f *forest) FeatureNames() []string { return f.names }

// PredictProba averages the leaf class distributions over all trees.
func (f *forest) PredictProba(row []float64) ([]float64, error) {
	if len(row) != len(f.names) {
		return nil, fmt.Errorf("expected %d features, got %d", len(f.names), len(row))
	}
	out := make([]float64, f.nClasses)
	for _, nodes := range f.trees {
		i := 0
		for nodes[i].Left != treeLeaf {
			if row[nodes[i].Feature] <= nodes[i].Threshold {
				i = nodes[i].Left
			} else {
				i = nodes[i].Right
			}
		}
		for c, p := range nodes[i].Value {
			out[c] += p
		}
	}
	for c := range out {
		out[c] /= float64(len(f.trees))
	}
	return out, nil
}

type logistic struct {
	names     []string
	intercept float64
	coef      []float64
}

func newLogistic(names []string, nClasses int, spec *logisticSpec) (*logistic, error) {
	if nClasses != 2 {
		return nil, fmt.Errorf("logistic model needs 2 classes, got %d", nClasses)
	}
	if len(spec.Coefficients) != len(names) {
		return nil, fmt.Errorf("%d coefficients for %d features", len(spec.Coefficients), len(names))
	}
	for i, c := range spec.Coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("coefficient %d is not finite", i)
		}
	}
	return &logistic{names: names, intercept: spec.Intercept, coef: spec.Coefficients}, nil
}

func (l *logistic) FeatureNames() []string { return l.names }

// PredictProba returns [1-p, p] where p is the probability of the second class.
func (l *logistic) PredictProba(row []float64) ([]float64, error) {
	if len(row) != len(l.coef) {
		return nil, fmt.Errorf("expected %d features, got %d", len(l.coef), len(row))
	}
	z := l.intercept
	for i, x := range row {
		z += l.coef[i] * x
	}
	p := sigmoid(z)
	return []float64{1 - p, p}, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
