package ml

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"credit-risk/internal/common"
	"credit-risk/internal/features"

	"github.com/rs/zerolog/log"
)

// Label is the discrete class predicted for an applicant.
type Label string

const (
	LabelGood Label = "good"
	LabelBad  Label = "bad"
)

// Probabilities holds the class probabilities; Good+Bad is 1 within 1e-6.
type Probabilities struct {
	Good float64 `json:"p_good"`
	Bad  float64 `json:"p_bad"`
}

// Result is one scored submission.
type Result struct {
	Label         Label         `json:"label"`
	Probabilities Probabilities `json:"probabilities"`
	ModelVersion  string        `json:"model_version"`
}

type HealthStatus struct {
	Loaded       bool      `json:"loaded"`
	Backend      string    `json:"backend"`
	ModelVersion string    `json:"model_version"`
	Features     int       `json:"features"`
	LoadedAt     time.Time `json:"loaded_at"`
	ModelAgeSec  float64   `json:"model_age_seconds,omitempty"`
}

type options struct {
	metrics    MetricsInterface
	timeout    time.Duration
	pythonPath string
}

type Option func(*options)

func WithMetrics(m MetricsInterface) Option { return func(o *options) { o.metrics = m } }

// WithTimeout bounds a single subprocess inference call.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithPython pins the interpreter used for ONNX and pickled artifacts.
func WithPython(path string) Option { return func(o *options) { o.pythonPath = path } }

// Evaluator wraps the one classifier loaded for the process lifetime. It holds no
// per-call state, so concurrent calls are safe as long as the classifier's are.
type Evaluator struct {
	clf          Classifier
	metadata     ModelMetadata
	features     []string
	goodIdx      int
	badIdx       int
	metrics      MetricsInterface
	loadedAt     time.Time
	modelCreated time.Time
}

// Load reads the artifact at path once. The backend is picked by extension:
// .json is evaluated natively, .onnx/.pkl/.joblib through Python. Every failure
// wraps ErrModelUnavailable.
func Load(path string, opts ...Option) (*Evaluator, error) {
	o := options{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrModelUnavailable, path)
	}

	var (
		clf  Classifier
		meta *ModelMetadata
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		clf, meta, err = loadNative(path)
	case ".onnx", ".pkl", ".joblib":
		clf, meta, err = loadPython(path, o)
	default:
		err = fmt.Errorf("unsupported artifact type %q", ext)
	}
	if err != nil {
		log.Error().Err(err).Str("model_path", path).Msg("model load failed")
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	e, err := newEvaluator(clf, *meta, o)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	e.modelCreated = info.ModTime()
	if e.metrics != nil {
		e.metrics.MLModelAgeSet(time.Since(e.modelCreated).Seconds())
	}

	log.Info().
		Str("model_path", path).
		Str("backend", meta.Backend).
		Str("version", meta.Version).
		Int("features", len(e.features)).
		Msg("model loaded")
	return e, nil
}

// NewEvaluator wraps an already constructed classifier.
func NewEvaluator(clf Classifier, meta ModelMetadata, opts ...Option) (*Evaluator, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return newEvaluator(clf, meta, o)
}

func newEvaluator(clf Classifier, meta ModelMetadata, o options) (*Evaluator, error) {
	if clf == nil {
		return nil, fmt.Errorf("nil classifier")
	}
	names := clf.FeatureNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("classifier declares no feature names")
	}
	good, bad, err := classIndexes(meta.Classes, meta.BadClass)
	if err != nil {
		return nil, err
	}
	if meta.Version == "" {
		meta.Version = "unknown"
	}
	meta.Features = append([]string(nil), names...)

	return &Evaluator{
		clf:      clf,
		metadata: meta,
		features: meta.Features,
		goodIdx:  good,
		badIdx:   bad,
		metrics:  o.metrics,
		loadedAt: time.Now(),
	}, nil
}

// classIndexes maps the classifier's output order onto good/bad. badClass, when
// set, names the bad-payer label and the other class is good; this is how 0/1
// coded models are read. Otherwise classes may be good/bad or the German-credit
// codes 1 (good) / 2 (bad). With no names the second output is the bad-payer
// probability.
func classIndexes(classes []string, badClass string) (good, bad int, err error) {
	if len(classes) == 0 {
		if badClass != "" {
			return 0, 0, fmt.Errorf("bad_class %q set without classes", badClass)
		}
		return 0, 1, nil
	}
	if len(classes) != 2 {
		return 0, 0, fmt.Errorf("binary classifier expected, got %d classes", len(classes))
	}
	if badClass != "" {
		bad = indexOfClass(classes, badClass)
		if bad < 0 || normClass(classes[0]) == normClass(classes[1]) {
			return 0, 0, fmt.Errorf("bad_class %q not among classes %v", badClass, classes)
		}
		return 1 - bad, bad, nil
	}
	good, bad = -1, -1
	for i, c := range classes {
		switch normClass(c) {
		case "good", "1":
			good = i
		case "bad", "2":
			bad = i
		}
	}
	if good < 0 || bad < 0 || good == bad {
		return 0, 0, fmt.Errorf("cannot map classes %v onto good/bad; set bad_class", classes)
	}
	return good, bad, nil
}

func indexOfClass(classes []string, c string) int {
	for i, x := range classes {
		if normClass(x) == normClass(c) {
			return i
		}
	}
	return -1
}

func normClass(c string) string { return strings.ToLower(strings.TrimSpace(c)) }

func (e *Evaluator) Metadata() ModelMetadata { return e.metadata }

// FeatureNames returns a copy of the columns the classifier expects.
func (e *Evaluator) FeatureNames() []string {
	return append([]string(nil), e.features...)
}

func (e *Evaluator) Health() HealthStatus {
	h := HealthStatus{
		Loaded:       true,
		Backend:      e.metadata.Backend,
		ModelVersion: e.metadata.Version,
		Features:     len(e.features),
		LoadedAt:     e.loadedAt,
	}
	if !e.modelCreated.IsZero() {
		h.ModelAgeSec = time.Since(e.modelCreated).Seconds()
	}
	return h
}

// CheckSchema verifies column count and every column name by position.
func (e *Evaluator) CheckSchema(v features.Vector) error {
	if len(v.Columns) != len(e.features) || len(v.Values) != len(e.features) {
		got := len(v.Columns)
		if len(v.Values) != got {
			got = len(v.Values)
		}
		return &SchemaMismatchError{Expected: len(e.features), Got: got}
	}
	for i, name := range e.features {
		if v.Columns[i] != name {
			return &SchemaMismatchError{
				Expected: len(e.features),
				Got:      len(v.Columns),
				Index:    i,
				Want:     name,
				Have:     v.Columns[i],
			}
		}
	}
	return nil
}

func (e *Evaluator) PredictClass(v features.Vector) (Label, error) {
	r, err := e.Evaluate(v)
	if err != nil {
		return "", err
	}
	return r.Label, nil
}

func (e *Evaluator) PredictProbabilities(v features.Vector) (Probabilities, error) {
	r, err := e.Evaluate(v)
	if err != nil {
		return Probabilities{}, err
	}
	return r.Probabilities, nil
}

// Evaluate checks the row against the schema, scores it and derives the label
// as the more probable class (ties go to good).
func (e *Evaluator) Evaluate(v features.Vector) (Result, error) {
	if e == nil {
		return Result{}, fmt.Errorf("%w: evaluator is nil", ErrModelUnavailable)
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	if err := e.CheckSchema(v); err != nil {
		if e.metrics != nil {
			e.metrics.MLSchemaMismatchInc()
		}
		log.Warn().Err(err).Msg("rejected feature row")
		return Result{}, err
	}

	raw, err := e.clf.PredictProba(v.Values)
	if err != nil {
		e.fail()
		return Result{}, fmt.Errorf("%w: %w", ErrInferenceError, err)
	}

	probs, err := e.normalize(raw)
	if err != nil {
		e.fail()
		log.Error().Err(err).Floats64("probabilities", raw).Msg("invalid classifier output")
		return Result{}, fmt.Errorf("%w: %w", ErrInferenceError, err)
	}

	label := LabelGood
	if probs.Bad > probs.Good {
		label = LabelBad
	}

	if e.metrics != nil {
		e.metrics.MLPredictionsInc(string(label))
		e.metrics.MLPredictionScoresObserve(probs.Bad)
	}

	log.Debug().
		Str("label", string(label)).
		Float64("p_good", probs.Good).
		Float64("p_bad", probs.Bad).
		Msg("prediction successful")

	return Result{Label: label, Probabilities: probs, ModelVersion: e.metadata.Version}, nil
}

func (e *Evaluator) fail() {
	if e.metrics != nil {
		e.metrics.MLFailuresInc()
	}
}

func (e *Evaluator) normalize(raw []float64) (Probabilities, error) {
	if len(raw) != 2 {
		return Probabilities{}, fmt.Errorf("expected 2 probabilities, got %d", len(raw))
	}
	for i, p := range raw {
		if math.IsNaN(p) || p < 0 || p > 1+common.ProbabilityTolerance {
			return Probabilities{}, fmt.Errorf("invalid probability %d: %f", i, p)
		}
	}
	sum := raw[0] + raw[1]
	if sum <= 0 {
		return Probabilities{}, fmt.Errorf("probabilities sum to %f", sum)
	}
	return Probabilities{
		Good: raw[e.goodIdx] / sum,
		Bad:  raw[e.badIdx] / sum,
	}, nil
}
