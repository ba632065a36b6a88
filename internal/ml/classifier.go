// Package ml owns the pre-trained credit classifier: it loads the serialized
// artifact once, checks every feature row against the classifier's schema and
// turns raw class scores into a good/bad payer label with calibrated probabilities.
//
// Two artifact backends are supported: a native JSON tree-ensemble or logistic
// model evaluated in-process, and ONNX / pickled scikit-learn models evaluated by
// an external Python runtime driven as a subprocess.
package ml

// Classifier is the opaque model behind the evaluator.
type Classifier interface {
	// FeatureNames returns the ordered column names the model was fit on.
	FeatureNames() []string

	// PredictProba returns one probability per class, in metadata class order.
	PredictProba(row []float64) ([]float64, error)
}

// MetricsInterface defines metrics methods needed by the evaluator
type MetricsInterface interface {
	MLPredictionsInc(label string)
	MLFailuresInc()
	MLSchemaMismatchInc()
	MLLatencyObserve(float64)
	MLModelAgeSet(float64)
	MLPredictionScoresObserve(float64)
	MLTimeoutsInc()
}
