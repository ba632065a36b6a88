package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// pythonClassifier scores rows with an ONNX or pickled scikit-learn model through
// a Python subprocess. The interpreter is resolved once at load time; each call
// runs the inference script with a timeout.
type pythonClassifier struct {
	modelPath  string
	pythonPath string
	scriptPath string
	timeout    time.Duration
	names      []string
	classes    []string // output order agreed at load time
	metrics    MetricsInterface
}

type inferenceRequest struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

type inferenceResponse struct {
	Probabilities []float64 `json:"probabilities"`
	Classes       []string  `json:"classes,omitempty"`
	Error         string    `json:"error,omitempty"`
}

func loadPython(path string, o options) (Classifier, *ModelMetadata, error) {
	meta, err := loadModelMetadata(path)
	if err != nil {
		return nil, nil, fmt.Errorf("model metadata: %w", err)
	}
	if len(meta.Features) == 0 {
		return nil, nil, fmt.Errorf("model metadata lists no features")
	}

	module := requiredModule(path)
	pythonPath := o.pythonPath
	if pythonPath == "" {
		if pythonPath, err = findPython(module); err != nil {
			return nil, nil, err
		}
	}

	// A standalone inference.py next to the model overrides the embedded script.
	scriptPath := filepath.Join(filepath.Dir(path), "inference.py")
	if _, err := os.Stat(scriptPath); err != nil {
		scriptPath = ""
	}

	timeout := o.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	p := &pythonClassifier{
		modelPath:  path,
		pythonPath: pythonPath,
		scriptPath: scriptPath,
		timeout:    timeout,
		names:      meta.Features,
		metrics:    o.metrics,
	}

	modelClasses, err := p.healthCheck()
	if err != nil {
		return nil, nil, fmt.Errorf("model health check failed: %w", err)
	}
	if err := reconcileClasses(meta, modelClasses); err != nil {
		return nil, nil, err
	}
	if len(meta.Classes) == 0 {
		log.Warn().Str("model_path", path).Msg("model reports no class labels, reading second output as bad payer")
	}
	p.classes = meta.Classes

	meta.Backend = "python"
	return p, meta, nil
}

// reconcileClasses takes the output order the model itself reports. A sidecar
// listing classes must agree with it; otherwise probabilities would be read
// against the wrong labels.
func reconcileClasses(meta *ModelMetadata, modelClasses []string) error {
	if len(modelClasses) == 0 {
		return nil
	}
	if len(meta.Classes) == 0 {
		meta.Classes = append([]string(nil), modelClasses...)
		return nil
	}
	if !sameClasses(meta.Classes, modelClasses) {
		return fmt.Errorf("metadata classes %v disagree with model classes %v", meta.Classes, modelClasses)
	}
	return nil
}

func sameClasses(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if normClass(a[i]) != normClass(b[i]) {
			return false
		}
	}
	return true
}

func (p *pythonClassifier) FeatureNames() []string { return p.names }

func (p *pythonClassifier) PredictProba(row []float64) ([]float64, error) {
	resp, err := p.infer(row)
	if err != nil {
		return nil, err
	}
	if len(resp.Classes) > 0 && len(p.classes) > 0 && !sameClasses(resp.Classes, p.classes) {
		return nil, fmt.Errorf("model reported classes %v, loaded with %v", resp.Classes, p.classes)
	}
	return resp.Probabilities, nil
}

func (p *pythonClassifier) infer(row []float64) (inferenceResponse, error) {
	if len(row) != len(p.names) {
		return inferenceResponse{}, fmt.Errorf("expected %d features, got %d", len(p.names), len(row))
	}

	reqJSON, err := json.Marshal(inferenceRequest{Columns: p.names, Rows: [][]float64{row}})
	if err != nil {
		return inferenceResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.pythonPath, p.args()...)
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			if p.metrics != nil {
				p.metrics.MLTimeoutsInc()
			}
			return inferenceResponse{}, fmt.Errorf("prediction timeout after %v", p.timeout)
		}

		// The script reports its own failures as JSON before exiting non-zero.
		var resp inferenceResponse
		if json.Unmarshal(stdout.Bytes(), &resp) == nil && resp.Error != "" {
			return inferenceResponse{}, fmt.Errorf("python inference error: %s", resp.Error)
		}

		log.Error().
			Err(err).
			Str("python_path", p.pythonPath).
			Str("model_path", p.modelPath).
			Str("stderr", stderr.String()).
			Dur("timeout", p.timeout).
			Msg("python inference execution failed")
		return inferenceResponse{}, fmt.Errorf("python inference failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	var resp inferenceResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return inferenceResponse{}, fmt.Errorf("failed to parse response: %w, stdout: %s", err, stdout.String())
	}
	if resp.Error != "" {
		return inferenceResponse{}, fmt.Errorf("python inference error: %s", resp.Error)
	}
	return resp, nil
}

func (p *pythonClassifier) args() []string {
	if p.scriptPath != "" {
		return []string{p.scriptPath, p.modelPath}
	}
	return []string{"-c", inferenceScript, p.modelPath}
}

// healthCheck scores an all-zero row so a broken runtime fails at startup, and
// returns the class labels the model reports for its outputs.
func (p *pythonClassifier) healthCheck() ([]string, error) {
	resp, err := p.infer(make([]float64, len(p.names)))
	if err != nil {
		return nil, err
	}
	if len(resp.Probabilities) != 2 {
		return nil, fmt.Errorf("expected 2 probabilities, got %d", len(resp.Probabilities))
	}
	if len(resp.Classes) > 0 && len(resp.Classes) != len(resp.Probabilities) {
		return nil, fmt.Errorf("model reports %d classes for %d probabilities", len(resp.Classes), len(resp.Probabilities))
	}
	return resp.Classes, nil
}

func requiredModule(modelPath string) string {
	if strings.EqualFold(filepath.Ext(modelPath), ".onnx") {
		return "onnxruntime"
	}
	return "joblib"
}

// findPython prefers an active or project-local virtualenv, then PATH, and only
// accepts an interpreter that can import module.
func findPython(module string) (string, error) {
	var candidates []string

	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		candidates = append(candidates,
			filepath.Join(venv, "bin", "python3"),
			filepath.Join(venv, "bin", "python"),
			filepath.Join(venv, "Scripts", "python.exe"),
		)
	}

	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		for _, root := range []string{execDir, filepath.Dir(execDir)} {
			candidates = append(candidates,
				filepath.Join(root, "venv", "bin", "python3"),
				filepath.Join(root, ".venv", "bin", "python3"),
			)
		}
	}

	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			candidates = append(candidates, path)
		}
	}

	probe := fmt.Sprintf("import sys, %s; print('Python', sys.version)", module)
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		out, err := exec.Command(candidate, "-c", probe).Output()
		if err == nil && strings.Contains(string(out), "Python 3") {
			log.Info().Str("python_path", candidate).Str("module", module).Msg("using python runtime")
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no Python 3 interpreter with %s found", module)
}

const inferenceScript = `
import json
import sys

def respond(payload, code=0):
    print(json.dumps(payload))
    sys.exit(code)

def main():
    if len(sys.argv) < 2:
        respond({"error": "usage: inference <model_path>"}, 1)
    model_path = sys.argv[-1]
    request = json.load(sys.stdin)
    columns = request["columns"]
    rows = request["rows"]

    if model_path.lower().endswith(".onnx"):
        try:
            import numpy as np
            import onnxruntime as ort
        except ImportError as e:
            respond({"error": "onnxruntime not installed: %s" % e}, 1)
        session = ort.InferenceSession(model_path)
        input_name = session.get_inputs()[0].name
        outputs = session.run(None, {input_name: np.array(rows, dtype=np.float32)})
        probs = outputs[-1][0]
        if isinstance(probs, dict):
            classes = [str(k) for k in probs.keys()]
            probabilities = [float(v) for v in probs.values()]
        else:
            classes = []
            probabilities = [float(v) for v in probs]
    else:
        try:
            import joblib
        except ImportError as e:
            respond({"error": "joblib not installed: %s" % e}, 1)
        model = joblib.load(model_path)
        try:
            import pandas as pd
            data = pd.DataFrame(rows, columns=columns)
        except ImportError:
            data = rows
        probabilities = [float(v) for v in model.predict_proba(data)[0]]
        classes = [str(c) for c in getattr(model, "classes_", [])]

    respond({"probabilities": probabilities, "classes": classes})

try:
    main()
except SystemExit:
    raise
except Exception as e:
    respond({"error": str(e)}, 1)
`
