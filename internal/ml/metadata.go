package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"credit-risk/internal/common"
)

// ModelMetadata contains information about the loaded model
type ModelMetadata struct {
	Version       string    `json:"version"`
	TrainedAt     time.Time `json:"trained_at"`
	Features      []string  `json:"features"`
	Classes       []string  `json:"classes"`
	BadClass      string    `json:"bad_class,omitempty"`
	Accuracy      float64   `json:"accuracy,omitempty"`
	TrainingRows  int       `json:"training_rows,omitempty"`
	ValidationAcc float64   `json:"validation_accuracy,omitempty"`
	Backend       string    `json:"backend,omitempty"`
}

// loadModelMetadata reads the sidecar next to an artifact: model_metadata.json,
// or else the newest model_metadata_<timestamp>.json.
func loadModelMetadata(modelPath string) (*ModelMetadata, error) {
	dir := filepath.Dir(modelPath)
	primary := filepath.Join(dir, common.DefaultMetadataFile)

	if md, err := decodeMetadata(primary); err == nil {
		return md, nil
	}

	pattern := filepath.Join(dir, "model_metadata_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob metadata: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no metadata file found in %s", dir)
	}
	sort.Strings(matches)
	return decodeMetadata(matches[len(matches)-1])
}

func decodeMetadata(path string) (*ModelMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var md ModelMetadata
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &md, nil
}
