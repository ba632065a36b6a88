package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"credit-risk/internal/features"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"
)

// LoadProfile reads one applicant from a YAML or JSON file. Unknown keys are
// rejected so a typo does not silently fall back to a zero value.
func LoadProfile(path string) (features.ApplicantProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return features.ApplicantProfile{}, fmt.Errorf("read profile: %w", err)
	}
	return DecodeProfile(data)
}

func DecodeProfile(data []byte) (features.ApplicantProfile, error) {
	var p features.ApplicantProfile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return features.ApplicantProfile{}, fmt.Errorf("profile is empty")
		}
		return features.ApplicantProfile{}, fmt.Errorf("parse profile: %w", err)
	}
	return p, nil
}

// LoadBatch reads applicants from CSV with a header row named after the
// profile fields.
func LoadBatch(r io.Reader) ([]features.ApplicantProfile, error) {
	var profiles []features.ApplicantProfile
	if err := gocsv.Unmarshal(r, &profiles); err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return profiles, nil
}

// BatchRow is one scored CSV line: the input columns, then either the answer
// or the rejection.
type BatchRow struct {
	features.ApplicantProfile
	Label       string  `csv:"label"`
	PGood       float64 `csv:"p_good"`
	PBad        float64 `csv:"p_bad"`
	BadPercent  string  `csv:"bad_percent"`
	ErrorCode   string  `csv:"error_code"`
	ErrorDetail string  `csv:"error"`
}

// PredictBatch scores every profile in order. A rejected or failed line is
// recorded on its row; only transport failures abort the batch.
func (c *Client) PredictBatch(profiles []features.ApplicantProfile) ([]BatchRow, error) {
	rows := make([]BatchRow, 0, len(profiles))
	for i, p := range profiles {
		row := BatchRow{ApplicantProfile: p}

		pred, err := c.Predict(p)
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr):
			row.ErrorCode = apiErr.Code
			row.ErrorDetail = apiErr.Message
		case err != nil:
			return rows, fmt.Errorf("row %d: %w", i+1, err)
		default:
			row.Label = string(pred.Label)
			row.PGood = pred.Probabilities.Good
			row.PBad = pred.Probabilities.Bad
			row.BadPercent = Percent(pred.Probabilities.Bad)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func WriteBatch(w io.Writer, rows []BatchRow) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Percent formats a probability the way the form shows it.
func Percent(p float64) string { return fmt.Sprintf("%.2f%%", p*100) }
