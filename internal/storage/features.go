package storage

import (
	"fmt"
	"io"
	"time"

	"credit-risk/internal/features"

	"github.com/gocarina/gocsv"
)

// TrainingRow is one journaled submission flattened for offline retraining:
// the raw profile columns followed by the model's answer.
type TrainingRow struct {
	ID        string `csv:"id"`
	Timestamp string `csv:"timestamp"`
	features.ApplicantProfile
	Label        string  `csv:"label"`
	PGood        float64 `csv:"p_good"`
	PBad         float64 `csv:"p_bad"`
	ModelVersion string  `csv:"model_version"`
	Channel      string  `csv:"channel"`
}

func trainingRow(rec Record) TrainingRow {
	return TrainingRow{
		ID:               rec.ID,
		Timestamp:        rec.Timestamp.Format(time.RFC3339Nano),
		ApplicantProfile: rec.Profile,
		Label:            string(rec.Result.Label),
		PGood:            rec.Result.Probabilities.Good,
		PBad:             rec.Result.Probabilities.Bad,
		ModelVersion:     rec.Result.ModelVersion,
		Channel:          rec.Channel,
	}
}

// ExportFeaturesToCSV writes every record between start and end, oldest first,
// as CSV with a header row. It returns the number of rows written.
func (s *Store) ExportFeaturesToCSV(w io.Writer, start, end time.Time) (int, error) {
	records, err := s.InRange(start, end)
	if err != nil {
		return 0, fmt.Errorf("read journal: %w", err)
	}

	rows := make([]TrainingRow, len(records))
	for i, rec := range records {
		rows[i] = trainingRow(rec)
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}
	return len(rows), nil
}
