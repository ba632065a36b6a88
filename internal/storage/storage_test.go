package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"credit-risk/internal/features"
	"credit-risk/internal/ml"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(pBad float64) ml.Result {
	label := ml.LabelGood
	if pBad > 0.5 {
		label = ml.LabelBad
	}
	return ml.Result{
		Label:         label,
		Probabilities: ml.Probabilities{Good: 1 - pBad, Bad: pBad},
		ModelVersion:  "test-1",
	}
}

// fixedClock returns a clock that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	next := start
	return func() time.Time {
		t := next
		next = next.Add(step)
		return t
	}
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, "credit-risk.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "journal")

	store, err := New(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.FileExists(t, filepath.Join(dir, "credit-risk.db"))
}

func TestNew_InvalidPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(file)
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	if err := store.Close(); err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestAppend(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = fixedClock(start, time.Second)

	profile := features.DefaultProfile()
	rec, err := store.Append("form", profile, sampleResult(0.3))
	require.NoError(t, err)

	assert.Len(t, rec.ID, 36)
	assert.Equal(t, start, rec.Timestamp)
	assert.Equal(t, "form", rec.Channel)

	got, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, profile, got[0].Profile)
	assert.Equal(t, ml.LabelGood, got[0].Result.Label)
	assert.InDelta(t, 0.3, got[0].Result.Probabilities.Bad, 1e-12)
	assert.True(t, start.Equal(got[0].Timestamp))
}

func TestAppend_UniqueIDs(t *testing.T) {
	store := newTestStore(t)
	// Same timestamp for every record: the ID suffix must keep keys distinct.
	store.now = fixedClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), 0)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		rec, err := store.Append("api", features.DefaultProfile(), sampleResult(0.1))
		require.NoError(t, err)
		assert.False(t, seen[rec.ID])
		seen[rec.ID] = true
	}

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestStorePrediction_RequiresKeyFields(t *testing.T) {
	store := newTestStore(t)

	err := store.StorePrediction(Record{Timestamp: time.Now()})
	assert.Error(t, err)

	err = store.StorePrediction(Record{ID: "abc"})
	assert.Error(t, err)
}

func TestRecent(t *testing.T) {
	store := newTestStore(t)
	store.now = fixedClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), time.Minute)

	var ids []string
	for i := 0; i < 5; i++ {
		rec, err := store.Append("form", features.DefaultProfile(), sampleResult(float64(i)/10))
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{0, nil},
		{-1, nil},
		{2, []string{ids[4], ids[3]}},
		{5, []string{ids[4], ids[3], ids[2], ids[1], ids[0]}},
		{50, []string{ids[4], ids[3], ids[2], ids[1], ids[0]}},
	}

	for _, tt := range tests {
		got, err := store.Recent(tt.limit)
		require.NoError(t, err)

		var gotIDs []string
		for _, r := range got {
			gotIDs = append(gotIDs, r.ID)
		}
		assert.Equal(t, tt.want, gotIDs, "limit %d", tt.limit)
	}
}

func TestInRange(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = fixedClock(start, time.Hour)

	for i := 0; i < 6; i++ {
		_, err := store.Append("form", features.DefaultProfile(), sampleResult(0.2))
		require.NoError(t, err)
	}

	// Inclusive on both ends: 10:00, 11:00, 12:00.
	got, err := store.InRange(start.Add(time.Hour), start.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Timestamp.Equal(start.Add(time.Hour)))
	assert.True(t, got[2].Timestamp.Equal(start.Add(3*time.Hour)))

	got, err = store.InRange(start.Add(-48*time.Hour), start.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInRange_BoundsBeyondKeyRange(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = fixedClock(start, time.Hour)

	for i := 0; i < 3; i++ {
		_, err := store.Append("api", features.DefaultProfile(), sampleResult(0.4))
		require.NoError(t, err)
	}

	farFuture := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
	farPast := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := store.InRange(start, farFuture)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = store.InRange(farPast, farFuture)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = store.InRange(farPast, start)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = store.InRange(farFuture, farFuture.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStorePrediction_RejectsTimestampOutsideKeyRange(t *testing.T) {
	store := newTestStore(t)
	for _, ts := range []time.Time{
		time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC),
	} {
		err := store.StorePrediction(Record{ID: "x", Timestamp: ts, Result: sampleResult(0.1)})
		assert.Error(t, err, ts)
	}
	n, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExportFeaturesToCSV(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = fixedClock(start, time.Minute)

	risky := features.DefaultProfile()
	risky.Duration = 48
	risky.Purpose = "business"

	_, err := store.Append("form", features.DefaultProfile(), sampleResult(0.25))
	require.NoError(t, err)
	_, err = store.Append("api", risky, sampleResult(0.75))
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := store.ExportFeaturesToCSV(&buf, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	header := buf.String()[:bytes.IndexByte(buf.Bytes(), '\n')]
	assert.Contains(t, header, "id,timestamp,duration,amount")
	assert.Contains(t, header, "telephone,label,p_good,p_bad,model_version,channel")

	var rows []TrainingRow
	require.NoError(t, gocsv.Unmarshal(bytes.NewReader(buf.Bytes()), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, features.DefaultProfile(), rows[0].ApplicantProfile)
	assert.Equal(t, "good", rows[0].Label)
	assert.Equal(t, "form", rows[0].Channel)
	assert.Equal(t, risky, rows[1].ApplicantProfile)
	assert.Equal(t, "bad", rows[1].Label)
	assert.InDelta(t, 0.75, rows[1].PBad, 1e-12)
	assert.Equal(t, "test-1", rows[1].ModelVersion)
}
