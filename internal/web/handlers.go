package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"credit-risk/internal/features"
	"credit-risk/internal/ml"
	"credit-risk/internal/storage"

	"github.com/rs/zerolog/log"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if s.scorer == nil {
		status = http.StatusServiceUnavailable
	}
	s.renderPage(w, status, s.schema.Values(features.DefaultProfile()), nil, nil)
}

func (s *Server) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	if s.scorer == nil {
		s.renderPage(w, http.StatusServiceUnavailable, s.schema.Values(features.DefaultProfile()), nil, s.bindFailed(ChannelForm, s.loadErr))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		err = s.bindFailed(ChannelForm, fmt.Errorf("read form: %v: %w", err, features.ErrInvalidField))
		s.renderPage(w, http.StatusBadRequest, url.Values{}, nil, err)
		return
	}

	values := r.PostForm
	p, err := s.schema.ProfileFromValues(values)
	if err != nil {
		err = s.bindFailed(ChannelForm, err)
	} else {
		var res scored
		if res, err = s.score(ChannelForm, p); err == nil {
			s.renderPage(w, http.StatusOK, values, &res, nil)
			return
		}
	}

	status, _ := classify(err)
	s.renderPage(w, status, values, nil, err)
}

func (s *Server) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	if s.scorer == nil {
		s.writeError(w, s.bindFailed(ChannelAPI, s.loadErr))
		return
	}

	p, err := decodeProfile(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, s.bindFailed(ChannelAPI, err))
		return
	}

	res, err := s.score(ChannelAPI, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type numericSchema struct {
	Name  string  `json:"name"`
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Step  float64 `json:"step"`
}

type attributeSchema struct {
	Name   string   `json:"name"`
	Label  string   `json:"label"`
	Values []string `json:"values"`
	Labels []string `json:"labels"`
}

type schemaResponse struct {
	Columns    []string          `json:"columns"`
	Numerics   []numericSchema   `json:"numerics"`
	Attributes []attributeSchema `json:"attributes"`
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	resp := schemaResponse{Columns: s.schema.Columns()}
	for _, n := range s.schema.Numerics() {
		resp.Numerics = append(resp.Numerics, numericSchema(n))
	}
	for _, a := range s.schema.Attributes() {
		labels := make([]string, len(a.Values))
		for i := range a.Values {
			labels[i] = a.ValueLabel(i)
		}
		resp.Attributes = append(resp.Attributes, attributeSchema{
			Name:   a.Name,
			Label:  a.Label,
			Values: a.Values,
			Labels: labels,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	if s.scorer == nil {
		s.writeError(w, s.loadErr)
		return
	}
	writeJSON(w, http.StatusOK, s.scorer.Metadata())
}

type predictionsResponse struct {
	Count       int              `json:"count"`
	Predictions []storage.Record `json:"predictions"`
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "prediction journal is disabled", Code: "journal_disabled"})
		return
	}

	limit := s.journalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, apiError{Error: fmt.Sprintf("invalid limit %q", raw), Code: "invalid_request"})
			return
		}
		limit = min(n, s.journalLimit)
	}

	records, err := s.journal.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to read prediction journal")
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to read prediction journal", Code: "journal_error"})
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	writeJSON(w, http.StatusOK, predictionsResponse{Count: len(records), Predictions: records})
}

// handleExport streams journaled submissions as CSV. from and to are RFC 3339
// and default to the Unix epoch and now.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "prediction journal is disabled", Code: "journal_disabled"})
		return
	}

	q := r.URL.Query()
	from, err := queryTime(q, "from", time.Unix(0, 0).UTC())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error(), Code: "invalid_request"})
		return
	}
	to, err := queryTime(q, "to", time.Now().UTC())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error(), Code: "invalid_request"})
		return
	}
	if to.Before(from) {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "to is before from", Code: "invalid_request"})
		return
	}

	var buf bytes.Buffer
	n, err := s.journal.ExportFeaturesToCSV(&buf, from, to)
	if err != nil {
		log.Error().Err(err).Msg("failed to export prediction journal")
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to export prediction journal", Code: "journal_error"})
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="predictions.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Warn().Err(err).Msg("failed to write csv export")
		return
	}
	log.Info().Int("rows", n).Time("from", from).Time("to", to).Msg("exported prediction journal")
}

type healthResponse struct {
	Status        string           `json:"status"`
	Model         *ml.HealthStatus `json:"model,omitempty"`
	Error         string           `json:"error,omitempty"`
	Journal       bool             `json:"journal"`
	RejectionRate float64          `json:"rejection_rate"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.scorer == nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "unavailable",
			Error:   s.loadErr.Error(),
			Journal: s.journal != nil,
		})
		return
	}

	h := s.scorer.Health()
	resp := healthResponse{Status: "ok", Model: &h, Journal: s.journal != nil}
	if s.metrics != nil {
		if h.ModelAgeSec > 0 {
			s.metrics.ModelAge().Set(h.ModelAgeSec)
		}
		resp.RejectionRate = s.metrics.RejectionRate(s.gatherer)
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeProfile(body io.Reader) (features.ApplicantProfile, error) {
	var p features.ApplicantProfile
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return features.ApplicantProfile{}, fmt.Errorf("decode profile: %v: %w", err, features.ErrInvalidField)
	}
	return p, nil
}

func queryTime(q url.Values, key string, def time.Time) (time.Time, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: want RFC 3339", key, raw)
	}
	if t.Before(storage.MinKeyTime) || t.After(storage.MaxKeyTime) {
		return time.Time{}, fmt.Errorf("invalid %s %q: outside %s to %s", key, raw,
			storage.MinKeyTime.Format(time.RFC3339), storage.MaxKeyTime.Format(time.RFC3339))
	}
	return t, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeJSON(w, status, apiError{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}
