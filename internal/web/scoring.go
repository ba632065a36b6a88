package web

import (
	"errors"
	"net/http"

	"credit-risk/internal/features"
	"credit-risk/internal/metrics"
	"credit-risk/internal/ml"

	"github.com/rs/zerolog/log"
)

// scored is a successful submission and, when journaling is on, its record ID.
type scored struct {
	ml.Result
	ID string `json:"id,omitempty"`
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// score runs one profile through validate, encode, evaluate and journal.
// Journal failures are logged and never fail the submission.
func (s *Server) score(channel string, p features.ApplicantProfile) (scored, error) {
	if s.metrics != nil {
		s.metrics.Submissions(channel).Inc()
	}

	if s.scorer == nil {
		return scored{}, s.reject(s.loadErr)
	}

	if err := s.schema.Validate(p); err != nil {
		return scored{}, s.reject(err)
	}

	var tracker features.MetricsTracker
	if s.metrics != nil {
		tracker = s.metrics
	}
	vec, err := s.schema.EncodeWithMetrics(p, tracker)
	if err != nil {
		return scored{}, s.reject(err)
	}

	res, err := s.scorer.Evaluate(vec)
	if err != nil {
		return scored{}, s.reject(err)
	}

	out := scored{Result: res}
	if s.journal != nil {
		rec, err := s.journal.Append(channel, p, res)
		if s.metrics != nil {
			s.metrics.JournalWrite(err)
		}
		if err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to journal prediction")
		} else {
			out.ID = rec.ID
		}
	}

	log.Info().
		Str("channel", channel).
		Str("label", string(res.Label)).
		Float64("p_bad", res.Probabilities.Bad).
		Str("model_version", res.ModelVersion).
		Msg("scored submission")
	return out, nil
}

// bindFailed accounts for a submission that never produced a profile.
func (s *Server) bindFailed(channel string, err error) error {
	if s.metrics != nil {
		s.metrics.Submissions(channel).Inc()
	}
	return s.reject(err)
}

func (s *Server) reject(err error) error {
	_, code := classify(err)
	if s.metrics != nil {
		s.metrics.Rejected(code).Inc()
	}
	log.Warn().Err(err).Str("reason", code).Msg("submission rejected")
	return err
}

// classify maps a pipeline error to its HTTP status and machine-readable code.
// Schema mismatch is checked before inference error because it matches both.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, features.ErrInvalidField):
		return http.StatusUnprocessableEntity, metrics.ReasonInvalidField
	case errors.Is(err, features.ErrUnknownCategory):
		return http.StatusUnprocessableEntity, metrics.ReasonUnknownCategory
	case errors.Is(err, features.ErrOutOfRange):
		return http.StatusUnprocessableEntity, metrics.ReasonOutOfRange
	case errors.Is(err, ml.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity, metrics.ReasonSchemaMismatch
	case errors.Is(err, ml.ErrModelUnavailable):
		return http.StatusServiceUnavailable, metrics.ReasonUnavailable
	default:
		return http.StatusInternalServerError, metrics.ReasonInference
	}
}
