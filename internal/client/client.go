// Package client talks to a running credit risk server over its JSON API.
package client

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"credit-risk/internal/features"
	"credit-risk/internal/ml"
	"credit-risk/internal/storage"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// Prediction is a scored profile; ID is set when the server journals.
type Prediction struct {
	ml.Result
	ID string `json:"id,omitempty"`
}

// APIError is a non-2xx answer carrying the server's {"error","code"} body.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d, %s: %s", e.Status, e.Code, e.Message)
}

// Rejected reports whether the server refused the profile itself (HTTP 422).
func (e *APIError) Rejected() bool { return e.Status == http.StatusUnprocessableEntity }

func (c *Client) Predict(p features.ApplicantProfile) (*Prediction, error) {
	path := "/api/v1/predict"

	result := &Prediction{}
	apiErr := &APIError{}
	resp, err := c.rest.R().
		SetHeader("Content-Type", "application/json").
		SetBody(p).
		SetResult(result).
		SetError(apiErr).
		Post(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return nil, apiErr
	}
	return result, nil
}

// SchemaInfo mirrors GET /api/v1/schema.
type SchemaInfo struct {
	Columns  []string `json:"columns"`
	Numerics []struct {
		Name  string  `json:"name"`
		Label string  `json:"label"`
		Min   float64 `json:"min"`
		Max   float64 `json:"max"`
		Step  float64 `json:"step"`
	} `json:"numerics"`
	Attributes []struct {
		Name   string   `json:"name"`
		Label  string   `json:"label"`
		Values []string `json:"values"`
		Labels []string `json:"labels"`
	} `json:"attributes"`
}

func (c *Client) Schema() (*SchemaInfo, error) {
	info := &SchemaInfo{}
	if err := c.get("/api/v1/schema", nil, info); err != nil {
		return nil, err
	}
	return info, nil
}

// Health mirrors GET /health. A 503 is returned as a value, not an error.
type Health struct {
	Status        string           `json:"status"`
	Model         *ml.HealthStatus `json:"model,omitempty"`
	Error         string           `json:"error,omitempty"`
	Journal       bool             `json:"journal"`
	RejectionRate float64          `json:"rejection_rate"`
}

func (c *Client) Health() (*Health, error) {
	h := &Health{}
	resp, err := c.rest.R().
		SetResult(h).
		SetError(h).
		Get(c.base + "/health")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusServiceUnavailable {
		return nil, &APIError{Status: resp.StatusCode()}
	}
	return h, nil
}

func (c *Client) Recent(limit int) ([]storage.Record, error) {
	var out struct {
		Predictions []storage.Record `json:"predictions"`
	}
	params := map[string]string{}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	if err := c.get("/api/v1/predictions", params, &out); err != nil {
		return nil, err
	}
	return out.Predictions, nil
}

func (c *Client) get(path string, params map[string]string, result any) error {
	apiErr := &APIError{}
	resp, err := c.rest.R().
		SetQueryParams(params).
		SetResult(result).
		SetError(apiErr).
		Get(c.base + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return apiErr
	}
	return nil
}
