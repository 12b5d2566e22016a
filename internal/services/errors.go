package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoImages      = errors.New("no images provided for analysis")
	ErrInvalidFormat = errors.New("received an invalid format from the API")
	ErrCircuitOpen   = errors.New("model circuit breaker open")
)

const (
	dailyQuotaMessage  = "Your daily request quota has been exhausted. Please try again after 12:00 AM PT."
	minuteQuotaMessage = "Your minute-wise request quota has been exhausted. Please try again after 1 minute."
)

// UpstreamError is a non-2xx answer from the model service.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if msg := e.message(); msg != "" {
		return fmt.Sprintf("model api: %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("model api: %d", e.Status)
}

// message extracts error.message from the Google API error envelope.
func (e *UpstreamError) message() string {
	var env struct {
		Error apiError `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &env); err != nil {
		return ""
	}
	if env.Error.Status != "" && env.Error.Message != "" {
		return env.Error.Status + ": " + env.Error.Message
	}
	return env.Error.Message
}

// QuotaError is a rate-limit or quota rejection. Its message is meant for the
// end user.
type QuotaError struct {
	Daily bool
	Err   error
}

func (e *QuotaError) Error() string {
	if e.Daily {
		return dailyQuotaMessage
	}
	return minuteQuotaMessage
}

func (e *QuotaError) Unwrap() error { return e.Err }

// ClassifyModelError turns 429-like failures into *QuotaError and leaves
// everything else untouched.
func ClassifyModelError(err error) error {
	if err == nil {
		return nil
	}
	var q *QuotaError
	if errors.As(err, &q) {
		return err
	}
	msg := strings.ToLower(err.Error())
	status := 0
	var up *UpstreamError
	if errors.As(err, &up) {
		status = up.Status
		msg += " " + strings.ToLower(up.Body)
	}
	if status == 429 || strings.Contains(msg, "429") || strings.Contains(msg, "exhausted") ||
		strings.Contains(msg, "quota") || strings.Contains(msg, "too many requests") {
		daily := strings.Contains(msg, "daily") || strings.Contains(msg, "day") || strings.Contains(msg, "limit exceeded")
		return &QuotaError{Daily: daily, Err: err}
	}
	return err
}

func IsQuota(err error) bool {
	var q *QuotaError
	return errors.As(err, &q)
}

// UserMessage renders a model-boundary error as the text shown to the user.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	err = ClassifyModelError(err)
	var q *QuotaError
	switch {
	case errors.As(err, &q):
		return q.Error()
	case errors.Is(err, ErrInvalidFormat):
		return "Received an invalid format from the API."
	case errors.Is(err, ErrNoImages):
		return "No images provided for analysis."
	case errors.Is(err, ErrCircuitOpen):
		return "The analysis service is temporarily unavailable. Please try again shortly."
	}
	if fallback != "" {
		return fallback
	}
	return err.Error()
}
