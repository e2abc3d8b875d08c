package wanikani

import (
	"fmt"
	"net/http"
)

// Status is the closed set of response outcomes the client understands.
type Status int

const (
	StatusSuccess             Status = http.StatusOK
	StatusNotModified         Status = http.StatusNotModified
	StatusUnauthorized        Status = http.StatusUnauthorized
	StatusForbidden           Status = http.StatusForbidden
	StatusNotFound            Status = http.StatusNotFound
	StatusUnprocessableEntity Status = http.StatusUnprocessableEntity
	StatusTooManyRequests     Status = http.StatusTooManyRequests
	StatusInternalServerError Status = http.StatusInternalServerError
	StatusServiceUnavailable  Status = http.StatusServiceUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotModified:
		return "not modified"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusForbidden:
		return "forbidden"
	case StatusNotFound:
		return "not found"
	case StatusUnprocessableEntity:
		return "unprocessable entity"
	case StatusTooManyRequests:
		return "too many requests"
	case StatusInternalServerError:
		return "internal server error"
	case StatusServiceUnavailable:
		return "service unavailable"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// StatusError is a known non-success outcome.
type StatusError struct {
	Status Status
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wanikani: %s (%d) for %s", e.Status, int(e.Status), e.URL)
}

// UnexpectedStatusError is returned for a status code outside the known set.
// It indicates a defect in the client, not a retryable condition.
type UnexpectedStatusError struct {
	Code int
	URL  string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("wanikani: unexpected response status %d for %s", e.Code, e.URL)
}

// CheckStatus maps an HTTP status code onto the closed Status set.
// Every 2xx code is a success.
func CheckStatus(code int) (Status, error) {
	if code >= 200 && code < 300 {
		return StatusSuccess, nil
	}
	switch s := Status(code); s {
	case StatusNotModified, StatusUnauthorized, StatusForbidden, StatusNotFound,
		StatusUnprocessableEntity, StatusTooManyRequests, StatusInternalServerError,
		StatusServiceUnavailable:
		return s, nil
	}
	return 0, &UnexpectedStatusError{Code: code}
}
