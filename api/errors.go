package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/jrsteele09/go-fleet-portal/internal/utils"
)

const duplicateVINCode = "DUPLICATE_VIN"

// Error is a failed backend call. It unwraps to the sentinel for its class
// (ErrNetworkUnavailable, ErrAuthRejected, ErrNotFound, ...).
type Error struct {
	Method      string
	URL         string
	Status      int // 0 when the server was not reached
	Code        string
	Message     string
	Field       string
	FieldErrors map[string][]string

	kind  error
	cause error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// problem covers both the backend's own error body and ASP.NET problem details.
type problem struct {
	Title     string              `json:"title"`
	Message   string              `json:"message"`
	Detail    string              `json:"detail"`
	ErrorCode string              `json:"errorCode"`
	Errors    map[string][]string `json:"errors"`
}

func newError(method, url string, status int, body []byte) *Error {
	e := &Error{Method: method, URL: url, Status: status, kind: kindForStatus(status)}

	var p problem
	if len(body) > 0 && json.Unmarshal(body, &p) == nil {
		e.Code = p.ErrorCode
		e.Message = utils.FirstNonEmpty(p.Message, p.Title, p.Detail)
		if status == http.StatusBadRequest && len(p.Errors) > 0 {
			e.FieldErrors = p.Errors
		}
	}
	if status == http.StatusConflict && e.Code == duplicateVINCode {
		e.Field = "vin"
	}
	return e
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return errors.ErrValidation
	case status == http.StatusUnauthorized:
		return errors.ErrAuthRejected
	case status == http.StatusForbidden:
		return errors.ErrForbidden
	case status == http.StatusNotFound:
		return errors.ErrNotFound
	case status == http.StatusConflict:
		return errors.ErrConflict
	case status >= 500:
		return errors.ErrServer
	}
	return nil
}

// UserMessage is the notification text for err. It is empty when no
// notification should be shown (validation errors without a specific
// message are left to the form).
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var message string
	var apiErr *Error
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}

	switch {
	case errors.Is(err, errors.ErrNetworkUnavailable):
		return "Unable to reach server. Check network connectivity."
	case errors.Is(err, errors.ErrValidation):
		if message == "Validation error" {
			return ""
		}
		return message
	case errors.Is(err, errors.ErrAuthRejected):
		return "Session expired. Please sign in again."
	case errors.Is(err, errors.ErrForbidden):
		return "You do not have access to that resource."
	case errors.Is(err, errors.ErrConflict):
		return utils.FirstNonEmpty(message, "A vehicle with this VIN already exists.")
	case errors.Is(err, errors.ErrServer):
		return "Something went wrong on the server."
	}
	return utils.FirstNonEmpty(message, err.Error(), "Unexpected error")
}
