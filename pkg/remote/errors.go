package remote

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

var (
	// ErrUnavailable is returned when the client was never configured or the
	// circuit breaker is rejecting calls.
	ErrUnavailable = errors.New("service unavailable")
	ErrNotFound    = errors.New("not found")
	ErrNoSession   = errors.New("user not authenticated")
)

// APIError represents a non-2xx response from the remote service.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsAuthError reports whether err is a rejection by the auth service.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return errors.Is(err, ErrNoSession)
	}
	return apiErr.Status == http.StatusBadRequest ||
		apiErr.Status == http.StatusUnauthorized ||
		apiErr.Status == http.StatusForbidden ||
		apiErr.Status == http.StatusUnprocessableEntity ||
		apiErr.Status == http.StatusTooManyRequests
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == "PGRST116"
	}
	return false
}

// IsConflict reports a unique-constraint violation.
func IsConflict(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusConflict || apiErr.Code == "23505"
}

// Message returns the human-readable text shown to users for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

// errorBody covers the shapes returned by the auth, REST and storage APIs.
type errorBody struct {
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	ErrorCode        string          `json:"error_code"`
	Code             json.RawMessage `json:"code"`
	StatusCode       string          `json:"statusCode"`
}

func decodeAPIError(status int, statusText string, body []byte) *APIError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	msg := firstNonEmpty(eb.Msg, eb.Message, eb.ErrorDescription, eb.Error)
	if msg == "" {
		msg = strings.TrimSpace(statusText)
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	code := eb.ErrorCode
	if code == "" && len(eb.Code) > 0 {
		var s string
		if err := json.Unmarshal(eb.Code, &s); err == nil {
			code = s
		} else {
			var n int
			if err := json.Unmarshal(eb.Code, &n); err == nil {
				code = strconv.Itoa(n)
			}
		}
	}
	// Storage reports the HTTP status inside the body and puts the code in "error".
	if code == "" && eb.StatusCode != "" && eb.Error != "" && eb.Message != "" {
		code = eb.Error
	}
	return &APIError{Status: status, Message: msg, Code: strings.TrimSpace(code)}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
