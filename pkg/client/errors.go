package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Error codes produced by the client itself. Backend-supplied codes are
// passed through verbatim.
const (
	CodeNotSignedIn     = "not_signed_in"
	CodeNoRefreshToken  = "no_refresh_token"
	CodeConnection      = "connection_error"
	CodeUnknown         = "unknown"
	CodeInvalidArgument = "invalid_argument"
	CodeInvalidResponse = "invalid_response"
)

// Error is the single failure shape surfaced to callers.
// Callers branch on Code.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatusCode renders the code used for failing responses that carry no
// structured error body.
func HTTPStatusCode(status int) string {
	return "http_" + strconv.Itoa(status)
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the normalized code of err, or "" if err is not an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument reports caller misuse detected before any network activity.
func InvalidArgument(format string, args ...any) *Error {
	return newError(CodeInvalidArgument, format, args...)
}

// InvalidResponse reports a success response whose payload could not be used.
func InvalidResponse(cause error, format string, args ...any) *Error {
	e := newError(CodeInvalidResponse, format, args...)
	e.cause = cause
	return e
}

// errorEnvelope is the backend's structured error body.
type errorEnvelope struct {
	Error *struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Status  string          `json:"status"`
	} `json:"error"`
}

// Normalize converts the outcome of a Transport.Send into nil (success) or
// an *Error. The order is fixed: structured envelope, raw body, connection
// failure, bare HTTP status.
func Normalize(resp *Response, sendErr error) error {
	if sendErr == nil && resp != nil && resp.Success() {
		return nil
	}

	var body []byte
	if resp != nil {
		body = bytes.TrimSpace(resp.Body)
	}

	if len(body) > 0 {
		if code, msg, ok := parseEnvelope(body); ok {
			return &Error{Code: code, Message: msg, cause: sendErr}
		}
		return &Error{Code: CodeUnknown, Message: string(resp.Body), cause: sendErr}
	}

	if sendErr != nil || resp == nil {
		msg := "no response from server"
		if sendErr != nil {
			msg = sendErr.Error()
		}
		return &Error{Code: CodeConnection, Message: msg, cause: sendErr}
	}

	return &Error{
		Code:    HTTPStatusCode(resp.StatusCode),
		Message: fmt.Sprintf("request failed with status %d", resp.StatusCode),
	}
}

func parseEnvelope(body []byte) (code, message string, ok bool) {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return "", "", false
	}

	code = CodeUnknown
	if raw := bytes.TrimSpace(env.Error.Code); len(raw) > 0 && string(raw) != "null" {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			code = s
		} else {
			// numeric codes keep their literal text
			code = string(raw)
		}
	} else if env.Error.Status != "" {
		code = env.Error.Status
	}
	return code, env.Error.Message, true
}
