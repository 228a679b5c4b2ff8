package supabase

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
)

// ErrNoRows is returned by Query.Single when the filter matched nothing.
var ErrNoRows = errors.New("no rows returned")

const codeNoRows = "PGRST116"

// APIError is an error response of either the auth or the data API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase error %v (%v): %v", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase error %v: %v", e.Status, e.Message)
}

type apiErrorBody struct {
	// GoTrue sends the numeric status here, PostgREST sends a string code.
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

func parseAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}
	var body apiErrorBody
	if err := sonic.Unmarshal(data, &body); err != nil {
		apiErr.Message = firstNonEmpty(string(data), http.StatusText(status))
		return apiErr
	}
	var code string
	switch c := body.Code.(type) {
	case string:
		code = c
	case float64:
		code = strconv.FormatFloat(c, 'f', -1, 64)
	}
	if body.ErrorCode != "" {
		code = body.ErrorCode
	}
	apiErr.Code = firstNonEmpty(code, body.Error)
	apiErr.Message = firstNonEmpty(body.Msg, body.Message, body.ErrorDescription, body.Error, http.StatusText(status))
	return apiErr
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func unwrapTransient(err error) error {
	var tErr *transientError
	if errors.As(err, &tErr) {
		return tErr.err
	}
	return err
}
