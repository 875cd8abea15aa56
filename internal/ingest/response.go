package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// maxRequestBodySize is the maximum allowed size of a request body (1 MB).
const maxRequestBodySize = 1 << 20

const unexpectedErrorMessage = "Unexpected server error."

// errorResponse is the body of every error reply.
type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// ValidationError marks a client mistake; handlers answer it with 400.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(msg string, err error) error {
	return &ValidationError{Message: msg, Err: err}
}

// JSON writes data with the given status.
func JSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(errorResponse{Status: http.StatusInternalServerError, Message: unexpectedErrorMessage})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, _ *http.Request, status int, message string) {
	JSON(w, status, errorResponse{Status: status, Message: message})
}

// Error maps err to a status: validation errors are 400 with their message,
// anything else is a 500 that does not leak internals.
func (s *Server) Error(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		writeError(w, r, http.StatusBadRequest, verr.Message)
		return
	}

	s.Logger.Error("request failed", "path", r.URL.Path, "request_id", GetRequestID(r.Context()), "error", err)
	writeError(w, r, http.StatusInternalServerError, unexpectedErrorMessage)
}

// DecodeJSON reads a single JSON value of at most 1 MB into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}
	if dec.More() {
		return invalid("Request body must contain a single JSON object.", nil)
	}
	return nil
}

func mapDecodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return invalid("Request body must not exceed 1MB.", err)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return invalid("Malformed JSON in request body.", err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			return invalid("Payload must be an object.", err)
		}
		return invalid("Invalid value for "+field+": expected "+typeErr.Type.String()+".", err)
	}

	if errors.Is(err, io.EOF) {
		return invalid("Request body must not be empty.", err)
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return invalid("Malformed JSON in request body.", err)
	}

	return invalid("Invalid JSON in request body: "+strings.TrimPrefix(err.Error(), "json: "), err)
}
