package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"billbook/internal/core"
	"billbook/internal/log"
	"billbook/internal/middleware/trace"
)

// errorResponse is the body of every non-2xx JSON answer.
type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// errBadRequest marks request bodies or parameters that could not be read.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps a domain error to its HTTP status and response body.
func statusFor(err error) (int, errorResponse) {
	var (
		validation *core.ValidationError
		missing    *core.MissingRateError
		external   *core.ExternalServiceError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, errorResponse{Error: "validation", Field: validation.Field, Message: validation.Message}
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity, errorResponse{Error: "missing_rate", Field: "currency", Message: missing.Error()}
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()}
	case errors.As(err, &external):
		return http.StatusBadGateway, errorResponse{Error: "external_service", Message: external.Error()}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"}
	}
}

// writeError answers with the mapped status. Server-side failures are logged
// with the request logger; client errors are not.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.access.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().WithRequestID(trace.GetRequestID(r.Context())).WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, ""))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal","message":"encode response"}`, http.StatusInternalServerError)
		return
	}
	writeRawJSON(w, status, payload)
}

func writeRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n"))
}

// decodeJSON reads one JSON value into dst. Unknown fields and trailing data
// are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var validation *core.ValidationError
		if errors.As(err, &validation) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return badRequest("empty body")
		}
		return badRequest("invalid JSON: %v", err)
	}
	if dec.More() {
		return badRequest("unexpected data after JSON body")
	}
	return nil
}

// sanitizeInput trims and drops control characters except tab, newline and
// carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
