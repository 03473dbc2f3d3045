package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/clinicbook/libs/apperr"
)

type errorBody struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as the API error shape. Errors that are not
// *apperr.Error are logged and reported as a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	reqID := RequestIDFromContext(r.Context())
	if e, ok := apperr.As(err); ok {
		WriteJSON(w, e.HTTPStatus, errorBody{Code: e.Code, Message: e.Message, Details: e.Details, RequestID: reqID})
		return
	}
	if logger != nil {
		logger.Error("request failed", "request_id", reqID, "method", r.Method, "path", r.URL.Path, "err", err)
	}
	WriteJSON(w, http.StatusInternalServerError, errorBody{Code: "INTERNAL_ERROR", Message: "internal server error", RequestID: reqID})
}

// DecodeJSON reads a JSON body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Validation("request body too large", nil)
		}
		return apperr.Validation(fmt.Sprintf("invalid JSON body: %v", err), nil)
	}
	return nil
}
