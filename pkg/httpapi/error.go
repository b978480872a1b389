package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/omnidesk/omnidesk/pkg/serrors"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// WriteValidationErrors renders field-level validation failures as a 400
// with per-field codes in the meta map.
func WriteValidationErrors(w http.ResponseWriter, verrs serrors.ValidationErrors) error {
	meta := make(map[string]string, len(verrs))
	for field, e := range verrs {
		meta[field] = e.Code
	}
	return WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", verrs.Error(), meta)
}
