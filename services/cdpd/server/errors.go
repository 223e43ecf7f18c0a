package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"cdpcore/core/system"
	"cdpcore/native/admin"
	nativecommon "cdpcore/native/common"
)

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, admin.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, system.ErrUnknownCollateral):
		return http.StatusNotFound
	}
	switch nativecommon.Class(err) {
	case "validation":
		return http.StatusBadRequest
	case "invariant":
		return http.StatusConflict
	case "stale":
		return http.StatusServiceUnavailable
	case "arithmetic":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeJSONError(w, status, errors.New("internal error"))
		return
	}
	writeJSONError(w, status, err)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := http.StatusText(status)
	if err != nil {
		if trimmed := strings.TrimSpace(err.Error()); trimmed != "" {
			message = trimmed
		}
	}
	payload, marshalErr := json.Marshal(map[string]string{"error": message})
	if marshalErr != nil {
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
