package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/harun/shopagent/pkg/apperror"
)

// Codes produced by the HTTP layer itself
const (
	CodeRateLimited     = "RATE_LIMITED"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeShuttingDown    = "SHUTTING_DOWN"
	CodeClientClosed    = "CLIENT_CLOSED"
	statusClientClosed  = 499
	maxRequestBodyBytes = 64 * 1024
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeError renders err with the status of its category. Only the safe
// message and validation details leave the process.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) {
		writeErrorCode(w, statusClientClosed, CodeClientClosed, "request cancelled")
		return
	}

	appErr := apperror.Normalize(err)
	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := errorPayload{Code: appErr.Code, Message: appErr.Message}
	if appErr.Code == apperror.CodeValidation {
		payload.Details = appErr.Details
	}
	writeJSON(w, status, errorBody{Error: payload})
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
