package http

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "veritas/pkg/domain-errors"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps a coded domain error onto an HTTP status and JSON body.
// Unknown errors surface as 500 without leaking the underlying message.
func WriteError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	status := http.StatusInternalServerError
	code := dErrors.CodeInternal
	message := "internal error"

	if errors.As(err, &de) {
		code = de.Code
		message = de.Message
		switch de.Code {
		case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
			status = http.StatusBadRequest
		case dErrors.CodeNotFound:
			status = http.StatusNotFound
		case dErrors.CodeConflict:
			status = http.StatusConflict
		case dErrors.CodeTimeout:
			status = http.StatusGatewayTimeout
		case dErrors.CodeMethodNotAllowed:
			status = http.StatusMethodNotAllowed
		case dErrors.CodeFatal:
			// The transport is expected to redeliver; 500 signals retry.
			status = http.StatusInternalServerError
			message = "processing failed"
		}
	}
	WriteJSON(w, status, errorResponse{Error: message, Code: string(code)})
}
