package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/medassist/internal/appointments"
	"github.com/wolfman30/medassist/internal/tools"
	"github.com/wolfman30/medassist/pkg/logging"
)

const maxBodyBytes = 64 << 10

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err onto the error taxonomy. Internal errors are logged and
// never echoed.
func writeError(w http.ResponseWriter, logger *logging.Logger, r *http.Request, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", r.URL.Path, "kind", body.Kind, "error", err)
	}
	writeJSON(w, status, body)
}

func errorBody(err error) (int, ErrorResponse) {
	kind := tools.KindOf(err)
	return statusFor(kind), ErrorResponse{Error: tools.PublicMessage(err), Kind: string(kind)}
}

func statusFor(kind tools.Kind) int {
	switch kind {
	case tools.KindValidation:
		return http.StatusBadRequest
	case tools.KindNotFound:
		return http.StatusNotFound
	case tools.KindSlotTaken, tools.KindAlreadyCancelled:
		return http.StatusConflict
	case tools.KindAuthorization:
		return http.StatusForbidden
	case tools.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return &appointments.ValidationError{Field: "body", Reason: "is too large"}
		case errors.Is(err, io.EOF):
			return &appointments.ValidationError{Field: "body", Reason: "is required"}
		default:
			return &appointments.ValidationError{Field: "body", Reason: fmt.Sprintf("is not valid JSON: %v", err)}
		}
	}
	return nil
}

func queryInt(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, &appointments.ValidationError{Field: key, Reason: "must be a non-negative integer"}
	}
	return n, nil
}
