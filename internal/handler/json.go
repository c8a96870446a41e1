// Package handler contains the JSON HTTP handlers of the quota service.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/google/uuid"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// DataResponse is the success envelope of every API response.
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData writes data inside the success envelope.
func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, DataResponse{Success: true, Data: data})
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return domain.Invalid(op, "request body is required")
		case errors.As(err, &maxErr):
			return domain.Invalid(op, "request body is too large")
		default:
			return domain.Invalid(op, "request body must be valid JSON")
		}
	}
	return nil
}

// pathUserID parses the {userId} path value.
func pathUserID(r *http.Request, op string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid(op, "Invalid userId")
	}
	return id, nil
}

// pathSubscriptionID parses the {id} path value.
func pathSubscriptionID(r *http.Request, op string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, domain.Invalid(op, "Valid subscriptionId is required")
	}
	return id, nil
}
