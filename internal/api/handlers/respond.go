package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/bethesda-shelter/backend/internal/api/middleware"
	"github.com/bethesda-shelter/backend/internal/reservation"
)

// writeJSON writes a JSON body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeServiceError maps engine error kinds onto HTTP status codes:
// validation 400, not_found 404, conflict 409, expired 410,
// no_capacity 503. Anything else is an invariant breach: loud in the
// logs, 500 on the wire, and the server keeps serving.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reservation.ErrValidation):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reservation.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, reservation.ErrConflict), errors.Is(err, reservation.ErrBedMismatch):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, reservation.ErrExpired):
		middleware.WriteError(w, http.StatusGone, err.Error())
	case errors.Is(err, reservation.ErrNoCapacity):
		middleware.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Error().Err(err).Msg("internal error")
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
