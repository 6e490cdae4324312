package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/bethesda-shelter/backend/internal/api/middleware"
	"github.com/bethesda-shelter/backend/internal/reservation"
	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// reservationView is the API projection of a reservation, with remaining
// time computed at read time.
type reservationView struct {
	Code             string `json:"confirmation_code"`
	BedID            int    `json:"bed_id"`
	CallerName       string `json:"caller_name"`
	Situation        string `json:"situation"`
	Needs            string `json:"needs"`
	Language         string `json:"preferred_language"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
	ExpiresAt        string `json:"expires_at"`
	RemainingMinutes int    `json:"time_remaining_minutes"`
}

func toView(r *models.Reservation, now time.Time) reservationView {
	return reservationView{
		Code:             r.Code,
		BedID:            r.BedID,
		CallerName:       r.CallerName,
		Situation:        r.Situation,
		Needs:            r.Needs,
		Language:         r.PreferredLanguage,
		Status:           string(r.Status),
		CreatedAt:        r.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:        r.ExpiresAt.UTC().Format(time.RFC3339),
		RemainingMinutes: r.RemainingMinutes(now),
	}
}

// ListReservations returns all active reservations.
func ListReservations(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, err := svc.ListActive(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}

		now := time.Now().UTC()
		views := make([]reservationView, 0, len(active))
		for i := range active {
			views = append(views, toView(&active[i], now))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"count":        len(views),
			"reservations": views,
		})
	}
}

// CreateReservation allocates a bed and returns the confirmation code.
func CreateReservation(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CallerName string `json:"caller_name"`
			Situation  string `json:"situation"`
			Needs      string `json:"needs"`
			Language   string `json:"language"`
			CallerHash string `json:"caller_hash"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.CallerName) == "" {
			middleware.WriteFieldErrors(w, []string{"caller_name: required"})
			return
		}

		res, err := svc.Create(r.Context(), reservation.CreateParams{
			CallerHash: req.CallerHash,
			CallerName: req.CallerName,
			Situation:  req.Situation,
			Needs:      req.Needs,
			Language:   req.Language,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toView(res, time.Now().UTC()))
	}
}

// GetReservation returns one reservation by confirmation code.
func GetReservation(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := mux.Vars(r)["code"]
		res, err := svc.Get(r.Context(), code)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toView(res, time.Now().UTC()))
	}
}

// CancelReservation cancels an active reservation, releasing its bed.
// Cancelling twice is a no-op.
func CancelReservation(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := mux.Vars(r)["code"]
		if err := svc.Cancel(r.Context(), code); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"confirmation_code": code, "status": models.ReservationCancelled})
	}
}

// ExpireReservations triggers one expiration sweep outside the scheduler,
// for admin and testing use.
func ExpireReservations(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := svc.ExpireOverdue(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"expired": count})
	}
}
