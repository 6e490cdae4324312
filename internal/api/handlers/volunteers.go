package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bethesda-shelter/backend/internal/api/middleware"
	"github.com/bethesda-shelter/backend/internal/storage"
	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// ListVolunteers returns all volunteers ordered by name.
func ListVolunteers(volunteers *storage.VolunteerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := volunteers.List(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if list == nil {
			list = []models.Volunteer{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GetVolunteer returns one volunteer.
func GetVolunteer(volunteers *storage.VolunteerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64FromPath(w, r, "id")
		if !ok {
			return
		}
		v, err := volunteers.GetByID(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if v == nil {
			middleware.WriteError(w, http.StatusNotFound, "volunteer not found")
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// CreateVolunteer registers a new volunteer.
func CreateVolunteer(volunteers *storage.VolunteerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name         string   `json:"name"`
			Phone        string   `json:"phone"`
			Email        string   `json:"email"`
			Availability []string `json:"availability"`
			Interests    []string `json:"interests"`
			Notes        string   `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var fieldErrors []string
		if req.Name == "" {
			fieldErrors = append(fieldErrors, "name: required")
		}
		if req.Phone == "" {
			fieldErrors = append(fieldErrors, "phone: required")
		}
		if len(fieldErrors) > 0 {
			middleware.WriteFieldErrors(w, fieldErrors)
			return
		}

		v := &models.Volunteer{
			Name:         req.Name,
			Phone:        req.Phone,
			Email:        req.Email,
			Availability: req.Availability,
			Interests:    req.Interests,
			Notes:        req.Notes,
			Status:       models.VolunteerPending,
		}
		if err := volunteers.Create(r.Context(), v); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}

// UpdateVolunteerStatus moves a volunteer between pending, active, and
// inactive.
func UpdateVolunteerStatus(volunteers *storage.VolunteerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64FromPath(w, r, "id")
		if !ok {
			return
		}

		var req struct {
			Status models.VolunteerStatus `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Status.Valid() {
			middleware.WriteError(w, http.StatusBadRequest, "status must be pending, active, or inactive")
			return
		}

		if err := volunteers.UpdateStatus(r.Context(), id, req.Status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				middleware.WriteError(w, http.StatusNotFound, "volunteer not found")
				return
			}
			writeServiceError(w, err)
			return
		}
		v, err := volunteers.GetByID(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}
