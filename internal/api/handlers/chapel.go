package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/bethesda-shelter/backend/internal/api/middleware"
	"github.com/bethesda-shelter/backend/internal/storage"
	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// ListChapelServices returns all chapel bookings ordered by date and time.
func ListChapelServices(chapels *storage.ChapelRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := chapels.List(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if services == nil {
			services = []models.ChapelService{}
		}
		writeJSON(w, http.StatusOK, services)
	}
}

// GetChapelService returns one chapel booking.
func GetChapelService(chapels *storage.ChapelRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64FromPath(w, r, "id")
		if !ok {
			return
		}
		svc, err := chapels.GetByID(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if svc == nil {
			middleware.WriteError(w, http.StatusNotFound, "chapel service not found")
			return
		}
		writeJSON(w, http.StatusOK, svc)
	}
}

// CreateChapelService books a chapel slot. Weekdays only; time must be one
// of the fixed slots; the slot must be free.
func CreateChapelService(chapels *storage.ChapelRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Date         string `json:"date"`
			Time         string `json:"time"`
			GroupName    string `json:"group_name"`
			ContactName  string `json:"contact_name"`
			ContactPhone string `json:"contact_phone"`
			ContactEmail string `json:"contact_email"`
			Notes        string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var fieldErrors []string
		day, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			fieldErrors = append(fieldErrors, "date: must be YYYY-MM-DD")
		} else if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			middleware.WriteError(w, http.StatusBadRequest, "chapel services are only available on weekdays")
			return
		}
		if !models.ValidChapelTime(req.Time) {
			fieldErrors = append(fieldErrors, "time: must be one of 10:00, 13:00, 19:00")
		}
		if req.GroupName == "" {
			fieldErrors = append(fieldErrors, "group_name: required")
		}
		if req.ContactName == "" {
			fieldErrors = append(fieldErrors, "contact_name: required")
		}
		if len(fieldErrors) > 0 {
			middleware.WriteFieldErrors(w, fieldErrors)
			return
		}

		svc := &models.ChapelService{
			Date:         req.Date,
			Time:         req.Time,
			GroupName:    req.GroupName,
			ContactName:  req.ContactName,
			ContactPhone: req.ContactPhone,
			ContactEmail: req.ContactEmail,
			Notes:        req.Notes,
			Status:       models.ChapelPending,
		}
		if err := chapels.Create(r.Context(), svc); err != nil {
			if errors.Is(err, storage.ErrSlotTaken) {
				middleware.WriteError(w, http.StatusConflict, "a chapel service is already scheduled for this date and time")
				return
			}
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, svc)
	}
}

// ConfirmChapelService confirms a pending booking.
func ConfirmChapelService(chapels *storage.ChapelRepository) http.HandlerFunc {
	return chapelStatusHandler(chapels, models.ChapelConfirmed)
}

// CompleteChapelService marks a booking completed.
func CompleteChapelService(chapels *storage.ChapelRepository) http.HandlerFunc {
	return chapelStatusHandler(chapels, models.ChapelCompleted)
}

// CancelChapelService cancels a booking, freeing its slot.
func CancelChapelService(chapels *storage.ChapelRepository) http.HandlerFunc {
	return chapelStatusHandler(chapels, models.ChapelCancelled)
}

func chapelStatusHandler(chapels *storage.ChapelRepository, status models.ChapelStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := int64FromPath(w, r, "id")
		if !ok {
			return
		}
		if err := chapels.UpdateStatus(r.Context(), id, status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				middleware.WriteError(w, http.StatusNotFound, "chapel service not found")
				return
			}
			writeServiceError(w, err)
			return
		}
		svc, err := chapels.GetByID(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, svc)
	}
}

func int64FromPath(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[key], 10, 64)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	return id, true
}
