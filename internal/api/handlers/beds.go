package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/bethesda-shelter/backend/internal/api/middleware"
	"github.com/bethesda-shelter/backend/internal/reservation"
	"github.com/bethesda-shelter/backend/internal/storage"
	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// BedSummary returns the per-status bed counts.
func BedSummary(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.Summary(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// BedList returns every bed with its status.
func BedList(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		beds, err := svc.Snapshot(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if beds == nil {
			beds = []models.Bed{}
		}
		writeJSON(w, http.StatusOK, beds)
	}
}

// HoldBed manually transitions an available bed to held. The bed carries
// no reservation; check-out refuses a held bed, so no endpoint releases a
// manual hold.
func HoldBed(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bedID, ok := bedIDFromPath(w, r)
		if !ok {
			return
		}
		if err := svc.Hold(r.Context(), bedID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bed_id": bedID, "status": models.BedHeld})
	}
}

// CheckInBed converts a reservation into occupancy, or performs a walk-in
// check-in when no reservation_id is supplied.
func CheckInBed(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bedID, ok := bedIDFromPath(w, r)
		if !ok {
			return
		}

		code := r.URL.Query().Get("reservation_id")
		if code == "" {
			res, err := svc.CheckInWalkIn(r.Context(), bedID, "")
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"bed_id":           bedID,
				"status":           models.BedOccupied,
				"reservation_code": res.Code,
			})
			return
		}

		if err := svc.CheckIn(r.Context(), code, bedID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bed_id": bedID, "status": models.BedOccupied})
	}
}

// CheckOutBed releases an occupied bed back to available.
func CheckOutBed(svc *reservation.Service, guests *storage.GuestRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bedID, ok := bedIDFromPath(w, r)
		if !ok {
			return
		}
		if err := svc.CheckOut(r.Context(), bedID); err != nil {
			writeServiceError(w, err)
			return
		}
		if guests != nil {
			if err := guests.UnassignBed(r.Context(), bedID); err != nil {
				writeServiceError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"bed_id": bedID, "status": models.BedAvailable})
	}
}

// AssignGuest attaches a guest record to a bed.
func AssignGuest(svc *reservation.Service, guests *storage.GuestRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bedID, ok := bedIDFromPath(w, r)
		if !ok {
			return
		}

		var req struct {
			GuestID int64 `json:"guest_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GuestID == 0 {
			middleware.WriteError(w, http.StatusBadRequest, "guest_id is required")
			return
		}

		g, err := guests.GetByID(r.Context(), req.GuestID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if g == nil {
			middleware.WriteError(w, http.StatusNotFound, "guest not found")
			return
		}

		if err := guests.AssignBed(r.Context(), req.GuestID, bedID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bed_id": bedID, "guest_id": req.GuestID})
	}
}

// bedIDFromPath parses and range-checks the {id} path variable.
func bedIDFromPath(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 || id > models.TotalBeds {
		middleware.WriteError(w, http.StatusNotFound, "bed not found, valid beds are 1-108")
		return 0, false
	}
	return id, true
}
