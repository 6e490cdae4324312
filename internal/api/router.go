// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bethesda-shelter/backend/internal/api/handlers"
	"github.com/bethesda-shelter/backend/internal/api/middleware"
	"github.com/bethesda-shelter/backend/internal/metrics"
	"github.com/bethesda-shelter/backend/internal/reservation"
	"github.com/bethesda-shelter/backend/internal/storage"
	"github.com/bethesda-shelter/backend/internal/voice"
	ws "github.com/bethesda-shelter/backend/internal/websocket"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	DB         *storage.DB
	Service    *reservation.Service
	Guests     *storage.GuestRepository
	Chapels    *storage.ChapelRepository
	Volunteers *storage.VolunteerRepository
	Hub        *ws.Hub
	Voice      *voice.Agent

	// ValidateToken gates the chat socket. Nil means open access (tests,
	// single-box deployments behind an authenticating proxy).
	ValidateToken func(token string) (string, bool)

	// StaticDir serves the dashboard frontend when non-empty.
	StaticDir string
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	// Health and metrics live at the root
	r.HandleFunc("/health", handlers.Health()).Methods("GET")
	r.HandleFunc("/ready", handlers.Ready(d.DB)).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Bed endpoints
	api.HandleFunc("/beds/", handlers.BedSummary(d.Service)).Methods("GET")
	api.HandleFunc("/beds/list", handlers.BedList(d.Service)).Methods("GET")
	api.HandleFunc("/beds/{id}/hold", handlers.HoldBed(d.Service)).Methods("POST")
	api.HandleFunc("/beds/{id}/checkin", handlers.CheckInBed(d.Service)).Methods("POST")
	api.HandleFunc("/beds/{id}/checkout", handlers.CheckOutBed(d.Service, d.Guests)).Methods("POST")
	api.HandleFunc("/beds/{id}/assign", handlers.AssignGuest(d.Service, d.Guests)).Methods("POST")

	// Reservation endpoints
	api.HandleFunc("/reservations/", handlers.ListReservations(d.Service)).Methods("GET")
	api.HandleFunc("/reservations/", handlers.CreateReservation(d.Service)).Methods("POST")
	api.HandleFunc("/reservations/expire", handlers.ExpireReservations(d.Service)).Methods("POST")
	api.HandleFunc("/reservations/{code}", handlers.GetReservation(d.Service)).Methods("GET")
	api.HandleFunc("/reservations/{code}/cancel", handlers.CancelReservation(d.Service)).Methods("POST")

	// Chapel endpoints
	api.HandleFunc("/chapel/", handlers.ListChapelServices(d.Chapels)).Methods("GET")
	api.HandleFunc("/chapel/", handlers.CreateChapelService(d.Chapels)).Methods("POST")
	api.HandleFunc("/chapel/{id}", handlers.GetChapelService(d.Chapels)).Methods("GET")
	api.HandleFunc("/chapel/{id}/confirm", handlers.ConfirmChapelService(d.Chapels)).Methods("POST")
	api.HandleFunc("/chapel/{id}/complete", handlers.CompleteChapelService(d.Chapels)).Methods("POST")
	api.HandleFunc("/chapel/{id}/cancel", handlers.CancelChapelService(d.Chapels)).Methods("POST")

	// Volunteer endpoints
	api.HandleFunc("/volunteers/", handlers.ListVolunteers(d.Volunteers)).Methods("GET")
	api.HandleFunc("/volunteers/", handlers.CreateVolunteer(d.Volunteers)).Methods("POST")
	api.HandleFunc("/volunteers/{id}", handlers.GetVolunteer(d.Volunteers)).Methods("GET")
	api.HandleFunc("/volunteers/{id}/status", handlers.UpdateVolunteerStatus(d.Volunteers)).Methods("PUT")

	// Voice webhook boundary for the telephony vendor integration
	if d.Voice != nil {
		api.HandleFunc("/voice/calls", handlers.StartCall(d.Voice)).Methods("POST")
		api.HandleFunc("/voice/calls/{session_id}/utterance", handlers.CallUtterance(d.Voice)).Methods("POST")
		api.HandleFunc("/voice/calls/{session_id}/hangup", handlers.EndCall(d.Voice)).Methods("POST")
	}

	// Chat + state change broadcasts share one socket
	api.HandleFunc("/chat/ws", handlers.ChatSocket(d.Hub, d.ValidateToken)).Methods("GET")

	// Serve static frontend files
	if d.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(d.StaticDir)))
	}

	return r
}
