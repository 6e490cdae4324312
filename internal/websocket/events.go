package websocket

import (
	"github.com/rs/zerolog/log"

	"github.com/bethesda-shelter/backend/internal/storage/models"
)

// EventBroadcaster publishes state transition events to the hub. It is
// called after the owning transaction commits, never inside it, so a slow
// or absent dashboard can never stall an allocation.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// BedStatusChanged sends a bed.status_changed event.
func (b *EventBroadcaster) BedStatusChanged(bedID int, from, to models.BedStatus) {
	b.broadcast(NewMessage(TypeBedStatusChanged, BedStatusPayload{
		BedID: bedID,
		From:  from,
		To:    to,
	}))
}

// ReservationCreated sends a reservation.created event.
func (b *EventBroadcaster) ReservationCreated(r *models.Reservation) {
	b.broadcast(NewMessage(TypeReservationCreated, reservationPayload(r)))
}

// ReservationCancelled sends a reservation.cancelled event.
func (b *EventBroadcaster) ReservationCancelled(r *models.Reservation) {
	b.broadcast(NewMessage(TypeReservationCancelled, reservationPayload(r)))
}

// ReservationExpired sends a reservation.expired event.
func (b *EventBroadcaster) ReservationExpired(r *models.Reservation) {
	b.broadcast(NewMessage(TypeReservationExpired, reservationPayload(r)))
}

// ReservationCheckedIn sends a reservation.checked_in event.
func (b *EventBroadcaster) ReservationCheckedIn(r *models.Reservation) {
	b.broadcast(NewMessage(TypeReservationCheckedIn, reservationPayload(r)))
}

// ChatMessage relays a staff chat message to every connected client.
func (b *EventBroadcaster) ChatMessage(sender, body string) {
	b.broadcast(NewMessage(TypeChatMessage, ChatPayload{
		Sender: sender,
		Body:   body,
	}))
}

// Notify sends a notification to all connected clients.
func (b *EventBroadcaster) Notify(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:   level,
		Title:   title,
		Message: message,
	}))
}

func reservationPayload(r *models.Reservation) ReservationPayload {
	return ReservationPayload{
		Code:       r.Code,
		BedID:      r.BedID,
		CallerName: r.CallerName,
		Status:     string(r.Status),
	}
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Error().Err(err).Msg("encoding websocket message")
		return
	}
	b.hub.Broadcast(data)
}
