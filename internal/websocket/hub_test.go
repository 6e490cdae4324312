package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bethesda-shelter/backend/internal/storage/models"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	return hub
}

func TestHubBroadcastReachesClients(t *testing.T) {
	hub := startHub(t)

	client := NewClient(hub)
	hub.Register(client)

	broadcaster := NewEventBroadcaster(hub)
	broadcaster.BedStatusChanged(1, models.BedAvailable, models.BedHeld)

	select {
	case raw := <-client.Send():
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, TypeBedStatusChanged, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	hub.Unregister(client)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := startHub(t)

	client := NewClient(hub)
	hub.Register(client)

	// Never drain the client; its queue fills and the hub must cut it
	// loose rather than stall.
	broadcaster := NewEventBroadcaster(hub)
	for i := 0; i < sendBufferSize+16; i++ {
		broadcaster.Notify("info", "tick", "noise")
		time.Sleep(time.Millisecond / 4)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Zero(t, hub.ClientCount())
}

func TestReservationEventPayload(t *testing.T) {
	hub := startHub(t)

	client := NewClient(hub)
	hub.Register(client)

	r := &models.Reservation{
		Code:       "BM-0001",
		BedID:      4,
		CallerName: "John Smith",
		Status:     models.ReservationActive,
	}
	NewEventBroadcaster(hub).ReservationCreated(r)

	select {
	case raw := <-client.Send():
		var msg struct {
			Type    MessageType        `json:"type"`
			Payload ReservationPayload `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, TypeReservationCreated, msg.Type)
		assert.Equal(t, "BM-0001", msg.Payload.Code)
		assert.Equal(t, 4, msg.Payload.BedID)
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}
