package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/driftroom/driftroom/pkg/metrics"
	"github.com/driftroom/driftroom/pkg/model"
	"github.com/driftroom/driftroom/pkg/store"
)

// Hub routes room events from the fan-out bus to subscribed websocket
// clients. All room-map access happens on the Run goroutine; the Kafka
// consumer feeds it through the events channel.
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	events     chan model.Event

	reader *kafka.Reader
	store  *store.Store
	logger zerolog.Logger
}

// NewHub creates a hub consuming the given topic. Each gateway instance
// uses a unique consumer group so every instance sees every event; the
// per-room routing happens here, not in the broker.
func NewHub(brokers []string, topic string, st *store.Store, logger zerolog.Logger) *Hub {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "gateway-" + uuid.NewString(),
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan model.Event, 64),
		reader:     reader,
		store:      st,
		logger:     logger,
	}
}

// Run is the hub's event loop. It owns the room map.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case event := <-h.events:
			h.dispatch(event)
		}
	}
}

// Consume reads events off the bus and hands them to the Run loop. Blocks
// until the context is cancelled or the reader fails.
func (h *Hub) Consume(ctx context.Context) {
	defer h.reader.Close()
	for {
		m, err := h.reader.ReadMessage(ctx)
		if err != nil {
			h.logger.Error().Err(err).Msg("consumer stopped")
			return
		}

		var event model.Event
		if err := json.Unmarshal(m.Value, &event); err != nil {
			h.logger.Warn().Err(err).Msg("dropping malformed event")
			continue
		}
		h.events <- event
	}
}

func (h *Hub) add(client *Client) {
	if h.rooms[client.RoomID] == nil {
		h.rooms[client.RoomID] = make(map[*Client]bool)
	}
	h.rooms[client.RoomID][client] = true
	metrics.WSConnections.Inc()

	// Record presence in the room's connected set; the set carries the
	// room's TTL so it vanishes with everything else.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.store.AddParticipant(ctx, client.RoomID, client.ID); err != nil {
		h.logger.Warn().Err(err).Str("room_id", client.RoomID).Msg("failed to record presence")
	}

	h.logger.Info().Str("room_id", client.RoomID).Str("client_id", client.ID).Msg("client subscribed")
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.RoomID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.RoomID)
	}
	metrics.WSConnections.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.store.RemoveParticipant(ctx, client.RoomID, client.ID); err != nil {
		h.logger.Warn().Err(err).Str("room_id", client.RoomID).Msg("failed to clear presence")
	}

	h.logger.Info().Str("room_id", client.RoomID).Str("client_id", client.ID).Msg("client unsubscribed")
}

// dispatch delivers an event to every client subscribed to its room.
// Delivery is at-most-once: a client whose send buffer is full is dropped
// rather than allowed to stall the room.
func (h *Hub) dispatch(event model.Event) {
	clients, ok := h.rooms[event.RoomID]
	if !ok {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to marshal event")
		return
	}

	for client := range clients {
		select {
		case client.send <- payload:
			metrics.EventsDelivered.Inc()
		default:
			delete(clients, client)
			close(client.send)
			metrics.WSConnections.Dec()
		}
	}
	if len(clients) == 0 {
		delete(h.rooms, event.RoomID)
	}
}
