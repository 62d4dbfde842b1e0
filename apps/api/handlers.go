package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/driftroom/driftroom/pkg/auth"
	"github.com/driftroom/driftroom/pkg/fanout"
	"github.com/driftroom/driftroom/pkg/metrics"
	"github.com/driftroom/driftroom/pkg/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store     *store.Store
	publisher fanout.Publisher
	auth      *auth.Authority
	logger    zerolog.Logger
	validate  *validator.Validate
}

// NewHandler creates a Handler with the given dependencies.
func NewHandler(st *store.Store, publisher fanout.Publisher, authority *auth.Authority, logger zerolog.Logger) *Handler {
	return &Handler{
		store:     st,
		publisher: publisher,
		auth:      authority,
		logger:    logger,
		validate:  validator.New(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// storeError maps store failures onto the client-visible taxonomy: missing
// at the gate is 404, vanished mid-write is 410, anything else is the
// store being unavailable.
func (h *Handler) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		h.Error(w, http.StatusNotFound, "room does not exist")
	case errors.Is(err, store.ErrRoomExpired):
		h.Error(w, http.StatusGone, "room expired")
	default:
		h.logger.Error().Err(err).Msg("store failure")
		h.Error(w, http.StatusInternalServerError, "store unavailable")
	}
}

// CreateRoom handles POST /room/create.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	roomID, err := h.store.CreateRoom(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}

	metrics.RoomsCreated.Inc()
	h.logger.Info().Str("room_id", roomID).Msg("room created")
	h.JSON(w, http.StatusOK, map[string]string{"roomId": roomID})
}

// GetRoom handles GET /room?roomId=. Serves the existence/expiry query,
// including the remaining TTL the room page counts down from.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		h.Error(w, http.StatusBadRequest, "roomId is required")
		return
	}

	room, err := h.store.GetRoom(r.Context(), roomID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, room)
}

// JoinRoom handles POST /room/join?roomId=. It mints a fresh participant
// credential bound to the room, expiring no later than the room itself.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		h.Error(w, http.StatusBadRequest, "roomId is required")
		return
	}

	remaining, err := h.store.RoomTTL(r.Context(), roomID)
	if err != nil {
		h.storeError(w, err)
		return
	}

	cred, err := h.auth.Issue(roomID, remaining)
	if err != nil {
		h.logger.Error().Err(err).Msg("credential issue failed")
		h.Error(w, http.StatusInternalServerError, "failed to issue credential")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"token": cred})
}

// DestroyRoom handles POST /room/destroy. Requires a credential for the
// room; the cascade is the same path natural expiry takes.
func (h *Handler) DestroyRoom(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	if err := h.store.DestroyRoom(r.Context(), claims.RoomID); err != nil {
		h.storeError(w, err)
		return
	}

	metrics.RoomsDestroyed.Inc()
	h.logger.Info().Str("room_id", claims.RoomID).Msg("room destroyed")
	w.WriteHeader(http.StatusNoContent)
}

type postMessageRequest struct {
	Sender string `json:"sender" validate:"required,max=100"`
	Text   string `json:"text" validate:"required,max=1000"`
}

// PostMessage handles POST /messages. The append and its TTL re-sync are
// the durable part; fan-out afterwards is best-effort and never fails the
// request.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.Error(w, http.StatusBadRequest, "sender must be 1-100 chars, text 1-1000 chars")
		return
	}

	msg, err := h.store.AppendMessage(r.Context(), claims.RoomID, req.Sender, req.Text, claims.Token)
	if err != nil {
		h.storeError(w, err)
		return
	}
	metrics.MessagesStored.Inc()

	// The message is stored; a dying request context must not abort the
	// broadcast, and a failed broadcast must not fail the request.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	if err := h.publisher.Publish(pubCtx, claims.RoomID, *msg); err != nil {
		metrics.FanoutFailures.Inc()
		h.logger.Warn().Err(err).Str("room_id", claims.RoomID).Msg("fanout failed")
	}

	// The author is the only caller who may see the stored token, and this
	// response goes only to the author.
	h.JSON(w, http.StatusCreated, msg)
}

// ListMessages handles GET /messages: the full ordered history, with each
// message's token redacted unless the caller authored it.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	messages, err := h.store.ListMessages(r.Context(), claims.RoomID, claims.Token)
	if err != nil {
		h.storeError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// Health handles GET /health with a Redis connectivity check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "redis": "fail"})
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "healthy", "redis": "pass"})
}
