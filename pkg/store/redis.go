// Package store persists rooms and their message histories in Redis.
//
// Per-room layout: a "meta:" hash holding creation metadata, a "messages:"
// list holding the ordered history as JSON, and a "connected:" set of
// currently-joined participants. The meta key's expiry is the single source
// of truth for room lifetime; after every write the other keys are
// re-armed with the meta key's freshly-read remaining TTL so everything
// disappears together.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/driftroom/driftroom/pkg/model"
	"github.com/driftroom/driftroom/pkg/msgid"
)

// Store handles all Redis operations for rooms and messages. Safe for
// concurrent use; nothing is cached across calls.
type Store struct {
	client  *redis.Client
	ids     *msgid.Generator
	roomTTL time.Duration
}

// New connects to Redis and returns a Store that arms roomTTL on every new
// room. node partitions the message ID space across API instances.
func New(ctx context.Context, addr string, roomTTL time.Duration, node int64) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return NewWithClient(client, roomTTL, node)
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, roomTTL time.Duration, node int64) (*Store, error) {
	ids, err := msgid.NewGenerator(node)
	if err != nil {
		return nil, err
	}
	return &Store{client: client, ids: ids, roomTTL: roomTTL}, nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func metaKey(roomID string) string {
	return "meta:" + roomID
}

func messagesKey(roomID string) string {
	return "messages:" + roomID
}

func connectedKey(roomID string) string {
	return "connected:" + roomID
}

// CreateRoom writes a fresh room record and arms the configured TTL.
// Returns the new room ID.
func (s *Store) CreateRoom(ctx context.Context) (string, error) {
	roomID := uuid.NewString()

	key := metaKey(roomID)
	if err := s.client.HSet(ctx, key, "createdAt", time.Now().UnixMilli()).Err(); err != nil {
		return "", fmt.Errorf("store: create room: %w", err)
	}
	if err := s.client.PExpire(ctx, key, s.roomTTL).Err(); err != nil {
		return "", fmt.Errorf("store: arm room ttl: %w", err)
	}

	return roomID, nil
}

// RoomExists reports whether the room's metadata is still present. The
// store's expiry is authoritative; there is no in-memory liveness state.
func (s *Store) RoomExists(ctx context.Context, roomID string) (bool, error) {
	n, err := s.client.Exists(ctx, metaKey(roomID)).Result()
	if err != nil {
		return false, fmt.Errorf("store: exists: %w", err)
	}
	return n > 0, nil
}

// RoomTTL returns the room's remaining lifetime, read fresh from the store.
func (s *Store) RoomTTL(ctx context.Context, roomID string) (time.Duration, error) {
	remaining, err := s.client.PTTL(ctx, metaKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("store: pttl: %w", err)
	}
	if remaining <= 0 {
		return 0, ErrRoomNotFound
	}
	return remaining, nil
}

// GetRoom returns the room's metadata, remaining TTL, and connected set.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	meta, err := s.client.HGetAll(ctx, metaKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: room meta: %w", err)
	}
	if len(meta) == 0 {
		return nil, ErrRoomNotFound
	}

	createdAt, _ := strconv.ParseInt(meta["createdAt"], 10, 64)

	remaining, err := s.RoomTTL(ctx, roomID)
	if err != nil {
		return nil, err
	}

	connected, err := s.client.SMembers(ctx, connectedKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: connected set: %w", err)
	}

	return &model.Room{
		RoomID:       roomID,
		CreatedAt:    createdAt,
		Connected:    connected,
		TTLRemaining: int64(remaining / time.Second),
	}, nil
}

// AppendMessage appends a message to the room's history and re-synchronizes
// the history's TTL with the room's remaining lifetime. The existence check
// runs again here, at write time: a room can expire between the gate check
// and the append, and that race must reject the write, not orphan it.
func (s *Store) AppendMessage(ctx context.Context, roomID, sender, text, token string) (*model.Message, error) {
	exists, err := s.RoomExists(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrRoomExpired
	}

	msg := &model.Message{
		ID:        s.ids.NextString(),
		RoomID:    roomID,
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		Token:     token,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("store: marshal message: %w", err)
	}
	if err := s.client.RPush(ctx, messagesKey(roomID), data).Err(); err != nil {
		return nil, fmt.Errorf("store: append: %w", err)
	}

	// TTL re-sync, only after the append is confirmed. The remaining value
	// is read fresh every time: list keys do not inherit the hash key's
	// countdown, and repeated posts late in a room's life must keep
	// shrinking the history's lifetime in lockstep with the metadata.
	remaining, err := s.client.PTTL(ctx, metaKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: read remaining ttl: %w", err)
	}
	if remaining <= 0 {
		// The room died mid-append. Drop the orphaned keys so nothing
		// outlives the metadata.
		s.client.Del(ctx, messagesKey(roomID), connectedKey(roomID))
		return nil, ErrRoomExpired
	}
	if err := s.expireKeys(ctx, remaining, messagesKey(roomID), connectedKey(roomID)); err != nil {
		return nil, err
	}

	return msg, nil
}

// ListMessages returns the room's full ordered history, with each
// message's token redacted unless it matches the caller's. A missing or
// just-expired room reads as an empty history, never an error.
func (s *Store) ListMessages(ctx context.Context, roomID, token string) ([]model.Message, error) {
	entries, err := s.client.LRange(ctx, messagesKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}

	messages := make([]model.Message, 0, len(entries))
	for _, data := range entries {
		var msg model.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg.RedactFor(token))
	}

	return messages, nil
}

// DestroyRoom expires the room immediately. It reuses the same expiry path
// the natural timeout takes: every per-room key is armed with a
// non-positive TTL, which the store treats as instant removal, so there is
// no second deletion cascade to keep in sync.
func (s *Store) DestroyRoom(ctx context.Context, roomID string) error {
	exists, err := s.RoomExists(ctx, roomID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrRoomNotFound
	}
	return s.expireKeys(ctx, 0, metaKey(roomID), messagesKey(roomID), connectedKey(roomID))
}

// AddParticipant records a participant in the room's connected set and
// re-syncs the set's TTL with the room's remaining lifetime.
func (s *Store) AddParticipant(ctx context.Context, roomID, participant string) error {
	exists, err := s.RoomExists(ctx, roomID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrRoomExpired
	}

	if err := s.client.SAdd(ctx, connectedKey(roomID), participant).Err(); err != nil {
		return fmt.Errorf("store: add participant: %w", err)
	}

	remaining, err := s.client.PTTL(ctx, metaKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("store: read remaining ttl: %w", err)
	}
	if remaining <= 0 {
		s.client.Del(ctx, connectedKey(roomID))
		return ErrRoomExpired
	}
	return s.expireKeys(ctx, remaining, connectedKey(roomID))
}

// RemoveParticipant drops a participant from the room's connected set.
// Missing rooms are fine: disconnects race with expiry by design.
func (s *Store) RemoveParticipant(ctx context.Context, roomID, participant string) error {
	if err := s.client.SRem(ctx, connectedKey(roomID), participant).Err(); err != nil {
		return fmt.Errorf("store: remove participant: %w", err)
	}
	return nil
}

func (s *Store) expireKeys(ctx context.Context, remaining time.Duration, keys ...string) error {
	for _, key := range keys {
		if err := s.client.PExpire(ctx, key, remaining).Err(); err != nil {
			return fmt.Errorf("store: expire %s: %w", key, err)
		}
	}
	return nil
}
