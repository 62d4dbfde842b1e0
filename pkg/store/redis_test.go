package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, roomTTL time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s, err := NewWithClient(client, roomTTL, 0)
	if err != nil {
		t.Fatal(err)
	}
	return s, mr
}

func TestCreateRoomExistsUntilTTL(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if roomID == "" {
		t.Fatal("expected a non-empty room id")
	}

	exists, err := s.RoomExists(ctx, roomID)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("room should exist immediately after creation")
	}

	mr.FastForward(time.Minute + time.Second)

	exists, err = s.RoomExists(ctx, roomID)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("room should be gone after the TTL elapses")
	}
}

func TestAppendToMissingRoom(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	_, err := s.AppendMessage(ctx, "no-such-room", "alice", "hi", "tok")
	if !errors.Is(err, ErrRoomExpired) {
		t.Fatalf("expected ErrRoomExpired, got %v", err)
	}
	if mr.Exists("messages:no-such-room") {
		t.Fatal("a rejected append must not leave a history key behind")
	}
}

func TestAppendOrderAndServerTimestamps(t *testing.T) {
	s, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}

	const n = 20
	sent := make([]string, 0, n)
	for i := 0; i < n; i++ {
		text := "message-" + string(rune('a'+i))
		if _, err := s.AppendMessage(ctx, roomID, "alice", text, "tok"); err != nil {
			t.Fatal(err)
		}
		sent = append(sent, text)
	}

	messages, err := s.ListMessages(ctx, roomID, "tok")
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != n {
		t.Fatalf("expected %d messages, got %d", n, len(messages))
	}

	var prevTS int64
	seen := make(map[string]bool)
	for i, m := range messages {
		if m.Text != sent[i] {
			t.Fatalf("message %d out of order: got %q want %q", i, m.Text, sent[i])
		}
		if m.Timestamp < prevTS {
			t.Fatalf("timestamps must be non-decreasing: %d after %d", m.Timestamp, prevTS)
		}
		prevTS = m.Timestamp
		if m.ID == "" || seen[m.ID] {
			t.Fatalf("message %d has empty or duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
	}
}

func TestRedactionPerCredential(t *testing.T) {
	s, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.AppendMessage(ctx, roomID, "alice", "from alice", "tok-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendMessage(ctx, roomID, "bob", "from bob", "tok-b"); err != nil {
		t.Fatal(err)
	}

	asAlice, err := s.ListMessages(ctx, roomID, "tok-a")
	if err != nil {
		t.Fatal(err)
	}
	if asAlice[0].Token != "tok-a" {
		t.Fatalf("alice should see her own token, got %q", asAlice[0].Token)
	}
	if asAlice[1].Token != "" {
		t.Fatalf("alice must not see bob's token, got %q", asAlice[1].Token)
	}

	asBob, err := s.ListMessages(ctx, roomID, "tok-b")
	if err != nil {
		t.Fatal(err)
	}
	if asBob[0].Token != "" {
		t.Fatalf("bob must not see alice's token, got %q", asBob[0].Token)
	}
	if asBob[1].Token != "tok-b" {
		t.Fatalf("bob should see his own token, got %q", asBob[1].Token)
	}
}

func TestTTLResyncConverges(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Late in the room's life the history must inherit the shrunken
	// remaining TTL, not the original one.
	mr.FastForward(40 * time.Second)

	if _, err := s.AppendMessage(ctx, roomID, "alice", "late post", "tok"); err != nil {
		t.Fatal(err)
	}

	metaTTL := mr.TTL(metaKey(roomID))
	historyTTL := mr.TTL(messagesKey(roomID))
	if historyTTL != metaTTL {
		t.Fatalf("history TTL %s must equal room TTL %s after re-sync", historyTTL, metaTTL)
	}
	if historyTTL <= 0 || historyTTL > 20*time.Second {
		t.Fatalf("history TTL %s should match the ~20s remaining, not the original lifetime", historyTTL)
	}
}

func TestListMissingRoomIsEmptyNotError(t *testing.T) {
	s, _ := newTestStore(t, time.Minute)

	messages, err := s.ListMessages(context.Background(), "never-existed", "tok")
	if err != nil {
		t.Fatalf("reading a missing room must not fail: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(messages))
	}
}

func TestFreshRoomListsEmpty(t *testing.T) {
	s, _ := newTestStore(t, time.Minute)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}
	messages, err := s.ListMessages(ctx, roomID, "tok")
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty history for a fresh room, got %d", len(messages))
	}
}

func TestExpiryRejectsWritesAndEmptiesReads(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendMessage(ctx, roomID, "alice", "hi", "tok"); err != nil {
		t.Fatal(err)
	}

	mr.FastForward(2 * time.Minute)

	messages, err := s.ListMessages(ctx, roomID, "tok")
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 0 {
		t.Fatalf("expired room must read as empty, got %d messages", len(messages))
	}

	if _, err := s.AppendMessage(ctx, roomID, "alice", "too late", "tok"); !errors.Is(err, ErrRoomExpired) {
		t.Fatalf("expected ErrRoomExpired, got %v", err)
	}
}

func TestDestroyRoomCascades(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendMessage(ctx, roomID, "alice", "hi", "tok"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddParticipant(ctx, roomID, "alice"); err != nil {
		t.Fatal(err)
	}

	if err := s.DestroyRoom(ctx, roomID); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{metaKey(roomID), messagesKey(roomID), connectedKey(roomID)} {
		if mr.Exists(key) {
			t.Fatalf("destroy must cascade to %s", key)
		}
	}

	exists, err := s.RoomExists(ctx, roomID)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("destroyed room must not exist")
	}
}

func TestDestroyMissingRoom(t *testing.T) {
	s, _ := newTestStore(t, time.Minute)

	if err := s.DestroyRoom(context.Background(), "no-such-room"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestRoomTTLCountsDown(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}

	remaining, err := s.RoomTTL(ctx, roomID)
	if err != nil {
		t.Fatal(err)
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Fatalf("unexpected remaining TTL %s", remaining)
	}

	mr.FastForward(30 * time.Second)

	remaining, err = s.RoomTTL(ctx, roomID)
	if err != nil {
		t.Fatal(err)
	}
	if remaining > 30*time.Second {
		t.Fatalf("TTL should have counted down, got %s", remaining)
	}

	mr.FastForward(time.Minute)

	if _, err := s.RoomTTL(ctx, roomID); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound after expiry, got %v", err)
	}
}

func TestGetRoomAndParticipants(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddParticipant(ctx, roomID, "alice"); err != nil {
		t.Fatal(err)
	}

	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		t.Fatal(err)
	}
	if room.CreatedAt <= 0 {
		t.Fatalf("expected a creation timestamp, got %d", room.CreatedAt)
	}
	if room.TTLRemaining <= 0 {
		t.Fatalf("expected a positive remaining TTL, got %d", room.TTLRemaining)
	}
	if len(room.Connected) != 1 || room.Connected[0] != "alice" {
		t.Fatalf("unexpected connected set: %v", room.Connected)
	}

	// The connected set must die with the room.
	if connTTL := mr.TTL(connectedKey(roomID)); connTTL <= 0 {
		t.Fatalf("connected set must carry the room's TTL, got %s", connTTL)
	}

	if err := s.RemoveParticipant(ctx, roomID, "alice"); err != nil {
		t.Fatal(err)
	}
	room, err = s.GetRoom(ctx, roomID)
	if err != nil {
		t.Fatal(err)
	}
	if len(room.Connected) != 0 {
		t.Fatalf("expected empty connected set, got %v", room.Connected)
	}

	if _, err := s.GetRoom(ctx, "no-such-room"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestAddParticipantToExpiredRoom(t *testing.T) {
	s, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	roomID, err := s.CreateRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)

	if err := s.AddParticipant(ctx, roomID, "alice"); !errors.Is(err, ErrRoomExpired) {
		t.Fatalf("expected ErrRoomExpired, got %v", err)
	}
}
