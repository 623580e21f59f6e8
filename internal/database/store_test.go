package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"roomchat/pkg/interfaces"
	"roomchat/pkg/types"
)

// testStoreContract exercises the behavior every interfaces.Store backend shares
func testStoreContract(t *testing.T, newStore func(t *testing.T) interfaces.Store) {
	t.Run("FindMissingRoom", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.FindRoomByName(context.Background(), "nowhere"); !errors.Is(err, interfaces.ErrRoomNotFound) {
			t.Errorf("Expected ErrRoomNotFound, got %v", err)
		}
	})

	t.Run("CreateAndFind", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		created, err := store.CreateRoom(ctx, "lobby", []byte("0123456789abcdef0123456789abcdef"), []byte("iv-bytes"))
		if err != nil {
			t.Fatalf("CreateRoom() error = %v", err)
		}
		if created.ID == "" || created.CreatedAt.IsZero() {
			t.Errorf("created room should have id and timestamp: %+v", created)
		}

		found, err := store.FindRoomByName(ctx, "lobby")
		if err != nil {
			t.Fatalf("FindRoomByName() error = %v", err)
		}
		if found.ID != created.ID || string(found.Key) != string(created.Key) || string(found.IV) != string(created.IV) {
			t.Errorf("found %+v, want %+v", found, created)
		}
		if !found.CreatedAt.Equal(created.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", found.CreatedAt, created.CreatedAt)
		}
	})

	t.Run("DuplicateNameConflicts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if _, err := store.CreateRoom(ctx, "lobby", []byte("k"), []byte("i")); err != nil {
			t.Fatalf("CreateRoom() error = %v", err)
		}
		if _, err := store.CreateRoom(ctx, "lobby", []byte("k2"), []byte("i2")); !errors.Is(err, interfaces.ErrRoomExists) {
			t.Errorf("Expected ErrRoomExists, got %v", err)
		}
	})

	t.Run("ConcurrentCreateOneWinner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const workers = 8
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			winners  int
			conflict int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.CreateRoom(ctx, "race", []byte("k"), []byte("i"))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					winners++
				case errors.Is(err, interfaces.ErrRoomExists):
					conflict++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if winners != 1 || conflict != workers-1 {
			t.Errorf("winners = %d, conflicts = %d", winners, conflict)
		}
	})

	t.Run("RecentMessagesOldestFirst", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		room, err := store.CreateRoom(ctx, "history", []byte("k"), []byte("i"))
		if err != nil {
			t.Fatal(err)
		}

		base := time.Now()
		for i := 0; i < 5; i++ {
			msg := &types.Message{
				ID:         uuid.New().String(),
				RoomID:     room.ID,
				Sender:     "alice",
				Ciphertext: []byte(fmt.Sprintf("m%d", i)),
				Timestamp:  base.Add(time.Duration(i) * time.Millisecond),
			}
			if err := store.AppendMessage(ctx, msg); err != nil {
				t.Fatalf("AppendMessage() error = %v", err)
			}
		}

		msgs, err := store.ListRecentMessages(ctx, room.ID, 3)
		if err != nil {
			t.Fatalf("ListRecentMessages() error = %v", err)
		}
		if len(msgs) != 3 {
			t.Fatalf("got %d messages, want 3", len(msgs))
		}
		for i, want := range []string{"m2", "m3", "m4"} {
			if string(msgs[i].Ciphertext) != want {
				t.Errorf("msgs[%d] = %s, want %s", i, msgs[i].Ciphertext, want)
			}
		}
		if !msgs[0].Timestamp.Equal(base.Add(2 * time.Millisecond)) {
			t.Errorf("timestamp not preserved: %v", msgs[0].Timestamp)
		}

		none, err := store.ListRecentMessages(ctx, room.ID, 0)
		if err != nil || len(none) != 0 {
			t.Errorf("limit 0 should return nothing, got %d (%v)", len(none), err)
		}
	})

	t.Run("EqualTimestampsKeepInsertOrder", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		room, _ := store.CreateRoom(ctx, "ties", []byte("k"), []byte("i"))
		at := time.Now()
		for _, body := range []string{"first", "second", "third"} {
			_ = store.AppendMessage(ctx, &types.Message{
				ID: uuid.New().String(), RoomID: room.ID, Sender: "bob", Ciphertext: []byte(body), Timestamp: at,
			})
		}

		msgs, err := store.ListRecentMessages(ctx, room.ID, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 3 || string(msgs[0].Ciphertext) != "first" || string(msgs[2].Ciphertext) != "third" {
			t.Errorf("unexpected order: %v", msgs)
		}
	})

	t.Run("AppendToMissingRoomFails", func(t *testing.T) {
		store := newStore(t)
		err := store.AppendMessage(context.Background(), &types.Message{
			ID: uuid.New().String(), RoomID: "missing", Sender: "x", Ciphertext: []byte("x"), Timestamp: time.Now(),
		})
		if err == nil {
			t.Error("message for an unknown room must be rejected")
		}
	})

	t.Run("DeleteRoomCascades", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		room, _ := store.CreateRoom(ctx, "doomed", []byte("k"), []byte("i"))
		_ = store.AppendMessage(ctx, &types.Message{
			ID: uuid.New().String(), RoomID: room.ID, Sender: "alice", Ciphertext: []byte("x"), Timestamp: time.Now(),
		})

		if err := store.DeleteRoom(ctx, room.ID); err != nil {
			t.Fatalf("DeleteRoom() error = %v", err)
		}
		if _, err := store.FindRoomByName(ctx, "doomed"); !errors.Is(err, interfaces.ErrRoomNotFound) {
			t.Errorf("room should be gone, got %v", err)
		}
		msgs, err := store.ListRecentMessages(ctx, room.ID, 10)
		if err != nil || len(msgs) != 0 {
			t.Errorf("messages should be gone, got %d (%v)", len(msgs), err)
		}
		if err := store.DeleteRoom(ctx, room.ID); !errors.Is(err, interfaces.ErrRoomNotFound) {
			t.Errorf("second delete should return ErrRoomNotFound, got %v", err)
		}

		// The name is free again
		if _, err := store.CreateRoom(ctx, "doomed", []byte("k"), []byte("i")); err != nil {
			t.Errorf("recreating a deleted room failed: %v", err)
		}
	})

	t.Run("HealthCheck", func(t *testing.T) {
		store := newStore(t)
		if err := store.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck() error = %v", err)
		}
	})
}
