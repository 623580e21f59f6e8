package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"roomchat/internal/encryption"
	"roomchat/internal/membership"
	"roomchat/pkg/types"
)

type testHarness struct {
	ctl       *Controller
	registry  *membership.Registry
	directory *membership.Directory
	store     *memoryStore
	gateway   *inboxGateway
	cipher    *encryption.Cipher
}

func newHarness(t *testing.T, opts Options) *testHarness {
	t.Helper()

	registry := membership.NewRegistry(nil)
	directory := membership.NewDirectory()
	store := newMemoryStore()
	gateway := newInboxGateway(membership.NewView(registry, directory))
	cipher := encryption.NewCipher()

	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Date(2024, 1, 1, 12, 34, 0, 0, time.Local) }
	}

	return &testHarness{
		ctl:       NewController(registry, directory, store, cipher, gateway, opts),
		registry:  registry,
		directory: directory,
		store:     store,
		gateway:   gateway,
		cipher:    cipher,
	}
}

func eventTypes(events []types.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func requireKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("error kind = %s, want %s (err: %v)", got, want, err)
	}
}

func TestController_AliceBobScenario(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	// Alice joins an empty room
	if err := h.ctl.Join(ctx, "alice-conn", "Alice", "general"); err != nil {
		t.Fatalf("Alice Join() error = %v", err)
	}
	got := h.gateway.drain("alice-conn")
	wantTypes := []string{types.EventSetEncryptionKeys, types.EventSystemNotification, types.EventUpdateUserList}
	if !reflect.DeepEqual(eventTypes(got), wantTypes) {
		t.Fatalf("Alice events = %v, want %v", eventTypes(got), wantTypes)
	}
	if got[1].Text != "Alice присоединился к чату" {
		t.Errorf("join notice = %q", got[1].Text)
	}
	if !reflect.DeepEqual(got[2].Names, []string{"Alice"}) {
		t.Errorf("roster = %v, want [Alice]", got[2].Names)
	}
	firstRoom, ok := h.store.room("general")
	if !ok {
		t.Fatal("room record should be created on first join")
	}
	if got[0].Key == "" || got[0].IV == "" {
		t.Error("key material should be delivered to the joiner")
	}

	// Bob joins
	if err := h.ctl.Join(ctx, "bob-conn", "Bob", "General"); err != nil {
		t.Fatalf("Bob Join() error = %v", err)
	}
	bobEvents := h.gateway.drain("bob-conn")
	if last := bobEvents[len(bobEvents)-1]; !reflect.DeepEqual(last.Names, []string{"Alice", "Bob"}) {
		t.Errorf("Bob roster = %v, want [Alice Bob]", last.Names)
	}
	aliceEvents := h.gateway.drain("alice-conn")
	if len(aliceEvents) != 2 || !reflect.DeepEqual(aliceEvents[1].Names, []string{"Alice", "Bob"}) {
		t.Errorf("Alice should see Bob's join and the new roster, got %+v", aliceEvents)
	}

	// Alice sends
	if err := h.ctl.Send(ctx, "alice-conn", "hi"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	for _, conn := range []string{"alice-conn", "bob-conn"} {
		events := h.gateway.drain(conn)
		if len(events) != 1 {
			t.Fatalf("%s expected 1 event, got %d", conn, len(events))
		}
		ev := events[0]
		if ev.Type != types.EventReceiveMessage || ev.Sender != "Alice" || ev.Text != "hi" || ev.Time != "12:34" {
			t.Errorf("%s unexpected message event: %+v", conn, ev)
		}
	}
	if n := h.store.messageCount(); n != 1 {
		t.Fatalf("expected 1 persisted message, got %d", n)
	}
	stored, _ := h.store.ListRecentMessages(ctx, firstRoom.ID, 100)
	if stored[0].RoomID != firstRoom.ID || string(stored[0].Ciphertext) == "hi" {
		t.Errorf("message should be stored encrypted for room general: %+v", stored[0])
	}

	// Bob disconnects
	h.ctl.Leave("bob-conn")
	aliceEvents = h.gateway.drain("alice-conn")
	if len(aliceEvents) != 2 || aliceEvents[0].Text != "Bob покинул чат" {
		t.Fatalf("Alice should see Bob leave, got %+v", aliceEvents)
	}
	if !reflect.DeepEqual(aliceEvents[1].Names, []string{"Alice"}) {
		t.Errorf("roster after leave = %v, want [Alice]", aliceEvents[1].Names)
	}
	if _, ok := h.directory.Lookup("bob-conn"); ok {
		t.Error("Bob should have no binding after leave")
	}

	// Alice deletes the room
	if err := h.ctl.Delete(ctx, "alice-conn", "general"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	aliceEvents = h.gateway.drain("alice-conn")
	if len(aliceEvents) != 1 || aliceEvents[0].Type != types.EventSystemNotification {
		t.Fatalf("Alice should get one deletion notice, got %+v", aliceEvents)
	}
	if aliceEvents[0].Text != "Комната general была удалена" {
		t.Errorf("deletion notice = %q", aliceEvents[0].Text)
	}
	if _, ok := h.store.room("general"); ok {
		t.Error("room record should be removed from the store")
	}
	if _, ok := h.directory.Lookup("alice-conn"); ok {
		t.Error("Alice should be unbound after delete")
	}

	// A fresh join recreates the room
	if err := h.ctl.Join(ctx, "carol-conn", "Carol", "general"); err != nil {
		t.Fatalf("Join() after delete error = %v", err)
	}
	secondRoom, _ := h.store.room("general")
	if secondRoom.ID == firstRoom.ID || string(secondRoom.Key) == string(firstRoom.Key) {
		t.Error("rejoin after delete should create a fresh room with new key material")
	}
	carolEvents := h.gateway.drain("carol-conn")
	for _, ev := range carolEvents {
		if ev.Type == types.EventReceiveMessage {
			t.Errorf("fresh room should have empty history, got %+v", ev)
		}
	}
}

func TestController_JoinValidation(t *testing.T) {
	h := newHarness(t, Options{})

	tests := []struct {
		name    string
		display string
		room    string
		wantMsg string
	}{
		{"empty name", "   ", "general", msgEmptyName},
		{"empty room", "Alice", "  ", msgEmptyRoom},
		{"control char name", "Al\x07ice", "general", msgInvalidName},
		{"overlong room", "Alice", strings.Repeat("r", types.MaxRoomNameLength+1), msgInvalidRoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.ctl.Join(context.Background(), "c1", tt.display, tt.room)
			requireKind(t, err, KindValidation)
			if UserMessage(err) != tt.wantMsg {
				t.Errorf("UserMessage() = %q, want %q", UserMessage(err), tt.wantMsg)
			}
		})
	}

	if rooms, conns := h.registry.Counts(); rooms != 0 || conns != 0 {
		t.Errorf("invalid joins must leave no state, got (%d, %d)", rooms, conns)
	}
	if h.gateway.total() != 0 {
		t.Error("invalid joins must not deliver events")
	}
}

func TestController_JoinNameConflict(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	if err := h.ctl.Join(ctx, "c1", "Alice", "general"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	h.gateway.drain("c1")

	err := h.ctl.Join(ctx, "c2", "  alice ", "GENERAL")
	requireKind(t, err, KindNameConflict)
	if !errors.Is(err, membership.ErrNameTaken) {
		t.Errorf("conflict should wrap ErrNameTaken, got %v", err)
	}

	if _, ok := h.directory.Lookup("c2"); ok {
		t.Error("conflicting connection must stay unbound")
	}
	if h.gateway.total() != 0 {
		t.Error("a name conflict must not be broadcast to the room")
	}
	if names := h.registry.Names("general"); !reflect.DeepEqual(names, []string{"Alice"}) {
		t.Errorf("roster = %v, want [Alice]", names)
	}
}

func TestController_JoinWhileJoined(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	if err := h.ctl.Join(ctx, "c1", "Alice", "general"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	err := h.ctl.Join(ctx, "c1", "Alice", "random")
	requireKind(t, err, KindValidation)
	if !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("expected ErrAlreadyJoined, got %v", err)
	}
	if h.registry.Contains("random", "c1") {
		t.Error("second join must not add a membership entry")
	}
}

func TestController_ConcurrentCaseVariantJoins(t *testing.T) {
	h := newHarness(t, Options{})
	variants := []string{"alice", "Alice", "ALICE", "aLiCe", "alicE"}

	errs := make([]error, len(variants))
	var wg sync.WaitGroup
	for i, name := range variants {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			errs[i] = h.ctl.Join(context.Background(), fmt.Sprintf("conn-%d", i), name, "newroom")
		}(i, name)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		requireKind(t, err, KindNameConflict)
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if h.directory.Len() != 1 {
		t.Errorf("expected 1 binding, got %d", h.directory.Len())
	}
	if h.store.creates != 1 {
		t.Errorf("expected a single room creation, got %d", h.store.creates)
	}
}

func TestController_ConcurrentFirstJoinsShareRoom(t *testing.T) {
	h := newHarness(t, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := h.ctl.Join(context.Background(), fmt.Sprintf("c%d", i), fmt.Sprintf("user%d", i), "fresh"); err != nil {
				t.Errorf("Join() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	room, ok := h.store.room("fresh")
	if !ok {
		t.Fatal("room should exist")
	}
	for i := 0; i < 20; i++ {
		events := h.gateway.drain(fmt.Sprintf("c%d", i))
		if events[0].Type != types.EventSetEncryptionKeys {
			t.Fatalf("first event should carry key material, got %s", events[0].Type)
		}
		want := types.NewEncryptionKeys(room.Key, room.IV)
		if events[0].Key != want.Key {
			t.Errorf("c%d received key material of a different room record", i)
		}
	}
}

func TestController_CreateConflictRefetches(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.conflictFirst = true

	if err := h.ctl.Join(context.Background(), "c1", "Alice", "general"); err != nil {
		t.Fatalf("Join() should recover from a creation conflict, got %v", err)
	}

	room, _ := h.store.room("general")
	events := h.gateway.drain("c1")
	if events[0].Key != types.NewEncryptionKeys(room.Key, room.IV).Key {
		t.Error("joiner should receive the winner's key material")
	}
}

func TestController_JoinRollsBackOnStoreFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *memoryStore)
	}{
		{"find fails", func(s *memoryStore) { s.failFind = errStoreDown }},
		{"history fails", func(s *memoryStore) { s.failList = errStoreDown }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			tt.setup(h.store)

			err := h.ctl.Join(context.Background(), "c1", "Alice", "general")
			requireKind(t, err, KindPersistence)
			if !errors.Is(err, errStoreDown) {
				t.Errorf("error should wrap the store failure, got %v", err)
			}

			if h.registry.Contains("general", "c1") {
				t.Error("registry entry must be rolled back")
			}
			if _, ok := h.directory.Lookup("c1"); ok {
				t.Error("connection must stay unbound")
			}

			// The name is free again
			h.store.failFind, h.store.failList = nil, nil
			if err := h.ctl.Join(context.Background(), "c2", "alice", "general"); err != nil {
				t.Errorf("name should be reusable after rollback, got %v", err)
			}
		})
	}
}

func TestController_HistoryReplay(t *testing.T) {
	h := newHarness(t, Options{HistoryLimit: 3})
	ctx := context.Background()

	if err := h.ctl.Join(ctx, "c1", "Alice", "general"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	for _, text := range []string{"one", "two", "three", "four"} {
		if err := h.ctl.Send(ctx, "c1", text); err != nil {
			t.Fatalf("Send(%q) error = %v", text, err)
		}
	}

	// Corrupt the second newest message
	room, _ := h.store.room("general")
	h.store.mu.Lock()
	h.store.messages[room.ID][2].Ciphertext = []byte("garbage that is long enough to fail authentication")
	h.store.mu.Unlock()

	if err := h.ctl.Join(ctx, "c2", "Bob", "general"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	var history []string
	for _, ev := range h.gateway.drain("c2") {
		if ev.Type == types.EventReceiveMessage {
			history = append(history, ev.Text)
		}
	}
	want := []string{"two", HistoryPlaceholder, "four"}
	if !reflect.DeepEqual(history, want) {
		t.Errorf("history = %v, want %v", history, want)
	}
}

func TestController_SendBeforeJoin(t *testing.T) {
	h := newHarness(t, Options{})

	err := h.ctl.Send(context.Background(), "ghost", "hello")
	requireKind(t, err, KindNotFound)
	if !errors.Is(err, ErrNotJoined) {
		t.Errorf("expected ErrNotJoined, got %v", err)
	}
	if h.store.messageCount() != 0 {
		t.Error("no message may be persisted")
	}
	if h.gateway.total() != 0 {
		t.Error("no event may be delivered")
	}
}

func TestController_SendValidation(t *testing.T) {
	h := newHarness(t, Options{MaxMessageLength: 5})
	ctx := context.Background()
	_ = h.ctl.Join(ctx, "c1", "Alice", "general")
	h.gateway.drain("c1")

	tests := []struct {
		name    string
		text    string
		wantMsg string
	}{
		{"empty", "", msgEmptyMessage},
		{"whitespace", "  \t", msgEmptyMessage},
		{"too long", "abcdef", fmt.Sprintf(msgMessageTooLong, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.ctl.Send(ctx, "c1", tt.text)
			requireKind(t, err, KindValidation)
			if UserMessage(err) != tt.wantMsg {
				t.Errorf("UserMessage() = %q, want %q", UserMessage(err), tt.wantMsg)
			}
		})
	}
	if h.store.messageCount() != 0 || h.gateway.total() != 0 {
		t.Error("rejected sends must not persist or broadcast")
	}
}

func TestController_SendPersistenceFailureNotBroadcast(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	_ = h.ctl.Join(ctx, "c1", "Alice", "general")
	_ = h.ctl.Join(ctx, "c2", "Bob", "general")
	h.gateway.drain("c1")
	h.gateway.drain("c2")

	h.store.failAppend = errStoreDown
	err := h.ctl.Send(ctx, "c1", "lost")
	requireKind(t, err, KindPersistence)

	if h.gateway.total() != 0 {
		t.Error("a message that was not persisted must not be broadcast")
	}
}

func TestController_SendAfterRoomRecordVanished(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	_ = h.ctl.Join(ctx, "c1", "Alice", "general")
	h.gateway.drain("c1")

	room, _ := h.store.room("general")
	_ = h.store.DeleteRoom(ctx, room.ID)

	err := h.ctl.Send(ctx, "c1", "hello?")
	requireKind(t, err, KindNotFound)
	if h.gateway.total() != 0 {
		t.Error("nothing may be broadcast for a vanished room")
	}
}

func TestController_SendOrderingPerRoom(t *testing.T) {
	var clock struct {
		sync.Mutex
		t time.Time
	}
	clock.t = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock.Lock()
		defer clock.Unlock()
		clock.t = clock.t.Add(time.Millisecond)
		return clock.t
	}

	h := newHarness(t, Options{Now: now})
	ctx := context.Background()
	_ = h.ctl.Join(ctx, "c1", "Alice", "general")
	_ = h.ctl.Join(ctx, "c2", "Bob", "general")
	h.gateway.drain("c1")
	h.gateway.drain("c2")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "c1"
			if i%2 == 1 {
				sender = "c2"
			}
			if err := h.ctl.Send(ctx, sender, fmt.Sprintf("m%d", i)); err != nil {
				t.Errorf("Send() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	room, _ := h.store.room("general")
	stored, _ := h.store.ListRecentMessages(ctx, room.ID, 100)

	for _, conn := range []string{"c1", "c2"} {
		received := h.gateway.drain(conn)
		if len(received) != len(stored) {
			t.Fatalf("%s received %d messages, %d stored", conn, len(received), len(stored))
		}
		for i, msg := range stored {
			text, err := h.cipher.Open(msg.Ciphertext, room.Key, room.IV)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if received[i].Text != text {
				t.Fatalf("%s message %d = %q, persisted order has %q", conn, i, received[i].Text, text)
			}
		}
	}
}

func TestController_LeaveIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	_ = h.ctl.Join(ctx, "c1", "Alice", "general")
	_ = h.ctl.Join(ctx, "c2", "Bob", "general")
	h.gateway.drain("c1")
	h.gateway.drain("c2")

	h.ctl.Leave("c2")
	if got := len(h.gateway.drain("c1")); got != 2 {
		t.Fatalf("expected leave notice and roster, got %d events", got)
	}

	h.ctl.Leave("c2")
	h.ctl.Leave("never-joined")
	if h.gateway.total() != 0 {
		t.Error("repeated leave must not broadcast again")
	}
	if h.registry.Contains("general", "c2") {
		t.Error("connection must be absent from the room")
	}
}

func TestController_LeaveLastMemberDropsRoom(t *testing.T) {
	h := newHarness(t, Options{})
	_ = h.ctl.Join(context.Background(), "c1", "Alice", "general")
	h.gateway.drain("c1")

	h.ctl.Leave("c1")

	if rooms, _ := h.registry.Counts(); rooms != 0 {
		t.Errorf("empty room should be dropped from the registry, %d left", rooms)
	}
	if _, ok := h.store.room("general"); !ok {
		t.Error("store record must persist after the last member leaves")
	}
}

func TestController_DeleteNotFound(t *testing.T) {
	h := newHarness(t, Options{})

	err := h.ctl.Delete(context.Background(), "c1", "nowhere")
	requireKind(t, err, KindNotFound)
	if UserMessage(err) != fmt.Sprintf(msgRoomNotFound, "nowhere") {
		t.Errorf("UserMessage() = %q", UserMessage(err))
	}
}

func TestController_DeleteByNonMember(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	_ = h.ctl.Join(ctx, "c1", "Alice", "general")
	_ = h.ctl.Join(ctx, "c2", "Bob", "random")
	h.gateway.drain("c1")
	h.gateway.drain("c2")

	if err := h.ctl.Delete(ctx, "c2", " General "); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	for _, conn := range []string{"c1", "c2"} {
		events := h.gateway.drain(conn)
		if len(events) != 1 || events[0].Type != types.EventSystemNotification {
			t.Errorf("%s expected one deletion notice, got %+v", conn, events)
		}
	}
	if b, ok := h.directory.Lookup("c2"); !ok || b.Room != "random" {
		t.Error("requester's own binding in another room must survive")
	}
	if err := h.ctl.Send(ctx, "c1", "hello"); KindOf(err) != KindNotFound {
		t.Errorf("evicted member should no longer send, got %v", err)
	}
}

func TestErrorHelpers(t *testing.T) {
	err := newError(KindCrypto, "send", "boom", errStoreDown)

	if !errors.Is(err, errStoreDown) {
		t.Error("Error should unwrap its cause")
	}
	if KindOf(fmt.Errorf("wrapped: %w", err)) != KindCrypto {
		t.Error("KindOf should see through wrapping")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("foreign errors are internal")
	}
	if UserMessage(errors.New("plain")) != msgInternal {
		t.Error("foreign errors render the internal message")
	}
	if !strings.Contains(err.Error(), "send") {
		t.Errorf("Error() = %q should name the operation", err.Error())
	}
}

func TestController_SendDuringJoinReachesJoiner(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	if err := h.ctl.Join(ctx, "c1", "Alice", "general"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := h.ctl.Send(ctx, "c1", "first"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	h.gateway.drain("c1")

	// Alice sends while Bob's history is being replayed
	sent := make(chan error, 1)
	started := false
	h.gateway.onDirect = func(connID string, event types.Event) {
		if connID != "c2" || event.Type != types.EventReceiveMessage || started {
			return
		}
		started = true
		go func() { sent <- h.ctl.Send(ctx, "c1", "late") }()
	}

	if err := h.ctl.Join(ctx, "c2", "Bob", "general"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := <-sent; err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var texts []string
	for _, ev := range h.gateway.drain("c2") {
		if ev.Type == types.EventReceiveMessage {
			texts = append(texts, ev.Text)
		}
	}
	if !reflect.DeepEqual(texts, []string{"first", "late"}) {
		t.Errorf("Bob received %v, want every persisted message exactly once", texts)
	}
	if got := h.store.messageCount(); got != 2 {
		t.Errorf("expected 2 persisted messages, got %d", got)
	}
}

func TestController_RoomFetchSurvivesOtherCallerCancel(t *testing.T) {
	h := newHarness(t, Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	var blockOnce sync.Once
	h.store.beforeFind = func(ctx context.Context) error {
		blockOnce.Do(func() {
			close(entered)
			<-release
		})
		return ctx.Err()
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() { errA <- h.ctl.Join(ctxA, "c1", "Alice", "fresh") }()

	<-entered
	cancelA()
	requireKind(t, <-errA, KindPersistence)

	errB := make(chan error, 1)
	go func() { errB <- h.ctl.Join(context.Background(), "c2", "Bob", "fresh") }()
	// Give Bob time to attach to the lookup Alice started
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-errB; err != nil {
		t.Fatalf("Bob's Join must not fail because Alice went away: %v", err)
	}
	if b, ok := h.directory.Lookup("c2"); !ok || b.Room != "fresh" {
		t.Errorf("Bob should be bound to fresh, got %+v (%v)", b, ok)
	}
	if _, ok := h.directory.Lookup("c1"); ok {
		t.Error("cancelled joiner must stay unbound")
	}
	if h.registry.Contains("fresh", "c1") {
		t.Error("cancelled joiner must release its name")
	}
}

func TestController_DeleteDuringJoinLeavesJoinerUnbound(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	if err := h.ctl.Join(ctx, "c1", "Alice", "general"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if err := h.ctl.Send(ctx, "c1", "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	h.gateway.drain("c1")

	// Alice deletes the room while Bob's history is being replayed
	deleted := false
	h.gateway.onDirect = func(connID string, event types.Event) {
		if connID != "c2" || event.Type != types.EventReceiveMessage || deleted {
			return
		}
		deleted = true
		if err := h.ctl.Delete(ctx, "c1", "general"); err != nil {
			t.Errorf("Delete() error = %v", err)
		}
	}

	err := h.ctl.Join(ctx, "c2", "Bob", "general")
	requireKind(t, err, KindNotFound)
	if !errors.Is(err, ErrRoomDeleted) {
		t.Errorf("expected ErrRoomDeleted, got %v", err)
	}

	if _, ok := h.directory.Lookup("c2"); ok {
		t.Error("joiner must not be bound to a deleted room")
	}
	if _, ok := h.directory.Lookup("c1"); ok {
		t.Error("member of the deleted room must be unbound")
	}
	if _, ok := h.registry.Room("general"); ok {
		t.Error("deleted room must be gone from the registry")
	}

	notice := fmt.Sprintf(noticeDeleted, "general")
	var gotNotice bool
	for _, ev := range h.gateway.drain("c2") {
		if ev.Type == types.EventSystemNotification && ev.Text == notice {
			gotNotice = true
		}
	}
	if !gotNotice {
		t.Error("joiner should receive the deletion notice")
	}
}
