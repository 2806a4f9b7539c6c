package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"call-signaling/internal/calls"
	"call-signaling/internal/directory"
	"call-signaling/internal/messages"
)

type sent struct {
	target string
	event  string
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []sent
	fail   bool
}

func (f *fakeEmitter) EmitToUser(ctx context.Context, userID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("socket down")
	}
	f.events = append(f.events, sent{target: "user:" + userID, event: event})
	return nil
}

func (f *fakeEmitter) EmitToRoom(ctx context.Context, roomID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("socket down")
	}
	f.events = append(f.events, sent{target: "room:" + roomID, event: event})
	return nil
}

type fakePush struct {
	mu     sync.Mutex
	pushes []Push
	fail   bool
}

func (f *fakePush) Send(ctx context.Context, token directory.PushToken, p Push) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("provider down")
	}
	f.pushes = append(f.pushes, p)
	return nil
}

func newTestDispatcher(em *fakeEmitter, push *fakePush) (*Dispatcher, *directory.Memory, *messages.MemoryRepo) {
	dir := directory.NewMemory()
	dir.AddRoom(directory.Room{ID: "r", Type: calls.RoomTypeSingle}, "a", "b")
	dir.AddPushToken("b", directory.PushToken{Token: "tok-1", Platform: "fcm"})
	dir.AddPushToken("b", directory.PushToken{Token: "tok-2", Platform: "fcm"})
	repo := messages.NewMemoryRepo()
	d := NewDispatcher(Options{
		Emitter:  em,
		Push:     push,
		Tokens:   dir,
		Rooms:    dir,
		Messages: messages.NewService(repo),
	})
	return d, dir, repo
}

func TestRingPush_SendsToEveryToken(t *testing.T) {
	push := &fakePush{}
	d, _, _ := newTestDispatcher(&fakeEmitter{}, push)

	d.RingPush(context.Background(), "b", PushCallData{CallID: "c1", CallerName: "A", CallStatus: calls.CallStatusRing})
	d.Flush()

	if len(push.pushes) != 2 {
		t.Fatalf("expected 2 pushes, got %d", len(push.pushes))
	}
	if push.pushes[0].Data["callId"] != "c1" || !push.pushes[0].DataOnly {
		t.Fatalf("unexpected push: %+v", push.pushes[0])
	}
}

func TestChatPush_SkipsMutedMember(t *testing.T) {
	push := &fakePush{}
	d, dir, _ := newTestDispatcher(&fakeEmitter{}, push)
	dir.SetMuted("r", "b", true)

	d.ChatPush(context.Background(), "r", "b", "A", "Missed call")
	d.Flush()

	if len(push.pushes) != 0 {
		t.Fatalf("expected muted member to get no push")
	}
}

func TestFailuresAreSwallowed(t *testing.T) {
	em := &fakeEmitter{fail: true}
	push := &fakePush{fail: true}
	d, _, _ := newTestDispatcher(em, push)

	d.ToUser(context.Background(), "b", EventNewCall, nil)
	d.ToRoom(context.Background(), "r", EventCallEnded, nil)
	d.RingPush(context.Background(), "b", PushCallData{CallID: "c1"})
	d.Flush()
}

func TestPostToRoom_PersistsAndAnnounces(t *testing.T) {
	em := &fakeEmitter{}
	d, _, repo := newTestDispatcher(em, nil)

	d.PostToRoom(context.Background(), messages.Message{RoomID: "r", SenderID: "a", Content: "📞"})

	msgs, _ := repo.ListByRoom(context.Background(), "r", 10)
	if len(msgs) != 1 {
		t.Fatalf("expected persisted message")
	}
	if len(em.events) != 1 || em.events[0] != (sent{target: "room:r", event: EventNewMessage}) {
		t.Fatalf("unexpected events: %+v", em.events)
	}
}

func TestPushCallData_Flatten(t *testing.T) {
	data := PushCallData{CallID: "c", WithVideo: true, RoomType: calls.RoomTypeGroup, GroupName: "team"}.Data()
	if data["withVideo"] != "true" || data["groupName"] != "team" || data["roomType"] != "group" {
		t.Fatalf("unexpected data: %v", data)
	}
}
