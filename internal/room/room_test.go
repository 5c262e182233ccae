package room

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/codepair/session-relay/internal/protocol"
)

// helper: receive one event with a timeout so tests never hang
func recvEvent(t *testing.T, ch <-chan protocol.ServerEvent, within time.Duration) protocol.ServerEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return ev
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return protocol.ServerEvent{} // unreachable
	}
}

func recvNoEvent(t *testing.T, ch <-chan protocol.ServerEvent, within time.Duration) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			// closed → no further events possible
			return
		}
		t.Fatalf("expected no event within %v, but got: %+v", within, ev)
	case <-time.After(within):
	}
}

func recvClosed(t *testing.T, ch <-chan protocol.ServerEvent, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox was not closed within %v", within)
		}
	}
}

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRoom(ctx, "iv-42", zap.NewNop())
}

func join(r *Room, id, name string, buf int) chan protocol.ServerEvent {
	out := make(chan protocol.ServerEvent, buf)
	r.Inbox() <- Join{ParticipantID: id, DisplayName: name, ConnID: id + "-conn", Outbox: out}
	return out
}

func getView(t *testing.T, r *Room) View {
	t.Helper()
	reply := make(chan View, 1)
	r.Inbox() <- GetView{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func TestRoom_JoinSyncsStateThenPresence(t *testing.T) {
	r := newTestRoom(t)

	out := join(r, "alice", "Alice", 8)

	first := recvEvent(t, out, time.Second)
	if first.Type != protocol.EventRoomState {
		t.Fatalf("want room-state first, got %q", first.Type)
	}
	if first.Code != "" || first.Language != DefaultLanguage || first.ActiveQuestionID != "" {
		t.Fatalf("fresh room should sync empty defaults, got %+v", first)
	}

	second := recvEvent(t, out, time.Second)
	if second.Type != protocol.EventParticipants {
		t.Fatalf("want participants-changed second, got %q", second.Type)
	}
	if len(second.Participants) != 1 || second.Participants[0].ID != "alice" {
		t.Fatalf("presence should list the joiner, got %+v", second.Participants)
	}
	if second.Participants[0].Color != palette[0] {
		t.Fatalf("first joiner should get the first palette color, got %q", second.Participants[0].Color)
	}
}

func TestRoom_LateJoinerReceivesLatestState(t *testing.T) {
	r := newTestRoom(t)

	aOut := join(r, "alice", "Alice", 8)
	recvEvent(t, aOut, time.Second) // room-state
	recvEvent(t, aOut, time.Second) // presence

	r.Inbox() <- SetCode{ParticipantID: "alice", Code: "function twoSum(){}"}

	bOut := join(r, "bob", "Bob", 8)
	sync := recvEvent(t, bOut, time.Second)
	if sync.Type != protocol.EventRoomState {
		t.Fatalf("want room-state, got %q", sync.Type)
	}
	if sync.Code != "function twoSum(){}" {
		t.Fatalf("late joiner should see the last accepted code, got %q", sync.Code)
	}
}

func TestRoom_EditRelayedToOthersNotSender(t *testing.T) {
	r := newTestRoom(t)

	aOut := join(r, "alice", "Alice", 8)
	recvEvent(t, aOut, time.Second) // room-state
	recvEvent(t, aOut, time.Second) // presence [alice]

	bOut := join(r, "bob", "Bob", 8)
	recvEvent(t, bOut, time.Second) // room-state
	recvEvent(t, bOut, time.Second) // presence [alice bob]
	recvEvent(t, aOut, time.Second) // presence [alice bob]

	r.Inbox() <- SetCode{ParticipantID: "alice", Code: "// done"}

	ev := recvEvent(t, bOut, time.Second)
	if ev.Type != protocol.EventCodeChange || ev.Code != "// done" {
		t.Fatalf("want relayed code-change, got %+v", ev)
	}
	if ev.ParticipantID != "alice" {
		t.Fatalf("relayed edit should carry the origin id, got %q", ev.ParticipantID)
	}
	if ev.Timestamp == 0 {
		t.Fatalf("relayed edit should carry a server timestamp")
	}

	recvNoEvent(t, aOut, 100*time.Millisecond)
}

func TestRoom_LastWriteWins(t *testing.T) {
	r := newTestRoom(t)

	join(r, "alice", "Alice", 16)
	join(r, "bob", "Bob", 16)

	r.Inbox() <- SetCode{ParticipantID: "alice", Code: "version A"}
	r.Inbox() <- SetCode{ParticipantID: "bob", Code: "version B"}

	v := getView(t, r)
	if v.State.Code != "version B" {
		t.Fatalf("want last processed edit to win, got %q", v.State.Code)
	}

	cOut := join(r, "carol", "Carol", 16)
	sync := recvEvent(t, cOut, time.Second)
	if sync.Code != "version B" {
		t.Fatalf("subsequent joiner should converge to the winner, got %q", sync.Code)
	}
}

func TestRoom_LanguageChangeDoesNotResetCode(t *testing.T) {
	r := newTestRoom(t)

	aOut := join(r, "alice", "Alice", 8)
	recvEvent(t, aOut, time.Second)
	recvEvent(t, aOut, time.Second)
	bOut := join(r, "bob", "Bob", 8)
	recvEvent(t, bOut, time.Second)
	recvEvent(t, bOut, time.Second)
	recvEvent(t, aOut, time.Second)

	r.Inbox() <- SetCode{ParticipantID: "alice", Code: "print('hi')"}
	r.Inbox() <- SetLanguage{ParticipantID: "alice", Language: "python"}

	v := getView(t, r)
	if v.State.Language != "python" {
		t.Fatalf("want language python, got %q", v.State.Language)
	}
	if v.State.Code != "print('hi')" {
		t.Fatalf("language change must not touch code, got %q", v.State.Code)
	}

	recvEvent(t, bOut, time.Second) // code-change
	lang := recvEvent(t, bOut, time.Second)
	if lang.Type != protocol.EventLanguageChange || lang.Language != "python" {
		t.Fatalf("want relayed language-change, got %+v", lang)
	}
}

func TestRoom_CursorMoveIsEphemeral(t *testing.T) {
	r := newTestRoom(t)

	join(r, "alice", "Alice", 8)
	bOut := join(r, "bob", "Bob", 8)
	recvEvent(t, bOut, time.Second) // room-state
	recvEvent(t, bOut, time.Second) // presence

	r.Inbox() <- CursorMove{ParticipantID: "alice", Position: protocol.CursorPosition{Line: 3, Column: 7}}

	ev := recvEvent(t, bOut, time.Second)
	if ev.Type != protocol.EventCursorMove {
		t.Fatalf("want cursor-move, got %q", ev.Type)
	}
	if ev.Position == nil || ev.Position.Line != 3 || ev.Position.Column != 7 {
		t.Fatalf("cursor position mangled: %+v", ev.Position)
	}

	v := getView(t, r)
	if v.State.Code != "" || v.State.Language != DefaultLanguage {
		t.Fatalf("cursor-move must not touch session state, got %+v", v.State)
	}
}

func TestRoom_ColorPaletteWraps(t *testing.T) {
	r := newTestRoom(t)

	ids := []string{"p00", "p01", "p02", "p03", "p04", "p05", "p06", "p07", "p08", "p09"}
	for _, id := range ids {
		join(r, id, id, 64)
	}

	v := getView(t, r)
	if v.NumParticipants != len(ids) {
		t.Fatalf("want %d participants, got %d", len(ids), v.NumParticipants)
	}
	// roster is sorted by id, which matches join order here
	for i, p := range v.Participants {
		want := palette[i%len(palette)]
		if p.Color != want {
			t.Fatalf("participant %s: want color %q, got %q", p.ID, want, p.Color)
		}
	}
	if v.Participants[0].Color != v.Participants[len(palette)].Color {
		t.Fatalf("palette should wrap once exhausted")
	}
}

func TestRoom_SlowParticipantDropped(t *testing.T) {
	r := newTestRoom(t)

	aOut := join(r, "alice", "Alice", 64)
	// bob's outbox only holds the two join-time events; the next relay
	// to him cannot be delivered
	bOut := join(r, "bob", "Bob", 2)

	r.Inbox() <- SetCode{ParticipantID: "alice", Code: "x"}

	v := getView(t, r)
	if v.NumParticipants != 1 {
		t.Fatalf("slow participant should be dropped, got %d participants", v.NumParticipants)
	}
	if v.Participants[0].ID != "alice" {
		t.Fatalf("wrong participant dropped: %+v", v.Participants)
	}
	recvClosed(t, bOut, time.Second)

	// the remainder hears about the shrunken room
	recvEvent(t, aOut, time.Second) // room-state
	recvEvent(t, aOut, time.Second) // presence [alice]
	recvEvent(t, aOut, time.Second) // presence [alice bob]
	last := recvEvent(t, aOut, time.Second)
	if last.Type != protocol.EventParticipants || len(last.Participants) != 1 {
		t.Fatalf("want presence without the dropped participant, got %+v", last)
	}
}

func TestRoom_DuplicateJoinTransfersConnection(t *testing.T) {
	r := newTestRoom(t)

	oldOut := make(chan protocol.ServerEvent, 8)
	r.Inbox() <- Join{ParticipantID: "alice", DisplayName: "Alice", ConnID: "conn-1", Outbox: oldOut}
	recvEvent(t, oldOut, time.Second)
	recvEvent(t, oldOut, time.Second)

	newOut := make(chan protocol.ServerEvent, 8)
	r.Inbox() <- Join{ParticipantID: "alice", DisplayName: "Alice", ConnID: "conn-2", Outbox: newOut}

	recvClosed(t, oldOut, time.Second)

	sync := recvEvent(t, newOut, time.Second)
	if sync.Type != protocol.EventRoomState {
		t.Fatalf("takeover should re-sync state, got %q", sync.Type)
	}
	presence := recvEvent(t, newOut, time.Second)
	if len(presence.Participants) != 1 {
		t.Fatalf("takeover must not duplicate the participant, got %+v", presence.Participants)
	}
	if presence.Participants[0].Color != palette[0] {
		t.Fatalf("takeover should keep the assigned color, got %q", presence.Participants[0].Color)
	}

	// the replaced connection's deferred leave must not evict the new one
	reply := make(chan int, 1)
	r.Inbox() <- Leave{ParticipantID: "alice", ConnID: "conn-1", Reply: reply}
	if remaining := <-reply; remaining != 1 {
		t.Fatalf("stale leave should be ignored, remaining=%d", remaining)
	}

	r.Inbox() <- Leave{ParticipantID: "alice", ConnID: "conn-2", Reply: reply}
	if remaining := <-reply; remaining != 0 {
		t.Fatalf("owning leave should remove, remaining=%d", remaining)
	}
}

func TestRoom_LeaveBroadcastsPresence(t *testing.T) {
	r := newTestRoom(t)

	join(r, "alice", "Alice", 8)
	bOut := join(r, "bob", "Bob", 8)
	recvEvent(t, bOut, time.Second) // room-state
	recvEvent(t, bOut, time.Second) // presence [alice bob]

	reply := make(chan int, 1)
	r.Inbox() <- Leave{ParticipantID: "alice", ConnID: "alice-conn", Reply: reply}
	if remaining := <-reply; remaining != 1 {
		t.Fatalf("want 1 remaining, got %d", remaining)
	}

	presence := recvEvent(t, bOut, time.Second)
	if presence.Type != protocol.EventParticipants ||
		len(presence.Participants) != 1 || presence.Participants[0].ID != "bob" {
		t.Fatalf("want presence with bob only, got %+v", presence)
	}

	// an id that was never registered is a benign no-op
	r.Inbox() <- Leave{ParticipantID: "ghost", Reply: reply}
	if remaining := <-reply; remaining != 1 {
		t.Fatalf("no-op leave changed the registry, remaining=%d", remaining)
	}
}

func TestRoom_SendFailsAfterShutdown(t *testing.T) {
	r := newTestRoom(t)
	out := join(r, "alice", "Alice", 8)

	r.Inbox() <- Shutdown{}
	<-r.Done()

	if r.Send(SetCode{ParticipantID: "alice", Code: "late"}) {
		t.Fatalf("Send should fail once the room has shut down")
	}
	recvClosed(t, out, time.Second)
}
