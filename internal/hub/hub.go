package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/codepair/session-relay/internal/metrics"
	"github.com/codepair/session-relay/internal/room"
)

type HubMsg interface{ isHubMsg() }

// JoinRoom resolves (or lazily creates) the room and forwards the join.
// The reply carries the room handle the connection uses for edits.
type JoinRoom struct {
	RoomID string
	Join   room.Join
	Reply  chan *room.Room
}

// LeaveRoom removes the participant and, iff the room is then empty,
// shuts the room down and drops it from the directory. A room id with
// no live room is a benign no-op.
type LeaveRoom struct {
	RoomID        string
	ParticipantID string
	ConnID        string
}

type ListRooms struct{ Reply chan []Entry }

type Entry struct {
	ID   string
	Room *room.Room
}

type Shutdown struct{}

func (JoinRoom) isHubMsg()  {}
func (LeaveRoom) isHubMsg() {}
func (ListRooms) isHubMsg() {}
func (Shutdown) isHubMsg()  {}

// Hub is the room directory. Joins and leaves serialize through its
// loop, so a room is present in the directory iff it has at least one
// participant. Edits never pass through here; rooms stay independent.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case JoinRoom:
				rm := h.rooms[msg.RoomID]
				if rm == nil {
					rm = room.NewRoom(h.ctx, msg.RoomID, h.log)
					h.rooms[msg.RoomID] = rm
					metrics.RoomsActive.Inc()
					h.log.Info("room created", zap.String("room", msg.RoomID))
				}
				rm.Send(msg.Join)
				msg.Reply <- rm

			case LeaveRoom:
				rm := h.rooms[msg.RoomID]
				if rm == nil {
					break
				}
				reply := make(chan int, 1)
				if !rm.Send(room.Leave{ParticipantID: msg.ParticipantID, ConnID: msg.ConnID, Reply: reply}) {
					h.remove(msg.RoomID)
					break
				}
				select {
				case remaining := <-reply:
					if remaining == 0 {
						rm.Send(room.Shutdown{})
						h.remove(msg.RoomID)
					}
				case <-rm.Done():
					h.remove(msg.RoomID)
				}

			case ListRooms:
				entries := make([]Entry, 0, len(h.rooms))
				for id, rm := range h.rooms {
					entries = append(entries, Entry{ID: id, Room: rm})
				}
				msg.Reply <- entries

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) remove(roomID string) {
	delete(h.rooms, roomID)
	metrics.RoomsActive.Dec()
	h.log.Info("room removed", zap.String("room", roomID))
}

func (h *Hub) shutdown() {
	for id, rm := range h.rooms {
		rm.Send(room.Shutdown{})
		delete(h.rooms, id)
		metrics.RoomsActive.Dec()
	}
	h.cancel()
}
