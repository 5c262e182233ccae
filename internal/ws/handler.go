package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"github.com/codepair/session-relay/internal/config"
	"github.com/codepair/session-relay/internal/hub"
	"github.com/codepair/session-relay/internal/protocol"
	"github.com/codepair/session-relay/internal/room"
)

// joinDeadline bounds how long a fresh connection may sit silent before
// sending its join frame.
const joinDeadline = 30 * time.Second

func Handler(h *hub.Hub, log *zap.Logger, cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.WSOrigins,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewV4().String()
		clog := log.With(zap.String("conn", connID))

		// First frame must be a join. A connection that closes before
		// completing it never touched any room, so there is nothing to
		// clean up.
		jctx, cancel := context.WithTimeout(r.Context(), joinDeadline)
		_, data, err := conn.Read(jctx)
		cancel()
		if err != nil {
			return
		}
		var ev protocol.ClientEvent
		if err := json.Unmarshal(data, &ev); err != nil ||
			ev.Type != protocol.EventJoin || ev.RoomID == "" || ev.ParticipantID == "" {
			clog.Warn("first frame is not a valid join, closing")
			conn.Close(websocket.StatusPolicyViolation, "join required")
			return
		}
		roomID, participantID := ev.RoomID, ev.ParticipantID

		outbox := make(chan protocol.ServerEvent, cfg.OutboxBuffer)
		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.JoinRoom{
			RoomID: roomID,
			Join: room.Join{
				ParticipantID: participantID,
				DisplayName:   ev.DisplayName,
				ConnID:        connID,
				Outbox:        outbox,
			},
			Reply: reply,
		}
		rm := <-reply
		defer func() {
			h.Inbox() <- hub.LeaveRoom{RoomID: roomID, ParticipantID: participantID, ConnID: connID}
		}()

		clog = clog.With(zap.String("room", roomID), zap.String("participant", participantID))
		clog.Info("participant joined")

		// Writer: drains the outbox until the room closes it (shutdown,
		// slow drop, or takeover by a newer connection with the same
		// participant id), then closes the socket to unblock the reader.
		go func() {
			for out := range outbox {
				payload, err := json.Marshal(out)
				if err != nil {
					continue
				}
				wctx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
				err = conn.Write(wctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					break
				}
			}
			conn.Close(websocket.StatusGoingAway, "session ended")
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("connection closed", zap.Error(err))
				}
				return
			}

			var ev protocol.ClientEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				clog.Warn("dropping malformed event", zap.Error(err))
				continue
			}

			switch ev.Type {
			case protocol.EventLeave:
				return
			case protocol.EventJoin:
				clog.Warn("duplicate join frame ignored")
				continue
			}

			msg, ok := toRoomMsg(ev, participantID)
			if !ok {
				clog.Warn("dropping unknown event", zap.String("type", ev.Type))
				continue
			}
			if !rm.Send(msg) {
				// Room is gone (stale client after removal); the edit
				// is a no-op.
				continue
			}
		}
	}
}

// toRoomMsg converts a wire event into the closed set of room messages.
// The participant id on the wire is ignored in favor of the one recorded
// at join time.
func toRoomMsg(ev protocol.ClientEvent, participantID string) (room.Msg, bool) {
	switch ev.Type {
	case protocol.EventCodeChange:
		return room.SetCode{ParticipantID: participantID, Code: ev.Code}, true
	case protocol.EventLanguageChange:
		return room.SetLanguage{ParticipantID: participantID, Language: ev.Language}, true
	case protocol.EventQuestionChange:
		return room.SetQuestion{ParticipantID: participantID, ActiveQuestionID: ev.ActiveQuestionID}, true
	case protocol.EventCursorMove:
		if ev.Position == nil {
			return nil, false
		}
		return room.CursorMove{ParticipantID: participantID, Position: *ev.Position}, true
	default:
		return nil, false
	}
}
