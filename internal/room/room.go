package room

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/codepair/session-relay/internal/metrics"
	"github.com/codepair/session-relay/internal/protocol"
)

// DefaultLanguage is the language a freshly created room starts with.
const DefaultLanguage = "javascript"

type Msg interface{ isRoomMsg() }

// Join registers a participant. A second join with the same participant
// id transfers the registration: the prior outbox is closed and the new
// connection takes over, keeping the already-assigned color.
type Join struct {
	ParticipantID string
	DisplayName   string
	ConnID        string
	Outbox        chan protocol.ServerEvent
}

// Leave removes a participant. ConnID guards against a stale connection
// tearing down a registration it no longer owns; an empty ConnID always
// matches. Reply receives the participant count after removal.
type Leave struct {
	ParticipantID string
	ConnID        string
	Reply         chan int
}

type SetCode struct {
	ParticipantID string
	Code          string
}

type SetLanguage struct {
	ParticipantID string
	Language      string
}

type SetQuestion struct {
	ParticipantID    string
	ActiveQuestionID string
}

// CursorMove is relayed to the other participants but never stored, so
// late joiners see no cursor ghosts.
type CursorMove struct {
	ParticipantID string
	Position      protocol.CursorPosition
}

// GetView reflects internal state without data races (test and ops use).
type GetView struct{ Reply chan View }

type Shutdown struct{}

func (Join) isRoomMsg()        {}
func (Leave) isRoomMsg()       {}
func (SetCode) isRoomMsg()     {}
func (SetLanguage) isRoomMsg() {}
func (SetQuestion) isRoomMsg() {}
func (CursorMove) isRoomMsg()  {}
func (GetView) isRoomMsg()     {}
func (Shutdown) isRoomMsg()    {}

type View struct {
	State           protocol.SessionState
	Participants    []protocol.ParticipantInfo
	NumParticipants int
}

type participant struct {
	id          string
	displayName string
	color       string
	connID      string
	outbox      chan protocol.ServerEvent
}

// Room owns one shared session state and one participant registry, both
// mutated only inside its loop goroutine.
type Room struct {
	ID string

	inbox        chan Msg
	state        protocol.SessionState
	participants map[string]*participant
	joined       int // total joins ever, drives color assignment
	log          *zap.Logger
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewRoom(parent context.Context, id string, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		ID:           id,
		inbox:        make(chan Msg, 64),
		state:        protocol.SessionState{Language: DefaultLanguage},
		participants: make(map[string]*participant),
		log:          log.With(zap.String("room", id)),
		ctx:          ctx,
		cancel:       cancel,
	}
	go r.loop()
	return r
}

// Inbox exposes the mailbox for callers that must not miss delivery.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Send enqueues m unless the room has shut down. Callers treat a false
// return as the stale-room no-op.
func (r *Room) Send(m Msg) bool {
	select {
	case <-r.ctx.Done():
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)

			case Leave:
				r.handleLeave(msg)

			case SetCode:
				r.state.Code = msg.Code
				metrics.EventsTotal.WithLabelValues(protocol.EventCodeChange).Inc()
				r.relay(msg.ParticipantID, protocol.ServerEvent{
					Type:             protocol.EventCodeChange,
					Code:             r.state.Code,
					Language:         r.state.Language,
					ActiveQuestionID: r.state.ActiveQuestionID,
				})

			case SetLanguage:
				// Does not reset code; clients push a fresh starter
				// snippet themselves if they want one.
				r.state.Language = msg.Language
				metrics.EventsTotal.WithLabelValues(protocol.EventLanguageChange).Inc()
				r.relay(msg.ParticipantID, protocol.ServerEvent{
					Type:     protocol.EventLanguageChange,
					Language: r.state.Language,
				})

			case SetQuestion:
				r.state.ActiveQuestionID = msg.ActiveQuestionID
				metrics.EventsTotal.WithLabelValues(protocol.EventQuestionChange).Inc()
				r.relay(msg.ParticipantID, protocol.ServerEvent{
					Type:             protocol.EventQuestionChange,
					ActiveQuestionID: r.state.ActiveQuestionID,
				})

			case CursorMove:
				pos := msg.Position
				metrics.EventsTotal.WithLabelValues(protocol.EventCursorMove).Inc()
				r.broadcastExcept(msg.ParticipantID, protocol.ServerEvent{
					Type:          protocol.EventCursorMove,
					ParticipantID: msg.ParticipantID,
					Position:      &pos,
				})

			case GetView:
				msg.Reply <- View{
					State:           r.state,
					Participants:    r.roster(),
					NumParticipants: len(r.participants),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	if prev, ok := r.participants[msg.ParticipantID]; ok {
		// Takeover: close the old connection's outbox so its writer
		// tears the old socket down, keep the color.
		close(prev.outbox)
		r.participants[msg.ParticipantID] = &participant{
			id:          msg.ParticipantID,
			displayName: msg.DisplayName,
			color:       prev.color,
			connID:      msg.ConnID,
			outbox:      msg.Outbox,
		}
		r.log.Info("participant rejoined, prior connection replaced",
			zap.String("participant", msg.ParticipantID))
	} else {
		r.participants[msg.ParticipantID] = &participant{
			id:          msg.ParticipantID,
			displayName: msg.DisplayName,
			color:       palette[r.joined%len(palette)],
			connID:      msg.ConnID,
			outbox:      msg.Outbox,
		}
		r.joined++
		metrics.ParticipantsActive.Inc()
	}

	// Late-joiner sync: current state to the joining connection only.
	r.sendTo(msg.ParticipantID, protocol.ServerEvent{
		Type:             protocol.EventRoomState,
		Code:             r.state.Code,
		Language:         r.state.Language,
		ActiveQuestionID: r.state.ActiveQuestionID,
	})
	r.broadcastExcept("", protocol.ServerEvent{
		Type:         protocol.EventParticipants,
		Participants: r.roster(),
	})
}

func (r *Room) handleLeave(msg Leave) {
	if p, ok := r.participants[msg.ParticipantID]; ok {
		if msg.ConnID == "" || msg.ConnID == p.connID {
			close(p.outbox)
			delete(r.participants, msg.ParticipantID)
			metrics.ParticipantsActive.Dec()
			if len(r.participants) > 0 {
				r.broadcastExcept("", protocol.ServerEvent{
					Type:         protocol.EventParticipants,
					Participants: r.roster(),
				})
			}
		}
	}
	if msg.Reply != nil {
		msg.Reply <- len(r.participants)
	}
}

// relay stamps an edit with its origin and a server timestamp and fans
// it out to everyone except the sender.
func (r *Room) relay(sender string, ev protocol.ServerEvent) {
	ev.ParticipantID = sender
	ev.Timestamp = time.Now().UnixMilli()
	r.broadcastExcept(sender, ev)
}

// broadcastExcept delivers ev to every participant except the excluded
// id without ever blocking; a participant whose outbox is full is
// dropped as if disconnected.
func (r *Room) broadcastExcept(exclude string, ev protocol.ServerEvent) {
	var dropped []string
	for id, p := range r.participants {
		if id == exclude {
			continue
		}
		select {
		case p.outbox <- ev:
		default:
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		r.drop(id)
	}
	if len(dropped) > 0 && len(r.participants) > 0 {
		r.broadcastExcept("", protocol.ServerEvent{
			Type:         protocol.EventParticipants,
			Participants: r.roster(),
		})
	}
}

func (r *Room) sendTo(id string, ev protocol.ServerEvent) {
	p, ok := r.participants[id]
	if !ok {
		return
	}
	select {
	case p.outbox <- ev:
	default:
		r.drop(id)
	}
}

func (r *Room) drop(id string) {
	p, ok := r.participants[id]
	if !ok {
		return
	}
	close(p.outbox)
	delete(r.participants, id)
	metrics.ParticipantsActive.Dec()
	metrics.SlowDropsTotal.Inc()
	r.log.Warn("dropping unresponsive participant", zap.String("participant", id))
}

func (r *Room) roster() []protocol.ParticipantInfo {
	infos := make([]protocol.ParticipantInfo, 0, len(r.participants))
	for _, p := range r.participants {
		infos = append(infos, protocol.ParticipantInfo{
			ID:          p.id,
			DisplayName: p.displayName,
			Color:       p.color,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (r *Room) shutdown() {
	for id, p := range r.participants {
		close(p.outbox)
		delete(r.participants, id)
		metrics.ParticipantsActive.Dec()
	}
	r.cancel()
}
