package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/codepair/session-relay/internal/hub"
	"github.com/codepair/session-relay/internal/room"
)

type roomSummary struct {
	ID           string `json:"id"`
	Participants int    `json:"participants"`
}

// ListRooms reports the active rooms and their participant counts. Ops
// visibility only; it reads through each room's own message path.
func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan []hub.Entry, 1)
		h.Inbox() <- hub.ListRooms{Reply: reply}
		entries := <-reply

		summaries := make([]roomSummary, 0, len(entries))
		for _, e := range entries {
			view := make(chan room.View, 1)
			if !e.Room.Send(room.GetView{Reply: view}) {
				continue
			}
			select {
			case v := <-view:
				summaries = append(summaries, roomSummary{ID: e.ID, Participants: v.NumParticipants})
			case <-time.After(time.Second):
			}
		}
		sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Rooms []roomSummary `json:"rooms"`
		}{Rooms: summaries})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
