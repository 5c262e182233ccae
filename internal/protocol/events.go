package protocol

// Event names exchanged over a connection. Clients send join, the three
// edit kinds, cursor-move, and leave; the relay sends room-state (to the
// joining connection only), participants-changed, and relayed edits.
const (
	EventJoin           = "join"
	EventLeave          = "leave"
	EventRoomState      = "room-state"
	EventParticipants   = "participants-changed"
	EventCodeChange     = "code-change"
	EventLanguageChange = "language-change"
	EventQuestionChange = "question-change"
	EventCursorMove     = "cursor-move"
)

// SessionState is the shared document every participant in a room views.
// Cursor positions are deliberately not part of it.
type SessionState struct {
	Code             string `json:"code"`
	Language         string `json:"language"`
	ActiveQuestionID string `json:"activeQuestionId"`
}

type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type ParticipantInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
}

type ClientEvent struct {
	Type             string          `json:"type"`
	RoomID           string          `json:"roomId,omitempty"`
	ParticipantID    string          `json:"participantId,omitempty"`
	DisplayName      string          `json:"displayName,omitempty"`
	Code             string          `json:"code,omitempty"`
	Language         string          `json:"language,omitempty"`
	ActiveQuestionID string          `json:"activeQuestionId,omitempty"`
	Position         *CursorPosition `json:"position,omitempty"`
}

// ServerEvent is the single outbound frame shape. The state fields stay
// un-omitted so a room-state snapshot of a fresh room still carries
// explicit empty values.
type ServerEvent struct {
	Type             string            `json:"type"`
	Code             string            `json:"code"`
	Language         string            `json:"language"`
	ActiveQuestionID string            `json:"activeQuestionId"`
	Participants     []ParticipantInfo `json:"participants,omitempty"`
	ParticipantID    string            `json:"participantId,omitempty"`
	Timestamp        int64             `json:"timestamp,omitempty"`
	Position         *CursorPosition   `json:"position,omitempty"`
}
