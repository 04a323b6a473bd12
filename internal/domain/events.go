package domain

// EventType tags every message pushed over a room's fan-out channel.
type EventType string

const (
	EventSnapshot          EventType = "snapshot"
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"
	EventAllParticipants   EventType = "all_participants"
	EventAvatarUpdated     EventType = "avatar_updated"
	EventQuizStarting      EventType = "quiz_starting"
	EventNextQuestion      EventType = "next_question"
	EventShowAnswer        EventType = "show_answer"
	EventShowLeaderboard   EventType = "show_leaderboard"
	EventShowPodium        EventType = "show_podium"
	EventQuizEnded         EventType = "quiz_ended"
	EventAnswerCount       EventType = "answer_count"
	EventParticipantKicked EventType = "participant_kicked"
)

// Event is a single server-to-client message. AdminOnly events are
// delivered to admin connections only; Coalescable events are advisory
// telemetry and may be shed for a slow receiver.
type Event struct {
	Type        EventType   `json:"type"`
	Payload     interface{} `json:"payload,omitempty"`
	AdminOnly   bool        `json:"-"`
	Coalescable bool        `json:"-"`
	// Terminal marks the last event a connection will receive; the
	// transport closes the socket after writing it.
	Terminal bool `json:"-"`
}

// ParticipantRef identifies a participant in presence and kick events.
type ParticipantRef struct {
	ParticipantID string `json:"participantId"`
}

// AvatarPayload announces a participant's (re)assigned avatar seed.
type AvatarPayload struct {
	ParticipantID string `json:"participantId"`
	AvatarSeed    string `json:"avatarSeed"`
}
