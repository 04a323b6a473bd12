package domain

import "time"

// RoomStatus is the lifecycle phase of a live quiz room.
type RoomStatus string

const (
	StatusLobby       RoomStatus = "lobby"
	StatusLive        RoomStatus = "live"
	StatusRevealing   RoomStatus = "revealing"
	StatusLeaderboard RoomStatus = "leaderboard"
	StatusPodium      RoomStatus = "podium"
	StatusEnded       RoomStatus = "ended"
)

// Role distinguishes controlling connections from players.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// Question is a single multiple-choice question. CorrectOption indexes
// into Options; it is redacted from participant-facing payloads until
// the room reveals the answer.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
	TimeLimitSec  int      `json:"timeLimitSec"` // defaults to 20 if zero
	BasePoints    int      `json:"basePoints"`   // defaults to 1000 if zero
}

// Quiz is the authored content for one room, keyed by the room code.
type Quiz struct {
	Code      string     `json:"code"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Participant is a player in a room. Scores survive disconnects; kicked
// participants stay in the roster for audit but cannot act.
type Participant struct {
	ID         string
	Name       string
	AvatarSeed string
	Score      int
	Connected  bool
	Kicked     bool
	JoinedAt   time.Time
}

// ParticipantView is the wire-facing projection of a Participant.
type ParticipantView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AvatarSeed string `json:"avatarSeed"`
	Score      int    `json:"score"`
	Connected  bool   `json:"connected"`
}

// QuestionView is a Question with the correct answer stripped unless the
// room has revealed it.
type QuestionView struct {
	ID            string   `json:"id"`
	Index         int      `json:"index"`
	Total         int      `json:"total"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	TimeLimitSec  int      `json:"timeLimitSec"`
	CorrectOption *int     `json:"correctOption,omitempty"`
}

// AnswerResult summarizes the outcome of a scored submission.
type AnswerResult struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
	Awarded       int  `json:"awarded"`
	TotalScore    int  `json:"totalScore"`
}

// AnswerCount is admin-only telemetry for the active question.
type AnswerCount struct {
	QuestionIndex     int `json:"questionIndex"`
	AnsweredCount     int `json:"answeredCount"`
	TotalParticipants int `json:"totalParticipants"`
}

// Snapshot is the full-state push delivered on (re)connect.
type Snapshot struct {
	Code            string            `json:"code"`
	Status          RoomStatus        `json:"status"`
	QuestionIndex   int               `json:"questionIndex"`
	Question        *QuestionView     `json:"question,omitempty"`
	Deadline        *time.Time        `json:"deadline,omitempty"`
	Participants    []ParticipantView `json:"participants"`
	AlreadyAnswered bool              `json:"alreadyAnswered"`
}

// LeaderboardEntry is one row of the ordered standings.
type LeaderboardEntry struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
}

// Leaderboard is the ordered scoreboard for a room.
type Leaderboard struct {
	Code      string             `json:"code"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
