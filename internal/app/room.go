package app

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quizroom-service/internal/domain"
)

const defaultSendBuffer = 32

// Conn is a live connection handle bound to a room. The transport layer
// drains Events and writes them to the socket; when the channel closes
// the socket must be closed too.
type Conn struct {
	ID            string
	Role          domain.Role
	ParticipantID string
	RoomCode      string

	events chan domain.Event
}

// Events returns the per-connection delivery channel.
func (c *Conn) Events() <-chan domain.Event {
	return c.events
}

type questionPayload struct {
	Question domain.QuestionView `json:"question"`
	Deadline time.Time           `json:"deadline"`
}

type revealPayload struct {
	Question      domain.QuestionView `json:"question"`
	AnsweredCount int                 `json:"answeredCount"`
}

// Room is the authoritative state for one live quiz session. All
// mutations and the broadcasts they produce happen under a single
// mutex, so every subscriber observes transitions in the same order.
type Room struct {
	code   string
	quiz   domain.Quiz
	policy ScorePolicy
	now    func() time.Time
	logger zerolog.Logger

	sendBuf int

	mu            sync.Mutex
	status        domain.RoomStatus
	questionIndex int
	participants  map[string]*domain.Participant
	conns         map[string]*Conn
	byParticipant map[string]*Conn
	answered      map[string]struct{}
	revealed      bool
	deadline      time.Time
	timer         *time.Timer
}

// NewRoom builds a lobby-state room from quiz content and the roster of
// recognized participants.
func NewRoom(quiz domain.Quiz, roster []domain.Participant, policy ScorePolicy, sendBuf int, logger zerolog.Logger) *Room {
	return NewRoomWithClock(quiz, roster, policy, sendBuf, logger, time.Now)
}

// NewRoomWithClock allows deterministic timestamps in tests.
func NewRoomWithClock(quiz domain.Quiz, roster []domain.Participant, policy ScorePolicy, sendBuf int, logger zerolog.Logger, now func() time.Time) *Room {
	if sendBuf <= 0 {
		sendBuf = defaultSendBuffer
	}
	participants := make(map[string]*domain.Participant, len(roster))
	for i := range roster {
		p := roster[i]
		participants[p.ID] = &p
	}
	return &Room{
		code:          quiz.Code,
		quiz:          quiz,
		policy:        policy,
		now:           now,
		logger:        logger.With().Str("room", quiz.Code).Logger(),
		sendBuf:       sendBuf,
		status:        domain.StatusLobby,
		questionIndex: -1,
		participants:  participants,
		conns:         make(map[string]*Conn),
		byParticipant: make(map[string]*Conn),
		answered:      make(map[string]struct{}),
	}
}

// Code returns the room's short identifier.
func (r *Room) Code() string { return r.code }

// Status returns the current lifecycle phase.
func (r *Room) Status() domain.RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Register binds a connection to the room and queues the full snapshot
// as its first event. A second registration for a participant whose
// socket is still live closes the previous connection first.
func (r *Room) Register(role domain.Role, identity, name, avatarSeed string) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == domain.StatusEnded {
		return nil, domain.ErrRoomEnded
	}

	if role == domain.RoleParticipant {
		p, ok := r.participants[identity]
		if !ok {
			return nil, domain.ErrInvalidIdentity
		}
		if p.Kicked {
			return nil, domain.ErrParticipantKicked
		}
		if avatarSeed != "" {
			for id, other := range r.participants {
				if id != identity && !other.Kicked && other.AvatarSeed == avatarSeed {
					return nil, domain.ErrDuplicateAvatarSeed
				}
			}
		}
		if name != "" {
			p.Name = name
		}
		if avatarSeed != "" && avatarSeed != p.AvatarSeed {
			p.AvatarSeed = avatarSeed
			r.broadcastLocked(domain.Event{
				Type:    domain.EventAvatarUpdated,
				Payload: domain.AvatarPayload{ParticipantID: identity, AvatarSeed: avatarSeed},
			}, nil)
		}
		if old, ok := r.byParticipant[identity]; ok {
			// Last-writer-wins on the socket, not on participant data.
			r.dropConnLocked(old)
		}
		if p.JoinedAt.IsZero() {
			p.JoinedAt = r.now()
		}
		p.Connected = true
	}

	conn := &Conn{
		ID:            uuid.NewString(),
		Role:          role,
		ParticipantID: identity,
		RoomCode:      r.code,
		events:        make(chan domain.Event, r.sendBuf),
	}
	r.conns[conn.ID] = conn
	if role == domain.RoleParticipant {
		r.byParticipant[identity] = conn
	}

	r.enqueueLocked(conn, domain.Event{Type: domain.EventSnapshot, Payload: r.snapshotLocked(identity)})

	if role == domain.RoleParticipant {
		r.broadcastLocked(domain.Event{
			Type:    domain.EventParticipantJoined,
			Payload: viewOf(r.participants[identity]),
		}, conn)
		r.broadcastLocked(domain.Event{
			Type:    domain.EventAllParticipants,
			Payload: r.rosterViewLocked(),
		}, conn)
	}
	r.logger.Info().Str("conn", conn.ID).Str("role", string(role)).Str("identity", identity).Msg("connection registered")
	return conn, nil
}

// Unregister detaches a connection. Idempotent; participant data and
// scores are retained so the identity can reconnect later.
func (r *Room) Unregister(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID]; !ok {
		return
	}
	r.dropConnLocked(conn)
	if conn.Role == domain.RoleParticipant {
		r.broadcastLocked(domain.Event{
			Type:    domain.EventParticipantLeft,
			Payload: domain.ParticipantRef{ParticipantID: conn.ParticipantID},
		}, nil)
	}
}

// Snapshot builds the full-state view used for resync, with the
// already-answered flag evaluated for the given participant.
func (r *Room) Snapshot(forParticipant string) domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(forParticipant)
}

// Start moves lobby → live and activates the first question.
func (r *Room) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != domain.StatusLobby {
		return domain.ErrInvalidTransition
	}
	if r.activeRosterLocked() == 0 {
		return domain.ErrNoParticipants
	}
	r.status = domain.StatusLive
	r.broadcastLocked(domain.Event{Type: domain.EventQuizStarting}, nil)
	r.questionIndex = 0
	r.startQuestionLocked()
	return nil
}

// Reveal is the admin-triggered live → revealing transition.
func (r *Room) Reveal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != domain.StatusLive {
		return domain.ErrInvalidTransition
	}
	r.revealLocked()
	return nil
}

// ShowLeaderboard moves revealing → leaderboard and broadcasts the
// current standings.
func (r *Room) ShowLeaderboard() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != domain.StatusRevealing {
		return domain.ErrInvalidTransition
	}
	r.status = domain.StatusLeaderboard
	r.broadcastLocked(domain.Event{Type: domain.EventShowLeaderboard, Payload: r.leaderboardLocked()}, nil)
	return nil
}

// NextQuestion advances from leaderboard to the next live question, or
// to the podium when the last question has been played. It returns the
// resulting status.
func (r *Room) NextQuestion() (domain.RoomStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != domain.StatusLeaderboard {
		return r.status, domain.ErrInvalidTransition
	}
	if r.questionIndex+1 >= len(r.quiz.Questions) {
		r.status = domain.StatusPodium
		r.broadcastLocked(domain.Event{Type: domain.EventShowPodium, Payload: r.leaderboardLocked()}, nil)
		return r.status, nil
	}
	r.questionIndex++
	r.answered = make(map[string]struct{})
	r.revealed = false
	r.status = domain.StatusLive
	r.startQuestionLocked()
	return r.status, nil
}

// End terminates the room from any state. Calling it on an already
// ended room is a benign no-op; quiz_ended is never re-broadcast.
func (r *Room) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == domain.StatusEnded {
		return nil
	}
	r.stopTimerLocked()
	r.status = domain.StatusEnded
	r.broadcastLocked(domain.Event{Type: domain.EventQuizEnded, Terminal: true}, nil)
	for _, conn := range r.conns {
		r.dropConnLocked(conn)
	}
	r.logger.Info().Msg("room ended")
	return nil
}

// Kick removes a participant out-of-band. The score is preserved for
// audit but the identity can no longer submit answers or appear in
// player counts. Kicking twice is a no-op.
func (r *Room) Kick(participantID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[participantID]
	if !ok {
		return domain.ErrInvalidIdentity
	}
	if p.Kicked {
		return nil
	}
	p.Kicked = true
	kicked := domain.Event{
		Type:    domain.EventParticipantKicked,
		Payload: domain.ParticipantRef{ParticipantID: participantID},
	}
	if conn, ok := r.byParticipant[participantID]; ok {
		terminal := kicked
		terminal.Terminal = true
		r.enqueueLocked(conn, terminal)
		r.dropConnLocked(conn)
	}
	r.broadcastLocked(kicked, nil)
	r.broadcastLocked(domain.Event{
		Type:    domain.EventAllParticipants,
		Payload: r.rosterViewLocked(),
	}, nil)
	r.logger.Info().Str("participant", participantID).Msg("participant kicked")
	return nil
}

// SubmitAnswer scores one answer for the active question. A selected
// option of -1 marks a timeout auto-submit: it occupies the answer slot
// but always scores zero.
func (r *Room) SubmitAnswer(participantID string, questionIndex, selectedOption int, timeTakenSec float64) (domain.AnswerResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != domain.StatusLive {
		return domain.AnswerResult{}, domain.ErrRoomNotLive
	}
	p, ok := r.participants[participantID]
	if !ok {
		return domain.AnswerResult{}, domain.ErrInvalidIdentity
	}
	if p.Kicked {
		return domain.AnswerResult{}, domain.ErrParticipantKicked
	}
	if questionIndex != r.questionIndex {
		return domain.AnswerResult{}, domain.ErrStaleQuestion
	}
	if _, dup := r.answered[participantID]; dup {
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}

	q := r.quiz.Questions[r.questionIndex]
	correct := selectedOption >= 0 && selectedOption == q.CorrectOption
	awarded := 0
	if correct {
		awarded = r.policy.Score(q.BasePoints, timeTakenSec, float64(timeLimitOf(q)))
		p.Score += awarded
	}
	r.answered[participantID] = struct{}{}

	count := r.answeredCountLocked()
	total := r.activeRosterLocked()
	r.broadcastLocked(domain.Event{
		Type:        domain.EventAnswerCount,
		Payload:     domain.AnswerCount{QuestionIndex: r.questionIndex, AnsweredCount: count, TotalParticipants: total},
		AdminOnly:   true,
		Coalescable: true,
	}, nil)

	// Everyone-answered fast path: only connected participants gate the
	// reveal, so a dropped player cannot stall the question forever.
	if count >= r.connectedCountLocked() && r.connectedCountLocked() > 0 {
		r.revealLocked()
	}

	return domain.AnswerResult{
		QuestionIndex: questionIndex,
		Correct:       correct,
		Awarded:       awarded,
		TotalScore:    p.Score,
	}, nil
}

// Leaderboard returns the ordered standings for the room.
func (r *Room) Leaderboard() domain.Leaderboard {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaderboardLocked()
}

// autoReveal is the question deadline callback. The captured index
// guards against a stale timer from a previous question firing after
// the room has already moved on.
func (r *Room) autoReveal(questionIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != domain.StatusLive || r.questionIndex != questionIndex || r.revealed {
		return
	}
	r.logger.Debug().Int("question", questionIndex).Msg("question deadline elapsed")
	r.revealLocked()
}

func (r *Room) startQuestionLocked() {
	q := r.quiz.Questions[r.questionIndex]
	limit := time.Duration(timeLimitOf(q)) * time.Second
	r.deadline = r.now().Add(limit)
	r.stopTimerLocked()
	idx := r.questionIndex
	r.timer = time.AfterFunc(limit, func() { r.autoReveal(idx) })
	r.broadcastLocked(domain.Event{
		Type:    domain.EventNextQuestion,
		Payload: questionPayload{Question: r.questionViewLocked(false), Deadline: r.deadline},
	}, nil)
}

func (r *Room) revealLocked() {
	r.stopTimerLocked()
	r.status = domain.StatusRevealing
	r.revealed = true
	r.broadcastLocked(domain.Event{
		Type:    domain.EventShowAnswer,
		Payload: revealPayload{Question: r.questionViewLocked(true), AnsweredCount: r.answeredCountLocked()},
	}, nil)
}

func (r *Room) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) snapshotLocked(forParticipant string) domain.Snapshot {
	snap := domain.Snapshot{
		Code:          r.code,
		Status:        r.status,
		QuestionIndex: r.questionIndex,
		Participants:  r.rosterViewLocked(),
	}
	if r.questionIndex >= 0 && r.questionIndex < len(r.quiz.Questions) {
		view := r.questionViewLocked(r.status != domain.StatusLive && r.status != domain.StatusLobby)
		snap.Question = &view
		if r.status == domain.StatusLive {
			d := r.deadline
			snap.Deadline = &d
		}
	}
	if forParticipant != "" {
		_, snap.AlreadyAnswered = r.answered[forParticipant]
	}
	return snap
}

func (r *Room) questionViewLocked(reveal bool) domain.QuestionView {
	q := r.quiz.Questions[r.questionIndex]
	view := domain.QuestionView{
		ID:           q.ID,
		Index:        r.questionIndex,
		Total:        len(r.quiz.Questions),
		Prompt:       q.Prompt,
		Options:      q.Options,
		TimeLimitSec: timeLimitOf(q),
	}
	if reveal {
		correct := q.CorrectOption
		view.CorrectOption = &correct
	}
	return view
}

func (r *Room) rosterViewLocked() []domain.ParticipantView {
	views := make([]domain.ParticipantView, 0, len(r.participants))
	for _, p := range r.participants {
		if p.Kicked {
			continue
		}
		views = append(views, viewOf(p))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views
}

func (r *Room) leaderboardLocked() domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(r.participants))
	for _, p := range r.participants {
		if p.Kicked {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			Name:          p.Name,
			Score:         p.Score,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi := r.participants[entries[i].ParticipantID]
		pj := r.participants[entries[j].ParticipantID]
		if !pi.JoinedAt.Equal(pj.JoinedAt) {
			return pi.JoinedAt.Before(pj.JoinedAt)
		}
		return entries[i].Name < entries[j].Name
	})
	return domain.Leaderboard{Code: r.code, Entries: entries, UpdatedAt: r.now()}
}

func (r *Room) answeredCountLocked() int {
	count := 0
	for id := range r.answered {
		if p, ok := r.participants[id]; ok && !p.Kicked {
			count++
		}
	}
	return count
}

func (r *Room) activeRosterLocked() int {
	count := 0
	for _, p := range r.participants {
		if !p.Kicked {
			count++
		}
	}
	return count
}

func (r *Room) connectedCountLocked() int {
	count := 0
	for _, p := range r.participants {
		if !p.Kicked && p.Connected {
			count++
		}
	}
	return count
}

// broadcastLocked enqueues an event to every live connection while the
// room lock is held, preserving per-room delivery order.
func (r *Room) broadcastLocked(ev domain.Event, except *Conn) {
	for _, conn := range r.conns {
		if conn == except {
			continue
		}
		if ev.AdminOnly && conn.Role != domain.RoleAdmin {
			continue
		}
		r.enqueueLocked(conn, ev)
	}
}

// enqueueLocked delivers one event to one connection. Queued events are
// guaranteed delivery in order, so a coalescable event that finds the
// buffer full is shed instead of evicting anything ahead of it; the
// next count change re-broadcasts fresher telemetry anyway. Overflow on
// a non-coalescable event drops the connection rather than
// backpressuring the room.
func (r *Room) enqueueLocked(conn *Conn, ev domain.Event) {
	select {
	case conn.events <- ev:
		return
	default:
	}
	if ev.Coalescable {
		r.logger.Debug().Str("conn", conn.ID).Str("event", string(ev.Type)).Msg("send queue full, shedding telemetry")
		return
	}
	r.logger.Warn().Str("conn", conn.ID).Msg("send queue overflow, dropping connection")
	r.dropConnLocked(conn)
}

func (r *Room) dropConnLocked(conn *Conn) {
	if _, ok := r.conns[conn.ID]; !ok {
		return
	}
	delete(r.conns, conn.ID)
	if conn.Role == domain.RoleParticipant {
		if live, ok := r.byParticipant[conn.ParticipantID]; ok && live == conn {
			delete(r.byParticipant, conn.ParticipantID)
			if p, ok := r.participants[conn.ParticipantID]; ok {
				p.Connected = false
			}
		}
	}
	close(conn.events)
}

func viewOf(p *domain.Participant) domain.ParticipantView {
	return domain.ParticipantView{
		ID:         p.ID,
		Name:       p.Name,
		AvatarSeed: p.AvatarSeed,
		Score:      p.Score,
		Connected:  p.Connected,
	}
}

func timeLimitOf(q domain.Question) int {
	if q.TimeLimitSec <= 0 {
		return defaultTimeLimitSec
	}
	return q.TimeLimitSec
}
