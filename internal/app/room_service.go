package app

import (
	"context"

	"github.com/rs/zerolog"

	"quizroom-service/internal/domain"
)

// RoomRepository abstracts how live rooms are stored (in-memory, Redis-marked, etc).
type RoomRepository interface {
	Get(code string) (*Room, bool)
	GetOrCreate(code string, build func() *Room) *Room
	Delete(code string)
	All() []*Room
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, code string) (domain.Quiz, error)
}

// QuizCacheControl is implemented by caching quiz repositories. A room
// pins its content while the game runs and evicts it when the game
// ends, so a reopened code never serves what the finished game ran on.
type QuizCacheControl interface {
	MarkLive(code string)
	MarkEnded(code string)
}

// ParticipantDirectory resolves the roster of recognized participant
// identities for a room code, as registered through the authoring store.
type ParticipantDirectory interface {
	ListParticipants(ctx context.Context, code string) ([]domain.Participant, error)
}

// StatusUpdater patches the authoring store's quiz status when a room
// goes live or ends. Implementations are best-effort collaborators.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, code string, status domain.RoomStatus) error
}

// LeaderboardStore persists standings snapshots for the read model.
type LeaderboardStore interface {
	SaveLeaderboard(ctx context.Context, lb domain.Leaderboard) error
	GetLeaderboard(ctx context.Context, code string) (domain.Leaderboard, error)
}

// RoomService coordinates rooms, the connection registry, and the
// external stores. One instance serves all rooms; rooms never share
// mutable state with each other.
type RoomService struct {
	rooms     RoomRepository
	quizzes   QuizRepository
	directory ParticipantDirectory
	status    StatusUpdater    // optional
	boards    LeaderboardStore // optional
	policy    ScorePolicy
	sendBuf   int
	logger    zerolog.Logger
}

// Option configures optional collaborators on the service.
type Option func(*RoomService)

// WithStatusUpdater wires the quiz-status patch collaborator.
func WithStatusUpdater(s StatusUpdater) Option {
	return func(svc *RoomService) { svc.status = s }
}

// WithLeaderboardStore wires the persisted leaderboard read model.
func WithLeaderboardStore(b LeaderboardStore) Option {
	return func(svc *RoomService) { svc.boards = b }
}

// WithScorePolicy overrides the default point-decay policy.
func WithScorePolicy(p ScorePolicy) Option {
	return func(svc *RoomService) { svc.policy = p }
}

// WithSendBuffer sets the per-connection outbound queue size.
func WithSendBuffer(n int) Option {
	return func(svc *RoomService) { svc.sendBuf = n }
}

func NewRoomService(rooms RoomRepository, quizzes QuizRepository, directory ParticipantDirectory, logger zerolog.Logger, opts ...Option) *RoomService {
	svc := &RoomService{
		rooms:     rooms,
		quizzes:   quizzes,
		directory: directory,
		policy:    DefaultScorePolicy(),
		sendBuf:   defaultSendBuffer,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Register admits a connection into a room. An admin join activates the
// room if it does not exist yet, loading quiz content and the roster
// from the authoring store; participants can only join activated rooms.
func (s *RoomService) Register(ctx context.Context, code string, role domain.Role, identity, name, avatarSeed string) (*Conn, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		if role != domain.RoleAdmin {
			return nil, domain.ErrRoomNotFound
		}
		var buildErr error
		room = s.rooms.GetOrCreate(code, func() *Room {
			quiz, err := s.quizzes.GetQuiz(ctx, code)
			if err != nil {
				buildErr = err
				return nil
			}
			roster, err := s.directory.ListParticipants(ctx, code)
			if err != nil {
				buildErr = err
				return nil
			}
			return NewRoom(quiz, roster, s.policy, s.sendBuf, s.logger)
		})
		if buildErr != nil {
			return nil, buildErr
		}
		if room == nil {
			return nil, domain.ErrRoomNotFound
		}
	}
	return room.Register(role, identity, name, avatarSeed)
}

// Unregister detaches a connection from its room; safe to call after
// the room is gone.
func (s *RoomService) Unregister(conn *Conn) {
	if conn == nil {
		return
	}
	room, ok := s.rooms.Get(conn.RoomCode)
	if !ok {
		return
	}
	room.Unregister(conn)
}

// Snapshot re-delivers the full room state for an explicit resync request.
func (s *RoomService) Snapshot(code, forParticipant string) (domain.Snapshot, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	return room.Snapshot(forParticipant), nil
}

// StartQuiz moves a lobby room live and patches the authoring store.
func (s *RoomService) StartQuiz(ctx context.Context, code string) error {
	room, ok := s.rooms.Get(code)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if err := room.Start(); err != nil {
		return err
	}
	if cc, ok := s.quizzes.(QuizCacheControl); ok {
		cc.MarkLive(code)
	}
	s.patchStatus(ctx, code, domain.StatusLive)
	return nil
}

// RevealAnswers exposes the correct answer for the active question.
func (s *RoomService) RevealAnswers(code string) error {
	room, ok := s.rooms.Get(code)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return room.Reveal()
}

// ShowLeaderboard broadcasts the standings and persists them to the
// read model.
func (s *RoomService) ShowLeaderboard(ctx context.Context, code string) error {
	room, ok := s.rooms.Get(code)
	if !ok {
		return domain.ErrRoomNotFound
	}
	if err := room.ShowLeaderboard(); err != nil {
		return err
	}
	s.persistLeaderboard(ctx, room)
	return nil
}

// NextQuestion advances the room; reaching the podium also persists the
// final standings.
func (s *RoomService) NextQuestion(ctx context.Context, code string) error {
	room, ok := s.rooms.Get(code)
	if !ok {
		return domain.ErrRoomNotFound
	}
	status, err := room.NextQuestion()
	if err != nil {
		return err
	}
	if status == domain.StatusPodium {
		s.persistLeaderboard(ctx, room)
	}
	return nil
}

// EndQuiz terminates the room, persists final standings, patches the
// quiz status, and forgets the room. Ending twice is benign.
func (s *RoomService) EndQuiz(ctx context.Context, code string) error {
	room, ok := s.rooms.Get(code)
	if !ok {
		// Already ended and forgotten: benign acknowledgment.
		return nil
	}
	s.persistLeaderboard(ctx, room)
	if err := room.End(); err != nil {
		return err
	}
	if cc, ok := s.quizzes.(QuizCacheControl); ok {
		cc.MarkEnded(code)
	}
	s.patchStatus(ctx, code, domain.StatusEnded)
	s.rooms.Delete(code)
	return nil
}

// KickParticipant removes a participant out-of-band.
func (s *RoomService) KickParticipant(code, participantID string) error {
	room, ok := s.rooms.Get(code)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return room.Kick(participantID)
}

// SubmitAnswer scores one answer for the active question of a room.
func (s *RoomService) SubmitAnswer(_ context.Context, code, participantID string, questionIndex, selectedOption int, timeTakenSec float64) (domain.AnswerResult, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return domain.AnswerResult{}, domain.ErrRoomNotFound
	}
	return room.SubmitAnswer(participantID, questionIndex, selectedOption, timeTakenSec)
}

// Leaderboard serves standings: the live room when present, otherwise
// the persisted read model.
func (s *RoomService) Leaderboard(ctx context.Context, code string) (domain.Leaderboard, error) {
	if room, ok := s.rooms.Get(code); ok {
		return room.Leaderboard(), nil
	}
	if s.boards != nil {
		return s.boards.GetLeaderboard(ctx, code)
	}
	return domain.Leaderboard{}, domain.ErrRoomNotFound
}

// Shutdown ends every live room so connected clients receive quiz_ended
// before the process exits.
func (s *RoomService) Shutdown(ctx context.Context) {
	for _, room := range s.rooms.All() {
		code := room.Code()
		s.persistLeaderboard(ctx, room)
		_ = room.End()
		if cc, ok := s.quizzes.(QuizCacheControl); ok {
			cc.MarkEnded(code)
		}
		s.rooms.Delete(code)
	}
}

func (s *RoomService) persistLeaderboard(ctx context.Context, room *Room) {
	if s.boards == nil {
		return
	}
	if err := s.boards.SaveLeaderboard(ctx, room.Leaderboard()); err != nil {
		s.logger.Warn().Err(err).Str("room", room.Code()).Msg("persist leaderboard failed")
	}
}

func (s *RoomService) patchStatus(ctx context.Context, code string, status domain.RoomStatus) {
	if s.status == nil {
		return
	}
	if err := s.status.UpdateStatus(ctx, code, status); err != nil {
		s.logger.Warn().Err(err).Str("room", code).Msg("quiz status patch failed")
	}
}
