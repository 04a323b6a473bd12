package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
)

func newTestService(opts ...app.Option) *app.RoomService {
	quizzes := memory.NewQuizCache(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"ABC123": {
			Code: "ABC123",
			Questions: []domain.Question{
				{ID: "q1", Prompt: "2+2?", Options: []string{"3", "4"}, CorrectOption: 1, TimeLimitSec: 20, BasePoints: 1000},
				{ID: "q2", Prompt: "3+3?", Options: []string{"6", "7"}, CorrectOption: 0, TimeLimitSec: 20, BasePoints: 1000},
			},
		},
	}), 5*time.Minute)
	directory := memory.NewStaticDirectory(map[string][]domain.Participant{
		"ABC123": {
			{ID: "p1", Name: "Alice"},
			{ID: "p2", Name: "Bob"},
		},
	})
	return app.NewRoomService(memory.NewRoomStore(), quizzes, directory, zerolog.Nop(), opts...)
}

func TestParticipantCannotActivateRoom(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	if _, err := service.Register(ctx, "ABC123", domain.RoleParticipant, "p1", "Alice", ""); err != domain.ErrRoomNotFound {
		t.Fatalf("expected ErrRoomNotFound before activation, got %v", err)
	}
}

func TestAdminActivatesRoomAndParticipantsJoin(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	admin, err := service.Register(ctx, "ABC123", domain.RoleAdmin, "host", "", "")
	if err != nil {
		t.Fatalf("admin register: %v", err)
	}
	if admin.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", admin.Role)
	}

	if _, err := service.Register(ctx, "ABC123", domain.RoleParticipant, "p1", "Alice", ""); err != nil {
		t.Fatalf("participant register: %v", err)
	}
	if _, err := service.Register(ctx, "ABC123", domain.RoleParticipant, "ghost", "Eve", ""); err != domain.ErrInvalidIdentity {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestUnknownQuizRejectsActivation(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	if _, err := service.Register(ctx, "NOPE99", domain.RoleAdmin, "host", "", ""); err != domain.ErrQuizNotFound {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestCaseInsensitiveCodesShareOneRoom(t *testing.T) {
	// The transport uppercases codes before they reach the service;
	// this documents that the service itself is exact-match.
	ctx := context.Background()
	service := newTestService()

	if _, err := service.Register(ctx, "ABC123", domain.RoleAdmin, "host", "", ""); err != nil {
		t.Fatalf("admin register: %v", err)
	}
	if _, err := service.Register(ctx, "abc123", domain.RoleParticipant, "p1", "", ""); err != domain.ErrRoomNotFound {
		t.Fatalf("expected exact-match lookup, got %v", err)
	}
}

type capturingBoards struct {
	saved []domain.Leaderboard
}

func (b *capturingBoards) SaveLeaderboard(_ context.Context, lb domain.Leaderboard) error {
	b.saved = append(b.saved, lb)
	return nil
}

func (b *capturingBoards) GetLeaderboard(_ context.Context, code string) (domain.Leaderboard, error) {
	for i := len(b.saved) - 1; i >= 0; i-- {
		if b.saved[i].Code == code {
			return b.saved[i], nil
		}
	}
	return domain.Leaderboard{}, domain.ErrRoomNotFound
}

func TestEndQuizPersistsAndForgetsRoom(t *testing.T) {
	ctx := context.Background()
	boards := &capturingBoards{}
	service := newTestService(app.WithLeaderboardStore(boards))

	if _, err := service.Register(ctx, "ABC123", domain.RoleAdmin, "host", "", ""); err != nil {
		t.Fatalf("admin register: %v", err)
	}
	if _, err := service.Register(ctx, "ABC123", domain.RoleParticipant, "p1", "Alice", ""); err != nil {
		t.Fatalf("participant register: %v", err)
	}
	if err := service.StartQuiz(ctx, "ABC123"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, "ABC123", "p1", 0, 1, 4); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := service.EndQuiz(ctx, "ABC123"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(boards.saved) == 0 {
		t.Fatalf("expected final standings to be persisted")
	}

	// The room is gone; the read model still serves standings.
	lb, err := service.Leaderboard(ctx, "ABC123")
	if err != nil {
		t.Fatalf("leaderboard after end: %v", err)
	}
	if len(lb.Entries) == 0 || lb.Entries[0].ParticipantID != "p1" {
		t.Fatalf("unexpected persisted standings %+v", lb.Entries)
	}

	if err := service.EndQuiz(ctx, "ABC123"); err != nil {
		t.Fatalf("second end must be a benign acknowledgment, got %v", err)
	}
}

func TestShutdownEndsAllRooms(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	conn, err := service.Register(ctx, "ABC123", domain.RoleAdmin, "host", "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	service.Shutdown(ctx)

	sawEnded := false
	for ev := range conn.Events() {
		if ev.Type == domain.EventQuizEnded {
			sawEnded = true
		}
	}
	if !sawEnded {
		t.Fatalf("expected quiz_ended during shutdown")
	}
}

type reloadCountingLoader struct {
	loads   int
	quizzes map[string]domain.Quiz
}

func (l *reloadCountingLoader) LoadQuiz(_ context.Context, code string) (domain.Quiz, error) {
	l.loads++
	if quiz, ok := l.quizzes[code]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func TestReopenedRoomReloadsQuizContent(t *testing.T) {
	ctx := context.Background()
	loader := &reloadCountingLoader{quizzes: map[string]domain.Quiz{
		"ABC123": {
			Code: "ABC123",
			Questions: []domain.Question{
				{ID: "q1", Prompt: "2+2?", Options: []string{"3", "4"}, CorrectOption: 1, TimeLimitSec: 20, BasePoints: 1000},
			},
		},
	}}
	directory := memory.NewStaticDirectory(map[string][]domain.Participant{
		"ABC123": {{ID: "p1", Name: "Alice"}},
	})
	service := app.NewRoomService(memory.NewRoomStore(), memory.NewQuizCache(loader, 5*time.Minute), directory, zerolog.Nop())

	if _, err := service.Register(ctx, "ABC123", domain.RoleAdmin, "host", "", ""); err != nil {
		t.Fatalf("admin register: %v", err)
	}
	if err := service.EndQuiz(ctx, "ABC123"); err != nil {
		t.Fatalf("end quiz: %v", err)
	}

	// the cache entry was evicted with the room: reopening the code
	// must hit the authoring store again, not the finished game's copy
	if _, err := service.Register(ctx, "ABC123", domain.RoleAdmin, "host", "", ""); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if loader.loads != 2 {
		t.Fatalf("expected a fresh load on reopen, got %d loads", loader.loads)
	}
}
