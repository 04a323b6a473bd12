package memory

import (
	"testing"

	"github.com/rs/zerolog"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

func testRoom() *app.Room {
	quiz := domain.Quiz{
		Code: "ABC123",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "2+2?", Options: []string{"3", "4"}, CorrectOption: 1},
		},
	}
	return app.NewRoom(quiz, nil, app.DefaultScorePolicy(), 8, zerolog.Nop())
}

func TestRoomStoreLifecycle(t *testing.T) {
	store := NewRoomStore()

	room := store.GetOrCreate("ABC123", testRoom)
	if room == nil {
		t.Fatalf("expected room")
	}
	if again := store.GetOrCreate("ABC123", testRoom); again != room {
		t.Fatalf("expected the same room instance")
	}
	if _, ok := store.Get("ABC123"); !ok {
		t.Fatalf("expected room present")
	}
	if len(store.All()) != 1 {
		t.Fatalf("expected one room, got %d", len(store.All()))
	}

	store.Delete("ABC123")
	if _, ok := store.Get("ABC123"); ok {
		t.Fatalf("expected room removed")
	}
}

func TestRoomStoreDoesNotKeepFailedBuilds(t *testing.T) {
	store := NewRoomStore()

	if room := store.GetOrCreate("ABC123", func() *app.Room { return nil }); room != nil {
		t.Fatalf("nil build must not produce a room")
	}
	if _, ok := store.Get("ABC123"); ok {
		t.Fatalf("failed activation must not be cached")
	}

	if room := store.GetOrCreate("ABC123", testRoom); room == nil {
		t.Fatalf("retry after failed build should succeed")
	}
}
