package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

func TestRoomStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRoomStore(client, time.Minute)

	room := store.GetOrCreate("ABC123", func() *app.Room {
		quiz := domain.Quiz{Code: "ABC123", Questions: []domain.Question{
			{ID: "q1", Prompt: "2+2?", Options: []string{"3", "4"}, CorrectOption: 1},
		}}
		return app.NewRoom(quiz, nil, app.DefaultScorePolicy(), 8, zerolog.Nop())
	})
	if room == nil {
		t.Fatalf("expected room")
	}
	if !mr.Exists("quiz:room:ABC123") {
		t.Fatalf("expected redis liveness key to be set")
	}

	store.Delete("ABC123")
	if mr.Exists("quiz:room:ABC123") {
		t.Fatalf("expected redis liveness key to be removed")
	}
}
