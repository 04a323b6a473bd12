package memory

import (
	"context"
	"testing"
	"time"

	"quizroom-service/internal/domain"
)

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, code string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, code)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		Code: "ABC123",
		Questions: []domain.Question{
			{ID: "q1", Prompt: "2+2?", Options: []string{"3", "4"}, CorrectOption: 1, BasePoints: 1000},
		},
	}
}

func newCountingCache(ttl time.Duration) (*QuizCache, *countingLoader) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{
			"ABC123": sampleQuiz(),
		}),
	}
	return NewQuizCache(loader, ttl), loader
}

func TestQuizCacheLoadsOnce(t *testing.T) {
	cache, loader := newCountingCache(time.Minute)

	if _, err := cache.GetQuiz(context.Background(), "ABC123"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, err := cache.GetQuiz(context.Background(), "ABC123"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected one load, got %d", loader.calls)
	}
}

func TestQuizCacheUnknownCode(t *testing.T) {
	cache := NewQuizCache(NewStaticQuizLoader(nil), time.Minute)
	if _, err := cache.GetQuiz(context.Background(), "NOPE99"); err != domain.ErrQuizNotFound {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestQuizCacheRefreshesAfterTTL(t *testing.T) {
	cache, loader := newCountingCache(time.Minute)
	now := time.Now()
	cache.clock = func() time.Time { return now }

	if _, err := cache.GetQuiz(context.Background(), "ABC123"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cache.GetQuiz(context.Background(), "ABC123"); err != nil {
		t.Fatalf("get quiz after ttl: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, got %d loads", loader.calls)
	}
}

func TestQuizCachePinnedEntrySurvivesTTL(t *testing.T) {
	cache, loader := newCountingCache(time.Minute)
	now := time.Now()
	cache.clock = func() time.Time { return now }

	if _, err := cache.GetQuiz(context.Background(), "ABC123"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	cache.MarkLive("ABC123")

	now = now.Add(24 * time.Hour)
	if _, err := cache.GetQuiz(context.Background(), "ABC123"); err != nil {
		t.Fatalf("get pinned quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("live content must not be reloaded, got %d loads", loader.calls)
	}
}

func TestQuizCacheEndedCodeReloads(t *testing.T) {
	cache, loader := newCountingCache(time.Minute)

	if _, err := cache.GetQuiz(context.Background(), "ABC123"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	cache.MarkLive("ABC123")
	cache.MarkEnded("ABC123")

	if _, err := cache.GetQuiz(context.Background(), "ABC123"); err != nil {
		t.Fatalf("get quiz after end: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("reopened code must reload, got %d loads", loader.calls)
	}
}
