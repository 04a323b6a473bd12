package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizroom-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., the
// authoring database).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, code string) (domain.Quiz, error)
}

// QuizCache serves quiz content during room activation and tracks the
// room's lifecycle: entries age out on a jittered TTL while the room is
// in the lobby, a room going live pins its entry so expiry cannot swap
// content underneath a running game, and ending the room evicts the
// entry so a reopened code loads whatever the authoring store holds by
// then.
type QuizCache struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu      sync.Mutex
	entries map[string]*quizEntry
}

type quizEntry struct {
	quiz    domain.Quiz
	staleAt time.Time
	pinned  bool
}

func NewQuizCache(loader QuizLoader, ttl time.Duration) *QuizCache {
	return &QuizCache{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]*quizEntry),
	}
}

// GetQuiz returns the content for a room code, loading it at most once
// per code even when many connections activate the same room at once.
func (c *QuizCache) GetQuiz(ctx context.Context, code string) (domain.Quiz, error) {
	if quiz, ok := c.lookup(code); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(code, func() (interface{}, error) {
		if quiz, ok := c.lookup(code); ok {
			return quiz, nil
		}
		quiz, err := c.loader.LoadQuiz(ctx, code)
		if err != nil {
			return domain.Quiz{}, err
		}
		c.mu.Lock()
		c.entries[code] = &quizEntry{quiz: quiz, staleAt: c.clock().Add(c.jitteredTTL())}
		c.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// lookup also evicts entries whose TTL has lapsed; pinned entries never
// lapse.
func (c *QuizCache) lookup(code string) (domain.Quiz, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[code]
	if !ok {
		return domain.Quiz{}, false
	}
	if !entry.pinned && !entry.staleAt.After(c.clock()) {
		delete(c.entries, code)
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

// MarkLive pins the code's content for the duration of the game.
func (c *QuizCache) MarkLive(code string) {
	c.mu.Lock()
	if entry, ok := c.entries[code]; ok {
		entry.pinned = true
	}
	c.mu.Unlock()
}

// MarkEnded evicts the code so a reopened room cannot serve the content
// the finished game ran on.
func (c *QuizCache) MarkEnded(code string) {
	c.mu.Lock()
	delete(c.entries, code)
	c.mu.Unlock()
}

func (c *QuizCache) jitteredTTL() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader is a simple loader backed by an in-memory map
// (useful for tests/demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, code string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[code]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}
