package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"quizroom-service/internal/domain"
)

// LeaderboardStore persists standings in Redis so the leaderboard read
// model survives room teardown.
// Scores are stored as:  ZADD quiz:{code}:board {score} {participantID}
// Names are stored as:   HSET quiz:{code}:names {participantID} {name}
type LeaderboardStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardStore(client *redis.Client, ttl time.Duration) *LeaderboardStore {
	return &LeaderboardStore{client: client, ttl: ttl}
}

func (s *LeaderboardStore) SaveLeaderboard(ctx context.Context, lb domain.Leaderboard) error {
	boardKey := s.boardKey(lb.Code)
	nameKey := s.nameKey(lb.Code)

	pipe := s.client.Pipeline()
	pipe.Del(ctx, boardKey)
	for _, entry := range lb.Entries {
		pipe.ZAdd(ctx, boardKey, redis.Z{Score: float64(entry.Score), Member: entry.ParticipantID})
		pipe.HSet(ctx, nameKey, entry.ParticipantID, entry.Name)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, boardKey, s.ttl)
		pipe.Expire(ctx, nameKey, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *LeaderboardStore) GetLeaderboard(ctx context.Context, code string) (domain.Leaderboard, error) {
	members, err := s.client.ZRevRangeWithScores(ctx, s.boardKey(code), 0, -1).Result()
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if len(members) == 0 {
		return domain.Leaderboard{}, domain.ErrRoomNotFound
	}
	names, _ := s.client.HGetAll(ctx, s.nameKey(code)).Result()

	entries := make([]domain.LeaderboardEntry, 0, len(members))
	for _, m := range members {
		id, _ := m.Member.(string)
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: id,
			Name:          names[id],
			Score:         int(m.Score),
		})
	}
	return domain.Leaderboard{Code: code, Entries: entries, UpdatedAt: time.Now()}, nil
}

func (s *LeaderboardStore) boardKey(code string) string {
	return "quiz:" + code + ":board"
}

func (s *LeaderboardStore) nameKey(code string) string {
	return "quiz:" + code + ":names"
}
