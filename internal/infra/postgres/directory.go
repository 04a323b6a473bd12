package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizroom-service/internal/domain"
)

// Directory resolves pre-registered participant identities from the
// authoring store.
type Directory struct {
	pool *pgxpool.Pool
}

func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) ListParticipants(ctx context.Context, code string) ([]domain.Participant, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, name, avatar_seed FROM participants WHERE quiz_code=$1 ORDER BY created_at`, code)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var roster []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.AvatarSeed); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		roster = append(roster, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return roster, nil
}
