package memory

import (
	"context"

	"quizroom-service/internal/domain"
)

// StaticDirectory serves participant rosters from an in-memory map,
// keyed by room code. Useful for tests and demo mode; production wires
// the postgres directory instead.
type StaticDirectory struct {
	rosters map[string][]domain.Participant
}

func NewStaticDirectory(rosters map[string][]domain.Participant) *StaticDirectory {
	return &StaticDirectory{rosters: rosters}
}

func (d *StaticDirectory) ListParticipants(_ context.Context, code string) ([]domain.Participant, error) {
	roster, ok := d.rosters[code]
	if !ok {
		// A quiz with no pre-registered participants still gets a room;
		// start_quiz will reject until someone is recognized.
		return nil, nil
	}
	out := make([]domain.Participant, len(roster))
	copy(out, roster)
	return out, nil
}
