package app

import "math"

const (
	defaultBasePoints   = 1000
	defaultTimeLimitSec = 20
)

// ScorePolicy controls how correct answers decay with elapsed time.
// Points = floor(base * (1 - Decay * t/T)), never below base * MinFraction
// for a correct answer. Incorrect answers always score zero.
type ScorePolicy struct {
	Decay       float64
	MinFraction float64
}

// DefaultScorePolicy halves the reward over the full time window and
// guarantees half the base points for any correct answer.
func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{Decay: 0.5, MinFraction: 0.5}
}

// Score computes the points for a correct answer given elapsed seconds
// and the question's time limit.
func (p ScorePolicy) Score(basePoints int, timeTakenSec, timeLimitSec float64) int {
	if basePoints <= 0 {
		basePoints = defaultBasePoints
	}
	if timeLimitSec <= 0 {
		timeLimitSec = defaultTimeLimitSec
	}
	t := timeTakenSec
	if t < 0 {
		t = 0
	}
	if t > timeLimitSec {
		t = timeLimitSec
	}
	raw := int(math.Floor(float64(basePoints) * (1 - p.Decay*t/timeLimitSec)))
	floor := int(math.Floor(float64(basePoints) * p.MinFraction))
	if raw < floor {
		return floor
	}
	if raw > basePoints {
		return basePoints
	}
	return raw
}
