package sm2

import (
	"fmt"
	"math"
	"time"
)

// Grade is the review outcome a learner reports.
type Grade int

const (
	GradeAgain Grade = 0
	GradeHard  Grade = 1
	GradeGood  Grade = 2
	GradeEasy  Grade = 3
)

// gradeQuality maps grades onto SM-2 quality scores (0-5).
var gradeQuality = [4]int{0, 2, 4, 5}

// masteryDelta is the per-grade shift applied to concepts linked to the
// reviewed card's chunk.
var masteryDelta = [4]float64{-0.05, 0.0, 0.05, 0.10}

// State is a card's scheduling state before or after a review.
type State struct {
	Repetitions int
	Interval    int
	Difficulty  float64
}

// Result is the outcome of applying a grade.
type Result struct {
	State
	NextReview time.Time
}

func ValidGrade(g Grade) bool {
	return g >= GradeAgain && g <= GradeEasy
}

// Review applies the SM-2 variant to a card state. A failing grade (quality
// below 3) resets the repetition streak and schedules a retry tomorrow;
// otherwise the interval grows on the 1, 6, interval*factor ladder where
// easier cards (lower difficulty) grow faster. Difficulty follows the
// standard SM-2 EF delta rescaled into [0.1, 0.9]. now is truncated to a
// UTC date before the interval is added.
func Review(s State, g Grade, now time.Time) (Result, error) {
	if !ValidGrade(g) {
		return Result{}, fmt.Errorf("sm2: grade must be 0, 1, 2, or 3; got %d", g)
	}

	q := gradeQuality[g]

	var out State
	if q < 3 {
		out.Repetitions = 0
		out.Interval = 1
	} else {
		switch s.Repetitions {
		case 0:
			out.Interval = 1
		case 1:
			out.Interval = 6
		default:
			grown := int(math.Round(float64(s.Interval) * (2.5 - s.Difficulty*1.2)))
			if grown < 1 {
				grown = 1
			}
			out.Interval = grown
		}
		out.Repetitions = s.Repetitions + 1
	}

	efDelta := 0.1 - float64(5-q)*(0.08+float64(5-q)*0.02)
	out.Difficulty = clamp(s.Difficulty-efDelta*0.2, 0.1, 0.9)

	today := now.UTC().Truncate(24 * time.Hour)
	return Result{
		State:      out,
		NextReview: today.AddDate(0, 0, out.Interval),
	}, nil
}

// MasteryDelta returns the concept mastery shift for a grade.
func MasteryDelta(g Grade) float64 {
	if !ValidGrade(g) {
		return 0
	}
	return masteryDelta[g]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
