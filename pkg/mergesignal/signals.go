package mergesignal

import (
	"math"

	"github.com/Ramsey-B/thistle/pkg/matching"
	"github.com/Ramsey-B/thistle/pkg/models"
)

// Signal weights. They sum to 1.0.
const (
	WeightOpponentOverlap   = 0.40
	WeightScheduleAlignment = 0.25
	WeightNameSimilarity    = 0.20
	WeightGeography         = 0.10
	WeightPerformance       = 0.05
)

const (
	nameWeight            = 0.7
	clubWeight            = 0.3
	sameStateScore        = 0.5
	sameClubScore         = 0.5
	winRateWeight         = 0.6
	goalDiffWeight        = 0.4
	goalDiffScale         = 5.0
	scheduleToleranceDays = 1
)

// Weights returns the signal weights in breakdown order.
func Weights() []float64 {
	return []float64{
		WeightOpponentOverlap,
		WeightScheduleAlignment,
		WeightNameSimilarity,
		WeightGeography,
		WeightPerformance,
	}
}

// Combine applies the weights to a breakdown. The result is clamped to [0, 1].
func Combine(s models.SignalBreakdown) float64 {
	return matching.Clamp(
		WeightOpponentOverlap*s.OpponentOverlap +
			WeightScheduleAlignment*s.ScheduleAlignment +
			WeightNameSimilarity*s.NameSimilarity +
			WeightGeography*s.Geography +
			WeightPerformance*s.Performance,
	)
}

// OpponentOverlap is the Jaccard similarity of the two opponent id sets.
func OpponentOverlap(a, b []models.Game) float64 {
	setA := opponents(a)
	setB := opponents(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	shared := 0
	for id := range setA {
		if _, ok := setB[id]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}

func opponents(games []models.Game) map[string]struct{} {
	out := make(map[string]struct{}, len(games))
	for _, g := range games {
		if g.OpponentID != "" {
			out[g.OpponentID] = struct{}{}
		}
	}
	return out
}

// ScheduleAlignment is the fraction of the smaller schedule's games played
// within a day of any game of the other team.
func ScheduleAlignment(scorer *matching.Scorer, a, b []models.Game) float64 {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	if len(small) == 0 {
		return 0
	}

	aligned := 0
	for _, g := range small {
		for _, other := range large {
			if scorer.WithinDays(g.PlayedOn, other.PlayedOn, scheduleToleranceDays) {
				aligned++
				break
			}
		}
	}
	return math.Min(1, float64(aligned)/float64(len(small)))
}

// Performance compares win rates and average goal differential.
func Performance(scorer *matching.Scorer, a, b []models.Game) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	winA, gdA := record(a)
	winB, gdB := record(b)

	return winRateWeight*(1-math.Abs(winA-winB)) +
		goalDiffWeight*scorer.NumericProximity(gdA, gdB, goalDiffScale)
}

// record returns the win rate and the mean goal differential per game.
func record(games []models.Game) (float64, float64) {
	wins, diff := 0, 0
	for _, g := range games {
		if g.GoalsFor > g.GoalsAgainst {
			wins++
		}
		diff += g.GoalsFor - g.GoalsAgainst
	}
	n := float64(len(games))
	return float64(wins) / n, float64(diff) / n
}
