package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/thistle/pkg/vocab"
)

func TestSimilarityScorer_Explain(t *testing.T) {
	s := NewSimilarityScorer(nil)

	t.Run("identical names clamp to one", func(t *testing.T) {
		sim := s.Explain("Solar SC 2012 Red", "Solar SC 2012 Red", Metadata{Club: "Solar SC"}, Metadata{Club: "solar sc"})
		assert.Equal(t, 1.0, sim.Base)
		assert.Equal(t, ClubMatchBoost, sim.ClubBoost)
		assert.Equal(t, 1.0, sim.Score)
	})

	t.Run("club boost is case insensitive and additive", func(t *testing.T) {
		sim := s.Explain("Solar SC 2012 Red", "Solar Soccer Club 2012 Red", Metadata{Club: "Solar SC"}, Metadata{Club: "SOLAR SC"})
		assert.Equal(t, ClubMatchBoost, sim.ClubBoost)
		assert.Less(t, sim.Base, 0.85)
		assert.InDelta(t, sim.Base+ClubMatchBoost, sim.Score, 1e-9)
	})

	t.Run("empty club never boosts", func(t *testing.T) {
		sim := s.Explain("Solar 2012", "Solar 2012", Metadata{}, Metadata{})
		assert.Zero(t, sim.ClubBoost)
	})

	t.Run("shared primary league tag boosts", func(t *testing.T) {
		sim := s.Explain("Solar 2012 ECNL", "Solar SC 2012 ECNL", Metadata{}, Metadata{})
		assert.Equal(t, LeagueMatchBoost, sim.LeagueBoost)
		assert.Zero(t, sim.TierPenalty)
	})

	t.Run("one regional league tag is penalized", func(t *testing.T) {
		sim := s.Explain("Solar 2012 ECNL", "Solar 2012 ECNL RL", Metadata{}, Metadata{})
		assert.Zero(t, sim.LeagueBoost)
		assert.Equal(t, LeagueTierPenalty, sim.TierPenalty)
		assert.InDelta(t, sim.Base-LeagueTierPenalty, sim.Score, 1e-9)
	})

	t.Run("lone RL counts as regional", func(t *testing.T) {
		sim := s.Explain("Solar 2012 RL", "Solar 2012 ECNL RL", Metadata{}, Metadata{})
		assert.Equal(t, LeagueMatchBoost, sim.LeagueBoost)
		assert.Zero(t, sim.TierPenalty)
	})

	t.Run("metadata league wins over the name", func(t *testing.T) {
		sim := s.Explain("Solar 2012", "Solar 2012", Metadata{League: "ECNL RL"}, Metadata{League: "ECNL"})
		assert.Equal(t, LeagueTierPenalty, sim.TierPenalty)
		assert.InDelta(t, 1.0-LeagueTierPenalty, sim.Score, 1e-9)
	})

	t.Run("no shared characters floor at zero", func(t *testing.T) {
		sim := s.Explain("abc RL", "xyz", Metadata{}, Metadata{})
		assert.GreaterOrEqual(t, sim.Score, 0.0)
	})
}

func TestSimilarityScorer_Deterministic(t *testing.T) {
	s := NewSimilarityScorer(vocab.Default())
	a, b := "Phoenix Premier FC 14B Black", "Phoenix Premier B2014 Black"
	meta := Metadata{Club: "Phoenix Premier FC"}

	first := s.Score(a, b, meta, meta)
	assert.Equal(t, first, s.Score(a, b, meta, meta))
	assert.GreaterOrEqual(t, first, 0.0)
	assert.LessOrEqual(t, first, 1.0)
	assert.Equal(t, "Phoenix Premier FC 14B Black", a)
}

func TestSimilarityScorer_SameClub(t *testing.T) {
	s := NewSimilarityScorer(nil)

	assert.True(t, s.SameClub("Solar SC", "Solar S.C."))
	assert.True(t, s.SameClub("Solar SC", "Solor SC"))
	assert.False(t, s.SameClub("Solar SC", "Dallas Texans"))
	assert.False(t, s.SameClub("", "Solar SC"))
}

func TestContainsClub(t *testing.T) {
	assert.True(t, ContainsClub("Solar SC 2012 Red", "Solar SC"))
	assert.True(t, ContainsClub("SOLAR SC 2012 RED", "solar sc"))
	assert.False(t, ContainsClub("SOLAR 2012", "Solar SC"))
	assert.False(t, ContainsClub("Solar 2012", ""))
}
