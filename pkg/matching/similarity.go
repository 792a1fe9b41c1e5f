// Package matching scores how alike two team names are.
package matching

import (
	"strings"

	"github.com/Ramsey-B/thistle/pkg/nameparser"
	"github.com/Ramsey-B/thistle/pkg/normalizers"
	"github.com/Ramsey-B/thistle/pkg/vocab"
)

const (
	ClubMatchBoost     = 0.15
	LeagueMatchBoost   = 0.05
	LeagueTierPenalty  = 0.08
	nearIdenticalJW    = 0.96
	nearIdenticalEdits = 1
)

// Metadata is optional provider context for a name.
type Metadata struct {
	Club   string
	League string
}

// Similarity is a score with its parts, kept for review notes.
type Similarity struct {
	Base        float64 `json:"base"`
	ClubBoost   float64 `json:"club_boost"`
	LeagueBoost float64 `json:"league_boost"`
	TierPenalty float64 `json:"tier_penalty"`
	Score       float64 `json:"score"`
}

// SimilarityScorer computes name similarity with domain adjustments.
type SimilarityScorer struct {
	scorer *Scorer
	vocab  *vocab.Vocabulary
}

// NewSimilarityScorer creates a scorer. A nil vocabulary uses the defaults.
func NewSimilarityScorer(v *vocab.Vocabulary) *SimilarityScorer {
	if v == nil {
		v = vocab.Default()
	}
	return &SimilarityScorer{
		scorer: NewScorer(),
		vocab:  v,
	}
}

// BaseRatio is the sequence alignment ratio of the normalized strings.
func (s *SimilarityScorer) BaseRatio(a, b string) float64 {
	return s.scorer.Ratio(
		normalizers.NormalizeTeamName(a),
		normalizers.NormalizeTeamName(b),
	)
}

// Score returns the adjusted similarity in [0, 1].
func (s *SimilarityScorer) Score(a, b string, metaA, metaB Metadata) float64 {
	return s.Explain(a, b, metaA, metaB).Score
}

// Explain returns the adjusted similarity and its components.
func (s *SimilarityScorer) Explain(a, b string, metaA, metaB Metadata) Similarity {
	sim := Similarity{Base: s.BaseRatio(a, b)}

	clubA := normalizers.NormalizeClubName(metaA.Club)
	clubB := normalizers.NormalizeClubName(metaB.Club)
	if clubA != "" && clubB != "" && s.scorer.ExactMatch(clubA, clubB, false) == 1.0 {
		sim.ClubBoost = ClubMatchBoost
	}

	familyA, tierA := s.LeagueTag(a, metaA)
	familyB, tierB := s.LeagueTag(b, metaB)
	if familyA != "" && familyA == familyB {
		sim.LeagueBoost = LeagueMatchBoost
	}
	if (tierA == vocab.TierRegional) != (tierB == vocab.TierRegional) {
		sim.TierPenalty = LeagueTierPenalty
	}

	sim.Score = Clamp(sim.Base + sim.ClubBoost + sim.LeagueBoost - sim.TierPenalty)
	return sim
}

// LeagueTag returns the first tiered program family named by the metadata,
// falling back to the name itself.
func (s *SimilarityScorer) LeagueTag(name string, meta Metadata) (string, vocab.Tier) {
	if meta.League != "" {
		if family, tier := s.tieredFamily(meta.League); family != "" {
			return family, tier
		}
	}
	return s.tieredFamily(name)
}

func (s *SimilarityScorer) tieredFamily(text string) (string, vocab.Tier) {
	tokens := nameparser.Tokenize(text)
	lower := make([]string, len(tokens))
	for i, t := range tokens {
		lower[i] = t.Lower
	}

	for i := 0; i < len(lower); i++ {
		family, width, ok := s.vocab.Program(lower, i)
		if !ok {
			continue
		}
		if tier := s.vocab.ProgramTier(family); tier != vocab.TierNone {
			return family, tier
		}
		i += width - 1
	}
	return "", vocab.TierNone
}

// SameClub reports whether two club names are the same or near-identical
// after normalization (one edit apart, or Jaro-Winkler above 0.96).
func (s *SimilarityScorer) SameClub(a, b string) bool {
	na, nb := normalizers.NormalizeClubName(a), normalizers.NormalizeClubName(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if s.scorer.LevenshteinDistance(na, nb) <= nearIdenticalEdits {
		return true
	}
	return s.scorer.JaroWinkler(na, nb) >= nearIdenticalJW
}

// ContainsClub reports whether name contains club, ignoring case and accents.
func ContainsClub(name, club string) bool {
	c := normalizers.NormalizeClubName(club)
	if c == "" {
		return false
	}
	return strings.Contains(normalizers.NormalizeTeamName(name), c)
}
