package resolver

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/thistle/pkg/features"
	"github.com/Ramsey-B/thistle/pkg/matching"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/nameparser"
	"github.com/Ramsey-B/thistle/pkg/vocab"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeAliases struct {
	rows map[string]models.ExternalIdentifier
	// concurrent rows are invisible to GetAlias but block UpsertAlias, as if
	// another writer committed between the read and the write.
	concurrent map[string]models.ExternalIdentifier
	getErr     error
	upserts    int
}

func newFakeAliases() *fakeAliases {
	return &fakeAliases{
		rows:       map[string]models.ExternalIdentifier{},
		concurrent: map[string]models.ExternalIdentifier{},
	}
}

func aliasKey(provider, externalID string) string {
	return provider + "|" + externalID
}

func (f *fakeAliases) put(a models.ExternalIdentifier) {
	f.rows[aliasKey(a.Provider, a.ExternalID)] = a
}

func (f *fakeAliases) GetAlias(_ context.Context, provider, externalID string) (*models.ExternalIdentifier, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	row, ok := f.rows[aliasKey(provider, externalID)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *fakeAliases) UpsertAlias(_ context.Context, alias models.ExternalIdentifier) error {
	k := aliasKey(alias.Provider, alias.ExternalID)
	existing, ok := f.concurrent[k]
	if !ok {
		existing, ok = f.rows[k]
	}
	if ok && existing.IsLive() && existing.TeamID != alias.TeamID {
		return &models.AliasConflictError{Existing: existing, Attempted: alias}
	}
	f.upserts++
	f.rows[k] = alias
	return nil
}

type fakeTeams struct {
	teams []models.Team
	err   error
	pages int
}

func (f *fakeTeams) ScanTeams(_ context.Context, filter models.TeamFilter) ([]models.Team, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.pages++

	sorted := append([]models.Team(nil), f.teams...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var out []models.Team
	for _, t := range sorted {
		if t.ID <= filter.AfterID {
			continue
		}
		if filter.BirthYear != 0 && t.BirthYear != 0 && t.BirthYear != filter.BirthYear {
			continue
		}
		if filter.Gender != models.GenderUnknown && t.Gender != models.GenderUnknown && t.Gender != filter.Gender {
			continue
		}
		if t.Deprecated && !filter.IncludeDeprecated {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

type fakeQueue struct {
	entries []models.ReviewQueueEntry
	err     error
}

func (f *fakeQueue) Enqueue(_ context.Context, e models.ReviewQueueEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

type fakeCanon map[string]string

func (c fakeCanon) Resolve(id string) string {
	if to, ok := c[id]; ok {
		return to
	}
	return id
}

type harness struct {
	aliases  *fakeAliases
	teams    *fakeTeams
	queue    *fakeQueue
	clock    *clockwork.FakeClock
	resolver *Resolver
}

func newHarness(t *testing.T, cfg Config, teams ...models.Team) *harness {
	t.Helper()
	h := &harness{
		aliases: newFakeAliases(),
		teams:   &fakeTeams{teams: teams},
		queue:   &fakeQueue{},
		clock:   clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)),
	}
	log := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	parser := nameparser.New(vocab.Default(), nameparser.Options{SeasonYear: 2026})
	h.resolver = NewResolver(log, h.aliases, h.teams, h.queue, nil, parser, h.clock, cfg)
	return h
}

func (h *harness) fixedScore(score float64) {
	h.resolver.score = func(_, _ string, _, _ matching.Metadata) float64 { return score }
}

func team(id, name, club string, birthYear int, gender models.Gender) models.Team {
	return models.Team{ID: id, Name: name, ClubName: club, BirthYear: birthYear, Gender: gender}
}

func record(externalID, name string) models.IngestRecord {
	return models.IngestRecord{Provider: "gotsport", ExternalID: externalID, RawName: name}
}

// =============================================================================
// TIERS 1 AND 2
// =============================================================================

func TestResolve_AliasTiers(t *testing.T) {
	tests := []struct {
		name     string
		alias    models.ExternalIdentifier
		decision Decision
		tier     Tier
		conf     float64
		reason   string
	}{
		{
			name:     "direct alias",
			alias:    models.ExternalIdentifier{TeamID: "team-1", Confidence: 0.5, ReviewStatus: models.ReviewStatusApproved, MatchMethod: models.MatchMethodDirect},
			decision: DecisionAccept, tier: TierDirect, conf: 1.0, reason: ReasonDirectAlias,
		},
		{
			name:     "migration alias is direct",
			alias:    models.ExternalIdentifier{TeamID: "team-1", ReviewStatus: models.ReviewStatusApproved, MatchMethod: models.MatchMethodMigration},
			decision: DecisionAccept, tier: TierDirect, conf: 1.0, reason: ReasonDirectAlias,
		},
		{
			name:     "manual alias keeps stored confidence",
			alias:    models.ExternalIdentifier{TeamID: "team-1", Confidence: 0.87, ReviewStatus: models.ReviewStatusApproved, MatchMethod: models.MatchMethodManual},
			decision: DecisionAccept, tier: TierCurated, conf: 0.87, reason: ReasonCuratedAlias,
		},
		{
			name:     "approved fuzzy alias is curated",
			alias:    models.ExternalIdentifier{TeamID: "team-1", Confidence: 0.96, ReviewStatus: models.ReviewStatusApproved, MatchMethod: models.MatchMethodFuzzyAuto},
			decision: DecisionAccept, tier: TierCurated, conf: 0.96, reason: ReasonCuratedAlias,
		},
		{
			name:     "pending alias is not accepted",
			alias:    models.ExternalIdentifier{TeamID: "team-1", Confidence: 0.82, ReviewStatus: models.ReviewStatusPending, MatchMethod: models.MatchMethodFuzzyAuto},
			decision: DecisionPendingReview, tier: TierNone, conf: 0.82, reason: ReasonPendingReview,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultConfig())
			tt.alias.Provider, tt.alias.ExternalID = "gotsport", "ext-1"
			h.aliases.put(tt.alias)

			out, err := h.resolver.Resolve(context.Background(), record("ext-1", "Anything 2012"))
			require.NoError(t, err)
			assert.Equal(t, tt.decision, out.Decision)
			assert.Equal(t, tt.tier, out.Tier)
			assert.Equal(t, "team-1", out.TeamID)
			assert.Equal(t, tt.conf, out.Confidence)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Zero(t, h.teams.pages, "alias tiers never scan candidates")
			assert.Zero(t, h.aliases.upserts)
		})
	}
}

func TestResolve_AliasFollowsMerges(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.resolver.canon = fakeCanon{"team-old": "team-root"}
	h.aliases.put(models.ExternalIdentifier{
		Provider: "gotsport", ExternalID: "ext-1", TeamID: "team-old",
		ReviewStatus: models.ReviewStatusApproved, MatchMethod: models.MatchMethodDirect,
	})

	out, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar 2012"))
	require.NoError(t, err)
	assert.Equal(t, "team-root", out.TeamID)
}

func TestResolve_Unparseable(t *testing.T) {
	tests := []struct {
		name       string
		externalID string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"control character", "abc\x00def"},
		{"too long", strings.Repeat("x", 257)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultConfig(), team("team-1", "Solar SC 2012 Red", "Solar SC", 2012, ""))

			out, err := h.resolver.Resolve(context.Background(), record(tt.externalID, "Solar SC 2012 Red"))
			require.NoError(t, err)
			assert.Equal(t, DecisionReject, out.Decision)
			assert.Equal(t, ReasonUnparseable, out.Reason)
			assert.False(t, out.CreatesTeam())
			assert.Zero(t, h.teams.pages)
		})
	}
}

// =============================================================================
// TIER 3: FUZZY
// =============================================================================

func TestResolve_FuzzyAccept(t *testing.T) {
	h := newHarness(t, DefaultConfig(),
		team("team-1", "Solar SC 2012 Red", "Solar SC", 2012, models.GenderBoys),
		team("team-2", "Dallas Texans 2012 Red", "Dallas Texans", 2012, models.GenderBoys),
	)

	out, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
	require.NoError(t, err)
	assert.Equal(t, DecisionAccept, out.Decision)
	assert.Equal(t, TierFuzzy, out.Tier)
	assert.Equal(t, "team-1", out.TeamID)
	assert.Equal(t, 1.0, out.Confidence)
	assert.Equal(t, ReasonFuzzyMatch, out.Reason)
	assert.Equal(t, 2, out.Candidates)
	assert.Nil(t, out.Veto)

	row := h.aliases.rows[aliasKey("gotsport", "ext-1")]
	assert.Equal(t, "team-1", row.TeamID)
	assert.Equal(t, models.ReviewStatusApproved, row.ReviewStatus)
	assert.Equal(t, models.MatchMethodFuzzyAuto, row.MatchMethod)
	assert.Equal(t, h.clock.Now().UTC(), row.CreatedAt)
	assert.Empty(t, h.queue.entries)
}

func TestResolve_Idempotent(t *testing.T) {
	h := newHarness(t, DefaultConfig(), team("team-1", "Solar SC 2012 Red", "Solar SC", 2012, ""))
	rec := record("ext-1", "Solar SC 2012 Red")

	first, err := h.resolver.Resolve(context.Background(), rec)
	require.NoError(t, err)
	second, err := h.resolver.Resolve(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, first.TeamID, second.TeamID)
	assert.Equal(t, DecisionAccept, second.Decision)
	assert.Equal(t, TierCurated, second.Tier)
	assert.Equal(t, 1, h.aliases.upserts)
}

func TestResolve_Buckets(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		highAuto  bool
		decision  Decision
		reason    string
		priority  models.ReviewPriority
		status    models.ReviewStatus
		queued    bool
		aliasSent bool
	}{
		{"auto accept", 0.97, true, DecisionAccept, ReasonFuzzyMatch, "", models.ReviewStatusApproved, false, true},
		{"high band accepted", 0.92, true, DecisionAccept, ReasonFuzzyMatch, "", models.ReviewStatusApproved, false, true},
		{"high band reviewed when disabled", 0.92, false, DecisionReview, ReasonLowConfidence, models.ReviewPriorityMedium, models.ReviewStatusPending, true, true},
		{"medium review", 0.85, true, DecisionReview, ReasonLowConfidence, models.ReviewPriorityMedium, models.ReviewStatusPending, true, true},
		{"medium lower bound", 0.80, true, DecisionReview, ReasonLowConfidence, models.ReviewPriorityMedium, models.ReviewStatusPending, true, true},
		{"low review", 0.74, true, DecisionReview, ReasonLowConfidence, models.ReviewPriorityLow, models.ReviewStatusPending, true, true},
		{"below threshold", 0.55, true, DecisionReject, ReasonBelowThreshold, "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.HighBandAutoAccept = tt.highAuto
			h := newHarness(t, cfg, team("team-1", "Solar SC 2012 Red", "Solar SC", 2012, ""))
			h.fixedScore(tt.score)

			out, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
			require.NoError(t, err)
			assert.Equal(t, tt.decision, out.Decision)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Equal(t, tt.priority, out.Priority)

			row, ok := h.aliases.rows[aliasKey("gotsport", "ext-1")]
			assert.Equal(t, tt.aliasSent, ok)
			if ok {
				assert.Equal(t, tt.status, row.ReviewStatus)
				assert.Equal(t, tt.score, row.Confidence)
			}

			if !tt.queued {
				assert.Empty(t, h.queue.entries)
				return
			}
			require.Len(t, h.queue.entries, 1)
			entry := h.queue.entries[0]
			assert.Equal(t, "team-1", entry.ProposedTeamID)
			assert.Equal(t, tt.priority, entry.Priority)
			assert.Equal(t, models.ReviewStatusPending, entry.Status)
			assert.Equal(t, "Solar SC 2012 Red", entry.RawName)
			assert.NotEmpty(t, entry.ID)
		})
	}

	t.Run("below threshold creates a team", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), team("team-1", "Solar SC 2012 Red", "Solar SC", 2012, ""))
		h.fixedScore(0.4)

		out, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
		require.NoError(t, err)
		assert.Empty(t, out.TeamID)
		assert.True(t, out.CreatesTeam())
	})
}

func TestResolve_VetoedCandidates(t *testing.T) {
	h := newHarness(t, DefaultConfig(),
		team("team-1", "Solar SC 2012 Blue", "Solar SC", 2012, ""),
		team("team-2", "Solar SC 2012 White", "Solar SC", 2012, ""),
	)
	h.fixedScore(1.0)

	out, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, out.Decision)
	assert.Equal(t, ReasonStructurallyDistinct, out.Reason)
	assert.Equal(t, 2, out.Candidates)
	assert.Equal(t, 2, out.Vetoed)
	require.NotNil(t, out.Veto)
	assert.Equal(t, features.FacetColor, out.Veto.Facet)
	assert.True(t, out.CreatesTeam())
	assert.Empty(t, h.aliases.rows)
}

func TestResolve_VetoSkipsOnlyThatCandidate(t *testing.T) {
	h := newHarness(t, DefaultConfig(),
		team("team-1", "Solar SC 2012 Blue", "Solar SC", 2012, ""),
		team("team-2", "Solar SC 2012 Red", "Solar SC", 2012, ""),
	)

	out, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
	require.NoError(t, err)
	assert.Equal(t, DecisionAccept, out.Decision)
	assert.Equal(t, "team-2", out.TeamID)
	assert.Equal(t, 1, out.Vetoed)
	assert.Nil(t, out.Veto)
}

func TestResolve_NoCandidate(t *testing.T) {
	h := newHarness(t, DefaultConfig(), team("team-1", "Solar SC 2010 Red", "Solar SC", 2010, ""))

	out, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, out.Decision)
	assert.Equal(t, ReasonNoCandidate, out.Reason)
	assert.Zero(t, out.Candidates)
	assert.Nil(t, out.Veto)
}

func TestResolve_SquadMismatchDiscards(t *testing.T) {
	h := newHarness(t, DefaultConfig(), team("team-1", "Solar SC 2012 Red II", "Solar SC", 2012, ""))
	h.fixedScore(0.99)

	out, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, out.Decision)
	assert.Equal(t, ReasonNoCandidate, out.Reason)
	assert.Equal(t, 1, out.Candidates)
	assert.Zero(t, out.Vetoed)
}

func TestResolve_CohortHints(t *testing.T) {
	h := newHarness(t, DefaultConfig(),
		team("team-1", "Solar SC 2012 Red", "Solar SC", 2012, models.GenderBoys),
		team("team-2", "Solar SC 2012 Red", "Solar SC", 2012, models.GenderGirls),
	)

	rec := record("ext-1", "Solar SC 2012 Red")
	rec.GenderHint = "female"

	out, err := h.resolver.Resolve(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "team-2", out.TeamID)
	assert.Equal(t, 1, out.Candidates)
}

func TestResolve_Pagination(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PageSize = 2
	h := newHarness(t, cfg,
		team("team-1", "Dallas Texans 2012 Red", "Dallas Texans", 2012, ""),
		team("team-2", "FC Dallas 2012 Red", "FC Dallas", 2012, ""),
		team("team-3", "Sting 2012 Red", "Sting", 2012, ""),
		team("team-4", "Texans 2012 Red", "Texans", 2012, ""),
		team("team-5", "Solar SC 2012 Red", "Solar SC", 2012, ""),
	)

	out, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
	require.NoError(t, err)
	assert.Equal(t, "team-5", out.TeamID)
	assert.Equal(t, 5, out.Candidates)
	assert.Equal(t, 3, h.teams.pages)
}

func TestResolve_RejectedAliasExcludesTeam(t *testing.T) {
	h := newHarness(t, DefaultConfig(),
		team("team-1", "Solar SC 2012 Red", "Solar SC", 2012, ""),
		team("team-2", "Solar Soccer Club 2012 Red", "Solar SC", 2012, ""),
	)
	h.aliases.put(models.ExternalIdentifier{
		Provider: "gotsport", ExternalID: "ext-1", TeamID: "team-1",
		ReviewStatus: models.ReviewStatusRejected, MatchMethod: models.MatchMethodFuzzyAuto,
	})
	h.fixedScore(0.96)

	out, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
	require.NoError(t, err)
	assert.Equal(t, DecisionAccept, out.Decision)
	assert.Equal(t, "team-2", out.TeamID)
	assert.Equal(t, 1, out.Candidates)

	row := h.aliases.rows[aliasKey("gotsport", "ext-1")]
	assert.Equal(t, "team-2", row.TeamID)
	assert.Equal(t, models.ReviewStatusApproved, row.ReviewStatus)
}

func TestResolve_Conflict(t *testing.T) {
	h := newHarness(t, DefaultConfig(), team("team-1", "Solar SC 2012 Red", "Solar SC", 2012, ""))
	existing := models.ExternalIdentifier{
		Provider: "gotsport", ExternalID: "ext-1", TeamID: "team-9",
		Confidence: 1.0, ReviewStatus: models.ReviewStatusApproved, MatchMethod: models.MatchMethodManual,
	}
	h.aliases.concurrent[aliasKey("gotsport", "ext-1")] = existing

	out, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
	require.NoError(t, err)
	assert.Equal(t, DecisionConflict, out.Decision)
	assert.Equal(t, ReasonAliasConflict, out.Reason)
	assert.Equal(t, "team-9", out.TeamID)
	assert.False(t, out.CreatesTeam())
	assert.Zero(t, h.aliases.upserts)
	assert.Equal(t, existing, h.aliases.concurrent[aliasKey("gotsport", "ext-1")])
	assert.Empty(t, h.queue.entries)
}

func TestResolve_StoreUnavailable(t *testing.T) {
	boom := errors.New("connection refused")

	t.Run("alias lookup", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		h.aliases.getErr = boom

		_, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrStoreUnavailable)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("candidate scan", func(t *testing.T) {
		h := newHarness(t, DefaultConfig())
		h.teams.err = boom

		_, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
		assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	})

	t.Run("review enqueue", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), team("team-1", "Solar SC 2012 Red", "Solar SC", 2012, ""))
		h.queue.err = boom
		h.fixedScore(0.75)

		_, err := h.resolver.Resolve(context.Background(), record("ext-1", "Solar SC 2012 Red"))
		assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	})
}

func TestGenderFromHint(t *testing.T) {
	assert.Equal(t, models.GenderBoys, GenderFromHint("B"))
	assert.Equal(t, models.GenderBoys, GenderFromHint(" male "))
	assert.Equal(t, models.GenderGirls, GenderFromHint("girls"))
	assert.Equal(t, models.GenderUnknown, GenderFromHint("coed"))
}
