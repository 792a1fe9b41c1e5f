//go:build integration

package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/thistle/internal/repositories/externalid"
	"github.com/Ramsey-B/thistle/internal/repositories/game"
	"github.com/Ramsey-B/thistle/internal/repositories/mergeedge"
	"github.com/Ramsey-B/thistle/internal/repositories/reviewqueue"
	"github.com/Ramsey-B/thistle/internal/repositories/team"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/models"
)

func getTestDB(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "user",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "thistle",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	cfg := database.Config{Host: host, Port: port.Port(), User: "user", Password: "password", Name: "thistle"}
	db, err := database.Open(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: "../../db/pg"})
	require.NoError(t, migrations.Migrate(db.SQL(), cfg.Name))

	return db
}

func TestRepositories(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	teams := team.NewRepository(db, logger)
	aliases := externalid.NewRepository(db, logger)
	queue := reviewqueue.NewRepository(db, logger)
	edges := mergeedge.NewRepository(db, logger)
	games := game.NewRepository(db, logger)

	region := "ca"
	create := func(name string, birthYear int, gender models.Gender, region *string) *models.Team {
		t.Helper()
		tm, err := teams.Create(ctx, models.NewTeam{Name: name, ClubName: "Solar SC", BirthYear: birthYear, Gender: gender, RegionCode: region})
		require.NoError(t, err)
		return tm
	}

	red := create("Solar SC 2012 Red", 2012, models.GenderBoys, &region)
	redDup := create("Solar 12B Red", 2012, models.GenderBoys, nil)
	girls := create("Solar SC 2012 Red", 2012, models.GenderGirls, &region)
	unknownYear := create("Solar SC Red", 0, models.GenderBoys, &region)

	t.Run("scan matches value or unknown", func(t *testing.T) {
		got, err := teams.ScanTeams(ctx, models.TeamFilter{BirthYear: 2012, Gender: models.GenderBoys, Region: "ca"})
		require.NoError(t, err)

		ids := map[string]bool{}
		for _, tm := range got {
			ids[tm.ID] = true
		}
		assert.True(t, ids[red.ID])
		assert.True(t, ids[redDup.ID])
		assert.True(t, ids[unknownYear.ID])
		assert.False(t, ids[girls.ID])
	})

	t.Run("scan pages by id", func(t *testing.T) {
		var seen []string
		filter := models.TeamFilter{Limit: 2}
		for {
			page, err := teams.ScanTeams(ctx, filter)
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			for _, tm := range page {
				seen = append(seen, tm.ID)
			}
			filter.AfterID = page[len(page)-1].ID
		}
		assert.Len(t, seen, 4)
		assert.IsIncreasing(t, seen)
	})

	t.Run("alias upsert and conflict", func(t *testing.T) {
		alias := models.ExternalIdentifier{
			Provider: "gotsport", ExternalID: "1001", TeamID: red.ID, Confidence: 0.93,
			ReviewStatus: models.ReviewStatusApproved, MatchMethod: models.MatchMethodFuzzyAuto,
		}
		require.NoError(t, aliases.UpsertAlias(ctx, alias))
		require.NoError(t, aliases.UpsertAlias(ctx, alias), "same team rewrite is idempotent")

		other := alias
		other.TeamID = girls.ID
		err := aliases.UpsertAlias(ctx, other)
		var conflict *models.AliasConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, red.ID, conflict.Existing.TeamID)

		stored, err := aliases.GetAlias(ctx, "gotsport", "1001")
		require.NoError(t, err)
		assert.Equal(t, red.ID, stored.TeamID)
		assert.Equal(t, models.ReviewStatusApproved, stored.ReviewStatus)

		missing, err := aliases.GetAlias(ctx, "gotsport", "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("review approve promotes alias", func(t *testing.T) {
		pending := models.ExternalIdentifier{
			Provider: "gotsport", ExternalID: "2002", TeamID: redDup.ID, Confidence: 0.84,
			ReviewStatus: models.ReviewStatusPending, MatchMethod: models.MatchMethodFuzzyAuto,
		}
		require.NoError(t, aliases.UpsertAlias(ctx, pending))

		entry := models.ReviewQueueEntry{
			Provider: "gotsport", ExternalID: "2002", ProposedTeamID: redDup.ID,
			Confidence: 0.84, RawName: "Solar 12B Red", Priority: models.ReviewPriorityMedium,
		}
		require.NoError(t, queue.Enqueue(ctx, entry))
		require.NoError(t, queue.Enqueue(ctx, entry))

		list, err := queue.ListPending(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)

		decided, err := queue.Approve(ctx, list[0].ID, "reviewer")
		require.NoError(t, err)
		assert.Equal(t, models.ReviewStatusApproved, decided.Status)

		_, err = queue.Approve(ctx, list[0].ID, "reviewer")
		assert.Error(t, err, "a decided entry cannot be decided again")

		stored, err := aliases.GetAlias(ctx, "gotsport", "2002")
		require.NoError(t, err)
		assert.Equal(t, models.ReviewStatusApproved, stored.ReviewStatus)
		assert.Equal(t, models.MatchMethodManual, stored.MatchMethod)
		assert.InDelta(t, 0.90, stored.Confidence, 1e-9)
	})

	t.Run("rejected alias may be replaced", func(t *testing.T) {
		pending := models.ExternalIdentifier{
			Provider: "gotsport", ExternalID: "3003", TeamID: girls.ID, Confidence: 0.75,
			ReviewStatus: models.ReviewStatusPending, MatchMethod: models.MatchMethodFuzzyAuto,
		}
		require.NoError(t, aliases.UpsertAlias(ctx, pending))
		require.NoError(t, queue.Enqueue(ctx, models.ReviewQueueEntry{
			Provider: "gotsport", ExternalID: "3003", ProposedTeamID: girls.ID,
			Confidence: 0.75, RawName: "Solar Red", Priority: models.ReviewPriorityLow,
		}))
		list, err := queue.ListPending(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)
		_, err = queue.Reject(ctx, list[0].ID, "reviewer")
		require.NoError(t, err)

		replacement := pending
		replacement.TeamID = red.ID
		replacement.ReviewStatus = models.ReviewStatusApproved
		require.NoError(t, aliases.UpsertAlias(ctx, replacement))

		stored, err := aliases.GetAlias(ctx, "gotsport", "3003")
		require.NoError(t, err)
		assert.Equal(t, red.ID, stored.TeamID)
	})

	t.Run("merge apply re-points to the root", func(t *testing.T) {
		_, err := edges.Apply(ctx, models.MergeEdge{DeprecatedTeamID: unknownYear.ID, CanonicalTeamID: redDup.ID, CreatedBy: "test", Reason: "duplicate"})
		require.NoError(t, err)

		applied, err := edges.Apply(ctx, models.MergeEdge{DeprecatedTeamID: redDup.ID, CanonicalTeamID: red.ID, CreatedBy: "test", Reason: "duplicate"})
		require.NoError(t, err)
		assert.Equal(t, red.ID, applied.CanonicalTeamID)

		all, err := edges.ListMergeEdges(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		for _, e := range all {
			assert.Equal(t, red.ID, e.CanonicalTeamID, e.DeprecatedTeamID)
		}

		again, err := edges.Apply(ctx, models.MergeEdge{DeprecatedTeamID: redDup.ID, CanonicalTeamID: red.ID, CreatedBy: "test", Reason: "duplicate"})
		require.NoError(t, err)
		assert.Equal(t, red.ID, again.CanonicalTeamID)

		_, err = edges.Apply(ctx, models.MergeEdge{DeprecatedTeamID: redDup.ID, CanonicalTeamID: girls.ID, CreatedBy: "test", Reason: "duplicate"})
		assert.ErrorIs(t, err, models.ErrMergeConflict)

		_, err = edges.Apply(ctx, models.MergeEdge{DeprecatedTeamID: red.ID, CanonicalTeamID: redDup.ID, CreatedBy: "test", Reason: "duplicate"})
		assert.ErrorIs(t, err, models.ErrInvalidMerge)

		dep, err := teams.GetByID(ctx, redDup.ID)
		require.NoError(t, err)
		assert.True(t, dep.Deprecated)
	})

	t.Run("games by team", func(t *testing.T) {
		day := time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC)
		var batch []models.Game
		for i := 0; i < 3; i++ {
			batch = append(batch, models.Game{TeamID: red.ID, OpponentID: girls.ID, PlayedOn: day.AddDate(0, 0, 7*i), GoalsFor: i, GoalsAgainst: 1})
		}
		require.NoError(t, games.CreateBatch(ctx, batch))

		got, err := games.GamesForTeams(ctx, []string{red.ID, girls.ID})
		require.NoError(t, err)
		require.Len(t, got[red.ID], 3)
		assert.Empty(t, got[girls.ID])
		for i, g := range got[red.ID] {
			assert.Equal(t, day.AddDate(0, 0, 7*i).Format("2006-01-02"), g.PlayedOn.Format("2006-01-02"), fmt.Sprint(i))
		}
	})
}
