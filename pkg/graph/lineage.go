package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

const upsertMergeCypher = `
	UNWIND $edges AS e
	MERGE (d:Team {id: e.deprecated_team_id})
	MERGE (c:Team {id: e.canonical_team_id})
	SET d.deprecated = true
	MERGE (d)-[r:MERGED_INTO]->(c)
	SET r.created_by = e.created_by,
	    r.reason = e.reason,
	    r.confidence = e.confidence,
	    r.created_at = e.created_at
`

// Lineage walks MERGED_INTO edges backwards: every team that was ever merged
// into the given team, directly or through a chain.
const lineageCypher = `
	MATCH (d:Team)-[:MERGED_INTO*1..]->(c:Team {id: $id})
	RETURN DISTINCT d.id AS id
	ORDER BY id
`

// LineageService mirrors merge edges into the graph. The Postgres merge table
// stays the source of truth; the graph keeps history, including edges later
// re-pointed to a new root.
type LineageService struct {
	client *Client
	logger ectologger.Logger
}

// NewLineageService creates a new lineage service
func NewLineageService(client *Client, logger ectologger.Logger) *LineageService {
	return &LineageService{
		client: client,
		logger: logger,
	}
}

func edgeParams(edges []models.MergeEdge) []map[string]any {
	out := make([]map[string]any, len(edges))
	for i, e := range edges {
		var confidence any
		if e.Confidence != nil {
			confidence = *e.Confidence
		}
		out[i] = map[string]any{
			"deprecated_team_id": e.DeprecatedTeamID,
			"canonical_team_id":  e.CanonicalTeamID,
			"created_by":         e.CreatedBy,
			"reason":             e.Reason,
			"confidence":         confidence,
			"created_at":         e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return out
}

// RecordMerges upserts MERGED_INTO relationships
func (s *LineageService) RecordMerges(ctx context.Context, edges []models.MergeEdge) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageService.RecordMerges")
	defer span.End()

	if len(edges) == 0 {
		return nil
	}

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, upsertMergeCypher, map[string]any{"edges": edgeParams(edges)})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("edges", len(edges)).Error("Failed to record merge lineage")
		return fmt.Errorf("failed to record merge lineage: %w", err)
	}

	s.logger.WithContext(ctx).WithField("edges", len(edges)).Debug("Recorded merge lineage")
	return nil
}

// Lineage returns the ids of every team merged into teamID
func (s *LineageService) Lineage(ctx context.Context, teamID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageService.Lineage")
	defer span.End()

	res, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, lineageCypher, map[string]any{"id": teamID})
		if err != nil {
			return nil, err
		}

		ids := []string{}
		for result.Next(ctx) {
			if v, ok := result.Record().Get("id"); ok {
				if id, ok := v.(string); ok {
					ids = append(ids, id)
				}
			}
		}
		return ids, result.Err()
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("team_id", teamID).Error("Failed to read merge lineage")
		return nil, fmt.Errorf("failed to read merge lineage: %w", err)
	}

	return res.([]string), nil
}
