package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/docshare/backend/pkg/circuitbreaker"
	"github.com/docshare/backend/pkg/logger"
	"github.com/docshare/backend/pkg/retry"
)

// Client maintains the duplicate graph: one node per document, one
// DUPLICATE_OF edge per human-confirmed duplicate pair. The graph answers
// "what else is a copy of this" across transitive duplicate chains, which
// the flat match table cannot.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type Duplicate struct {
	DocumentID string
	OwnerID    string
	Score      float64
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

// UpsertDocument merges a document node. Called on submission so duplicate
// edges always have both endpoints to attach to.
func (c *Client) UpsertDocument(ctx context.Context, documentID, ownerID string) error {
	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MERGE (d:Document {id: $id})
			SET d.owner_id = $owner_id,
			    d.updated_at = timestamp()
		`

		_, err := session.Run(ctx, query, map[string]interface{}{
			"id":       documentID,
			"owner_id": ownerID,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert document node: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Debug("Document node upserted", zap.String("document_id", documentID))
	return nil
}

// RecordDuplicate merges a DUPLICATE_OF edge between two documents. Both
// endpoints are merged first so a missing node never drops the edge.
func (c *Client) RecordDuplicate(ctx context.Context, sourceDocumentID, targetDocumentID string, score float64) error {
	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MERGE (s:Document {id: $source_id})
			MERGE (t:Document {id: $target_id})
			MERGE (s)-[r:DUPLICATE_OF]->(t)
			SET r.score = $score,
			    r.resolved_at = timestamp()
		`

		_, err := session.Run(ctx, query, map[string]interface{}{
			"source_id": sourceDocumentID,
			"target_id": targetDocumentID,
			"score":     score,
		})
		if err != nil {
			return fmt.Errorf("failed to record duplicate relation: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("Duplicate relation recorded",
		zap.String("source", sourceDocumentID),
		zap.String("target", targetDocumentID),
		zap.Float64("score", score),
	)

	return nil
}

// GetDuplicates returns every document transitively connected to the given
// one through DUPLICATE_OF edges, in either direction.
func (c *Client) GetDuplicates(ctx context.Context, documentID string) ([]Duplicate, error) {
	var duplicates []Duplicate

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MATCH (d:Document {id: $id})-[:DUPLICATE_OF*1..5]-(other:Document)
			WHERE other.id <> $id
			WITH DISTINCT other
			OPTIONAL MATCH (other)-[r:DUPLICATE_OF]-(:Document {id: $id})
			RETURN other.id, other.owner_id, r.score
			ORDER BY other.id
		`

		result, err := session.Run(ctx, query, map[string]interface{}{
			"id": documentID,
		})
		if err != nil {
			return fmt.Errorf("failed to query duplicates: %w", err)
		}

		duplicates = duplicates[:0]
		for result.Next(ctx) {
			record := result.Record()

			id, _ := record.Get("other.id")
			owner, _ := record.Get("other.owner_id")
			score, _ := record.Get("r.score")

			dup := Duplicate{
				DocumentID: id.(string),
			}
			if s, ok := owner.(string); ok {
				dup.OwnerID = s
			}
			if f, ok := score.(float64); ok {
				dup.Score = f
			}
			duplicates = append(duplicates, dup)
		}

		if err = result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("Duplicate lookup completed",
		zap.String("document_id", documentID),
		zap.Int("results", len(duplicates)),
	)

	return duplicates, nil
}
