package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/docshare/backend/pkg/logger"
)

// Client indexes one embedding per document and serves nearest-neighbour
// candidate retrieval for the similarity detector.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

type DocumentVector struct {
	DocumentID  string
	OwnerID     string
	ContentHash string
	Embedding   []float32
	Timestamp   time.Time
}

type Candidate struct {
	DocumentID  string
	OwnerID     string
	ContentHash string
	Score       float32
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(
		context.Background(),
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Document embeddings for duplicate candidate retrieval",
		Fields: []*entity.Field{
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "owner_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "content_hash",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "timestamp",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.IP, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}

	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Upsert(ctx context.Context, vec DocumentVector) error {
	// Resubmission overwrites the previous vector for the document.
	expr := fmt.Sprintf(`document_id == "%s"`, vec.DocumentID)
	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		logger.Debug("No previous vector to delete", zap.String("document_id", vec.DocumentID))
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("document_id", []string{vec.DocumentID}),
		entity.NewColumnFloatVector("embedding", m.vectorDim, [][]float32{vec.Embedding}),
		entity.NewColumnVarChar("owner_id", []string{vec.OwnerID}),
		entity.NewColumnVarChar("content_hash", []string{vec.ContentHash}),
		entity.NewColumnInt64("timestamp", []int64{vec.Timestamp.Unix()}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document vector: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Debug("Document vector indexed", zap.String("document_id", vec.DocumentID))

	return nil
}

// SearchCandidates returns the topK nearest documents, excluding the source
// document itself.
func (m *Client) SearchCandidates(ctx context.Context, queryEmbedding []float32, topK int, excludeDocumentID string) ([]Candidate, error) {
	expr := ""
	if excludeDocumentID != "" {
		expr = fmt.Sprintf(`document_id != "%s"`, excludeDocumentID)
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"document_id", "owner_id", "content_hash"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.IP,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search candidates: %w", err)
	}

	candidates := make([]Candidate, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			docIDCol := sr.Fields.GetColumn("document_id")
			ownerCol := sr.Fields.GetColumn("owner_id")
			hashCol := sr.Fields.GetColumn("content_hash")

			docID, _ := docIDCol.Get(i)
			owner, _ := ownerCol.Get(i)
			hash, _ := hashCol.Get(i)

			candidates = append(candidates, Candidate{
				DocumentID:  docID.(string),
				OwnerID:     owner.(string),
				ContentHash: hash.(string),
				Score:       sr.Scores[i],
			})
		}
	}

	logger.Debug("Candidate search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(candidates)),
	)

	return candidates, nil
}
