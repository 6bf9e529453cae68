// Package milvus implements the chunk store on a Milvus collection.
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/docsense/backend/internal/chunkstore"
	"github.com/docsense/backend/pkg/logger"
)

const maxStoredTextLen = 8192

// Store adapts a Milvus collection to the chunkstore.Store interface.
// Queries run concurrently under a read lock; Add and Clear take the write
// lock so a collection rebuild never overlaps an in-flight search.
type Store struct {
	client         client.Client
	embedder       chunkstore.Embedder
	collectionName string
	vectorDim      int

	mu sync.RWMutex
}

func New(ctx context.Context, endpoint, collectionName string, vectorDim int, embedder chunkstore.Embedder) (*Store, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	s := &Store{
		client:         c,
		embedder:       embedder,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}

	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	logger.Info("Milvus chunk store initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return s, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) ensureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return s.client.LoadCollection(ctx, s.collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: s.collectionName,
		Description:    "Document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "256"},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.vectorDim),
				},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": fmt.Sprintf("%d", maxStoredTextLen)},
			},
			{
				Name:       "source",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:     "sequence_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "is_structured",
				DataType: entity.FieldTypeBool,
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, _ := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err := s.client.CreateIndex(ctx, s.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := s.client.LoadCollection(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", s.collectionName))
	return nil
}

func (s *Store) Add(ctx context.Context, records []chunkstore.Record) error {
	if len(records) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	texts := make([]string, len(records))
	sources := make([]string, len(records))
	sequences := make([]int64, len(records))
	structured := make([]bool, len(records))

	for i, r := range records {
		vec, err := s.embedder.GenerateEmbedding(ctx, r.Text)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %s: %w", r.ChunkID(), err)
		}
		text := r.Text
		if len(text) > maxStoredTextLen {
			text = text[:maxStoredTextLen]
		}
		chunkIDs[i] = r.ChunkID()
		embeddings[i] = vec
		texts[i] = text
		sources[i] = r.Source
		sequences[i] = int64(r.SequenceIndex)
		structured[i] = r.IsStructured
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.client.Insert(
		ctx,
		s.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", s.vectorDim, embeddings),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("source", sources),
		entity.NewColumnInt64("sequence_index", sequences),
		entity.NewColumnBool("is_structured", structured),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := s.client.Flush(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks inserted into vector store", zap.Int("count", len(records)))
	return nil
}

func (s *Store) Query(ctx context.Context, text string, k int) ([]chunkstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVec, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := s.client.Search(
		ctx,
		s.collectionName,
		[]string{},
		"",
		[]string{"chunk_id", "text", "source", "sequence_index", "is_structured"},
		[]entity.Vector{entity.FloatVector(queryVec)},
		"embedding",
		entity.L2,
		k,
		sp,
	)
	if err != nil {
		// Search failures here are index-level faults; the retriever decides
		// whether to retry with a reduced fetch size.
		return nil, fmt.Errorf("%w: %v", chunkstore.ErrIndexFault, err)
	}

	matches := make([]chunkstore.Match, 0, k)
	for _, sr := range searchResult {
		idCol := sr.Fields.GetColumn("chunk_id")
		textCol := sr.Fields.GetColumn("text")
		sourceCol := sr.Fields.GetColumn("source")
		seqCol := sr.Fields.GetColumn("sequence_index")
		structCol := sr.Fields.GetColumn("is_structured")

		for i := 0; i < sr.ResultCount; i++ {
			chunkID, _ := idCol.Get(i)
			chunkText, _ := textCol.Get(i)
			source, _ := sourceCol.Get(i)
			seq, _ := seqCol.Get(i)
			isStructured, _ := structCol.Get(i)

			matches = append(matches, chunkstore.Match{
				ChunkID:       chunkID.(string),
				Text:          chunkText.(string),
				Source:        source.(string),
				SequenceIndex: int(seq.(int64)),
				IsStructured:  isStructured.(bool),
				Distance:      float64(sr.Scores[i]),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("k", k),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, err := s.client.GetCollectionStatistics(ctx, s.collectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	count, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("unexpected row count %q: %w", stats["row_count"], err)
	}
	return count, nil
}

// Clear drops and recreates the collection. Queries block until the rebuild
// finishes.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.DropCollection(ctx, s.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if err := s.ensureCollection(ctx); err != nil {
		return fmt.Errorf("failed to rebuild collection: %w", err)
	}

	logger.Info("Chunk store cleared", zap.String("collection", s.collectionName))
	return nil
}
