package retriever

import (
	"context"
	"fmt"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"

	"tabula/internal/utils"
)

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	PersistPath string // directory for the persisted index, empty keeps it in memory
	Collection  string // collection name, defaults to "columns"
}

// ScoredDocument is a retrieved document with its cosine similarity.
type ScoredDocument struct {
	Document
	Similarity float32
}

// VectorStore indexes column documents in chromem and answers text queries.
type VectorStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *utils.Logger
}

// NewVectorStore opens (or creates) the column index.
func NewVectorStore(config StoreConfig, embedder Embedder) (*VectorStore, error) {
	if config.Collection == "" {
		config.Collection = "columns"
	}

	var db *chromem.DB
	var err error
	if config.PersistPath != "" {
		db, err = chromem.NewPersistentDB(filepath.Join(config.PersistPath, "index"), false)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(config.Collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &VectorStore{
		db:         db,
		collection: collection,
		logger:     utils.NewComponentLogger("vector-store"),
	}, nil
}

// Add indexes documents. Existing ids are not overwritten, so callers
// reindexing a file should DeleteFile first.
func (s *VectorStore) Add(ctx context.Context, docs []Document) error {
	for _, doc := range docs {
		err := s.collection.AddDocument(ctx, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Meta.asMap(),
		})
		if err != nil {
			return fmt.Errorf("add document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// DeleteFile drops every document indexed for fileName.
func (s *VectorStore) DeleteFile(ctx context.Context, fileName string) error {
	if fileName == "" {
		return nil
	}
	return s.collection.Delete(ctx, map[string]string{"file_name": fileName}, nil)
}

// Query returns up to topK documents similar to the query text, best first,
// dropping anything under minSimilarity. An empty index returns no results.
func (s *VectorStore) Query(ctx context.Context, query string, topK int, minSimilarity float32) ([]ScoredDocument, error) {
	if topK <= 0 {
		topK = 5
	}
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := s.collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	scored := make([]ScoredDocument, 0, len(results))
	for _, result := range results {
		if result.Similarity < minSimilarity {
			continue
		}
		scored = append(scored, ScoredDocument{
			Document: Document{
				ID:      result.ID,
				Content: result.Content,
				Meta:    metaFromMap(result.Metadata),
			},
			Similarity: result.Similarity,
		})
	}
	return scored, nil
}

// Count returns how many documents are indexed.
func (s *VectorStore) Count() int {
	return s.collection.Count()
}
