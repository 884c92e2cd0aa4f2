// Package retriever indexes dataset columns and renders the compact column
// context that grounds model answers about uploaded tables.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"tabula/internal/dataset"
	"tabula/internal/utils"
)

// ServiceConfig holds retrieval configuration.
type ServiceConfig struct {
	TopK                int     // cell documents fetched per query (default: 5)
	MinSimilarity       float32 // similarity floor, 0 keeps everything
	MaxContextTokens    int     // compressor budget, 0 unbounded
	CellLengthThreshold int     // max rendered cell characters (default: 40)
	MaxDatasetCells     int     // max rendered values per column (default: 5)
}

// Service ties the loader, store and compressor into the two operations the
// agent needs: index a parsed table, and render column context for a query.
type Service struct {
	config     ServiceConfig
	loader     *ColumnLoader
	store      *VectorStore
	compressor *ColumnCompressor
	logger     *utils.Logger
}

// NewService creates a retrieval service on top of store.
func NewService(config ServiceConfig, store *VectorStore) *Service {
	if config.TopK == 0 {
		config.TopK = 5
	}
	if config.CellLengthThreshold == 0 {
		config.CellLengthThreshold = 40
	}
	if config.MaxDatasetCells == 0 {
		config.MaxDatasetCells = 5
	}
	return &Service{
		config:     config,
		loader:     NewColumnLoader(),
		store:      store,
		compressor: NewColumnCompressor(config.MaxContextTokens),
		logger:     utils.NewComponentLogger("retriever"),
	}
}

// IndexTable replaces the index entries for fileName with documents built
// from table and reports how many were written.
func (s *Service) IndexTable(ctx context.Context, fileName string, table *dataset.Table) (int, error) {
	docs := s.loader.Load(fileName, table)
	if err := s.store.DeleteFile(ctx, fileName); err != nil {
		return 0, fmt.Errorf("reindex %s: %w", fileName, err)
	}
	if err := s.store.Add(ctx, docs); err != nil {
		return 0, err
	}
	s.logger.Info("Indexed %d cell documents from %s", len(docs), fileName)
	return len(docs), nil
}

// ColumnContext retrieves columns relevant to query and renders them. A
// blank query or an empty index renders as an empty string.
func (s *Service) ColumnContext(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil
	}
	scored, err := s.store.Query(ctx, query, s.config.TopK, s.config.MinSimilarity)
	if err != nil {
		return "", err
	}
	docs := make([]Document, len(scored))
	for i, hit := range scored {
		docs[i] = hit.Document
	}
	compressed := s.compressor.Compress(docs)
	return FormatColumns(compressed, s.config.CellLengthThreshold, s.config.MaxDatasetCells), nil
}
