package search

import (
	"context"

	"github.com/rs/zerolog/log"

	"journal/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	index    Index
	fallback Searcher
}

// NewService creates a search service. index may be nil if Meilisearch is not configured.
func NewService(index Index, fallback Searcher) *Service {
	return &Service{index: index, fallback: fallback}
}

// Search tries the index if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	q = q.normalized()

	if s.index != nil && s.index.Healthy() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
		}
		log.Warn().Err(err).Msg("search: meilisearch error, falling back to pgfts")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}, nil
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}, nil
}

// IndexEntry indexes an entry (fire-and-forget to Meilisearch).
func (s *Service) IndexEntry(entry store.JournalEntry) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	record := RecordFromEntry(entry)
	go func() {
		if err := s.index.IndexEntries([]EntryRecord{record}); err != nil {
			log.Warn().Err(err).Str("entry", record.ID).Msg("search: index entry")
		}
	}()
}

// DeleteEntry removes an entry from the search index (fire-and-forget).
func (s *Service) DeleteEntry(id string) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	go func() {
		if err := s.index.DeleteEntry(id); err != nil {
			log.Warn().Err(err).Str("entry", id).Msg("search: delete entry")
		}
	}()
}

// EntryLister is the slice of the store needed for a full reindex.
type EntryLister interface {
	ListAllEntries(ctx context.Context) ([]store.JournalEntry, error)
}

// Reindex pushes every stored entry to the index and returns how many were sent.
func (s *Service) Reindex(ctx context.Context, entries EntryLister) (int, error) {
	if s.index == nil || !s.index.Healthy() {
		return 0, ErrIndexUnavailable
	}
	all, err := entries.ListAllEntries(ctx)
	if err != nil {
		return 0, err
	}
	records := make([]EntryRecord, 0, len(all))
	for _, entry := range all {
		records = append(records, RecordFromEntry(entry))
	}
	if len(records) == 0 {
		return 0, nil
	}
	if err := s.index.IndexEntries(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Healthy reports whether the primary index is usable.
func (s *Service) Healthy() bool {
	return s.index != nil && s.index.Healthy()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
