package search

import (
	"context"
	"time"

	"journal/api/internal/store"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	CreatedAt time.Time `json:"createdAt"`
}

// Query describes a search request. UserID is mandatory; every backend
// filters on it.
type Query struct {
	UserID string
	Text   string
	Limit  int
	Offset int
}

func (q Query) normalized() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Index is a Searcher that also accepts writes.
type Index interface {
	Searcher
	IndexEntries(records []EntryRecord) error
	DeleteEntry(id string) error
}

// EntryRecord is the data we index for a journal entry.
type EntryRecord struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"createdAt"`
}

func RecordFromEntry(e store.JournalEntry) EntryRecord {
	return EntryRecord{
		ID:        e.ID,
		UserID:    e.UserID,
		Title:     e.Title,
		Content:   e.Content,
		CreatedAt: e.CreatedAt.Unix(),
	}
}
