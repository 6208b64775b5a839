package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJoinAnalysesKeepsEntryOrderAndEmptyLists(t *testing.T) {
	now := time.Now()
	entries := []JournalEntry{
		{ID: "e2", Title: "Day 2", CreatedAt: now},
		{ID: "e1", Title: "Day 1", CreatedAt: now.Add(-24 * time.Hour)},
	}
	byEntry := map[string][]AIAnalysis{
		"e1": {{ID: "a1", EntryID: "e1", Summary: "calm"}},
		"ex": {{ID: "a9", EntryID: "ex"}},
	}

	joined := JoinAnalyses(entries, byEntry)

	assert.Len(t, joined, 2)
	assert.Equal(t, "e2", joined[0].ID)
	assert.NotNil(t, joined[0].AIAnalyses)
	assert.Empty(t, joined[0].AIAnalyses)
	assert.Equal(t, "e1", joined[1].ID)
	assert.Equal(t, "calm", joined[1].AIAnalyses[0].Summary)
}

func TestEntryUpdateEmpty(t *testing.T) {
	title := "New"
	assert.True(t, EntryUpdate{}.Empty())
	assert.False(t, EntryUpdate{Title: &title}.Empty())
}

func TestHelpers(t *testing.T) {
	value := "x"
	assert.Nil(t, nullableString(nil))
	assert.Equal(t, "x", nullableString(&value))
	assert.Equal(t, []string{}, nonNilStrings(nil))
	assert.Equal(t, []string{"a"}, nonNilStrings([]string{"a"}))
}
