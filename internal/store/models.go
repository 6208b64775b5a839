package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that address a single row.
var ErrNotFound = errors.New("not found")

type User struct {
	ID                    string     `json:"id"`
	DisplayName           string     `json:"displayName"`
	Email                 string     `json:"email"`
	PasswordHash          string     `json:"-"`
	IsEmailVerified       bool       `json:"isEmailVerified"`
	VerificationToken     string     `json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

type JournalEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EntryUpdate carries a partial update; nil fields are left unchanged.
type EntryUpdate struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

func (u EntryUpdate) Empty() bool {
	return u.Title == nil && u.Content == nil
}

type AIAnalysis struct {
	ID          string    `json:"id"`
	EntryID     string    `json:"entryId"`
	UserID      string    `json:"userId"`
	Summary     string    `json:"summary"`
	Emotions    []string  `json:"emotions"`
	Suggestions []string  `json:"suggestions"`
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"createdAt"`
}

type AnalysisInput struct {
	EntryID     string
	Summary     string
	Emotions    []string
	Suggestions []string
	Model       string
}

// EntryWithAnalysis is an entry joined with its analyses, newest first.
type EntryWithAnalysis struct {
	JournalEntry
	AIAnalyses []AIAnalysis `json:"aiAnalyses"`
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}
