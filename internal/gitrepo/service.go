// Package gitrepo keeps the revision history of each journal entry in its
// own git repository.
package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"journal/api/internal/store"
)

const (
	entryFile  = "entry.md"
	mainBranch = "main"
)

var (
	ErrInvalidID        = errors.New("invalid entry id")
	ErrRevisionNotFound = errors.New("revision not found")
)

// Content is the versioned part of an entry.
type Content struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Revision struct {
	store.CommitInfo
	Content
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits the entry's current title and content, creating the
// repository on first use. Saving unchanged content returns the head commit.
func (s *Service) Record(entryID string, content Content, author, message string) (store.CommitInfo, error) {
	path, err := s.repoPath(entryID)
	if err != nil {
		return store.CommitInfo{}, err
	}
	lock := s.entryLock(entryID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := openOrInit(path)
	if err != nil {
		return store.CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	if err := os.WriteFile(filepath.Join(path, entryFile), encodeEntry(content), 0o644); err != nil {
		return store.CommitInfo{}, fmt.Errorf("write %s: %w", entryFile, err)
	}
	if _, err := worktree.Add(entryFile); err != nil {
		return store.CommitInfo{}, fmt.Errorf("git add entry: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@journal.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		head, herr := repo.Head()
		if herr != nil {
			return store.CommitInfo{}, fmt.Errorf("resolve head: %w", herr)
		}
		hash = head.Hash()
	} else if err != nil {
		return store.CommitInfo{}, fmt.Errorf("commit entry: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists commits newest first. An entry without a repository has an
// empty history.
func (s *Service) History(entryID string, limit int) ([]store.CommitInfo, error) {
	path, err := s.repoPath(entryID)
	if err != nil {
		return nil, err
	}
	lock := s.entryLock(entryID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []store.CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []store.CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Revision reads the entry as it was at hash (full or abbreviated).
func (s *Service) Revision(entryID, hash string) (Revision, error) {
	path, err := s.repoPath(entryID)
	if err != nil {
		return Revision{}, err
	}
	if !isHex(hash) {
		return Revision{}, ErrRevisionNotFound
	}
	lock := s.entryLock(entryID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Revision{}, ErrRevisionNotFound
	}
	if err != nil {
		return Revision{}, fmt.Errorf("open repo: %w", err)
	}

	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return Revision{}, ErrRevisionNotFound
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return Revision{}, ErrRevisionNotFound
	}

	file, err := commitObj.File(entryFile)
	if err != nil {
		return Revision{}, fmt.Errorf("load %s from commit: %w", entryFile, err)
	}
	raw, err := file.Contents()
	if err != nil {
		return Revision{}, fmt.Errorf("read %s: %w", entryFile, err)
	}
	return Revision{CommitInfo: toCommitInfo(commitObj), Content: decodeEntry(raw)}, nil
}

// Remove deletes the entry's repository. Missing repositories are ignored.
func (s *Service) Remove(entryID string) error {
	path, err := s.repoPath(entryID)
	if err != nil {
		return err
	}
	lock := s.entryLock(entryID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	s.lockMu.Lock()
	delete(s.locks, entryID)
	s.lockMu.Unlock()
	return nil
}

func (s *Service) repoPath(entryID string) (string, error) {
	if entryID == "" || entryID == "." || entryID == ".." || strings.ContainsAny(entryID, `/\`) {
		return "", ErrInvalidID
	}
	return filepath.Join(s.baseDir, entryID), nil
}

func (s *Service) entryLock(entryID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[entryID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[entryID] = lock
	return lock
}

func openOrInit(path string) (*git.Repository, error) {
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(mainBranch)},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

// encodeEntry renders an entry as markdown with the title as a heading.
func encodeEntry(c Content) []byte {
	title := strings.Join(strings.Fields(c.Title), " ")
	return []byte("# " + title + "\n\n" + c.Content + "\n")
}

func decodeEntry(raw string) Content {
	head, body, _ := strings.Cut(raw, "\n")
	return Content{
		Title:   strings.TrimPrefix(head, "# "),
		Content: strings.TrimSuffix(strings.TrimPrefix(body, "\n"), "\n"),
	}
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func isHex(s string) bool {
	if len(s) < 4 || len(s) > 40 {
		return false
	}
	for _, r := range s {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') && !(r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}
