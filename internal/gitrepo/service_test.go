package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestEntryRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first, err := svc.Record("entry-1", Content{Title: "Day 1", Content: "Hello"}, "Sam", "Create entry")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if first.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "entry-1", entryFile)); err != nil {
		t.Fatalf("entry file missing: %v", err)
	}

	second, err := svc.Record("entry-1", Content{Title: "Day 1", Content: "Hello again\n\nSecond paragraph"}, "Sam", "Update entry")
	if err != nil {
		t.Fatalf("Record() update error = %v", err)
	}
	if second.Hash == first.Hash {
		t.Fatal("expected a new commit for changed content")
	}

	history, err := svc.History("entry-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Hash != second.Hash || history[0].Message != "Update entry" {
		t.Fatalf("history[0] = %+v, want newest commit first", history[0])
	}
	if history[1].Author != "Sam" {
		t.Fatalf("author = %q, want Sam", history[1].Author)
	}

	rev, err := svc.Revision("entry-1", first.Hash)
	if err != nil {
		t.Fatalf("Revision() error = %v", err)
	}
	if rev.Title != "Day 1" || rev.Content.Content != "Hello" {
		t.Fatalf("revision content = %+v", rev.Content)
	}

	rev, err = svc.Revision("entry-1", second.Hash)
	if err != nil {
		t.Fatalf("Revision() error = %v", err)
	}
	if rev.Content.Content != "Hello again\n\nSecond paragraph" {
		t.Fatalf("revision content = %q", rev.Content.Content)
	}

	if err := svc.Remove("entry-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "entry-1")); !os.IsNotExist(err) {
		t.Fatalf("repo should be removed, stat err = %v", err)
	}
	history, err = svc.History("entry-1", 0)
	if err != nil || len(history) != 0 {
		t.Fatalf("History() after remove = %v, %v", history, err)
	}
}

func TestRecordUnchangedContentReturnsHead(t *testing.T) {
	svc := New(t.TempDir())
	content := Content{Title: "Same", Content: "Nothing new"}

	first, err := svc.Record("entry-2", content, "Sam", "Create entry")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	again, err := svc.Record("entry-2", content, "Sam", "Update entry")
	if err != nil {
		t.Fatalf("Record() unchanged error = %v", err)
	}
	if again.Hash != first.Hash {
		t.Fatalf("hash = %s, want head %s", again.Hash, first.Hash)
	}

	history, _ := svc.History("entry-2", 0)
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := New(t.TempDir())
	for i := 0; i < 4; i++ {
		if _, err := svc.Record("entry-3", Content{Title: "T", Content: fmt.Sprintf("v%d", i)}, "Sam", fmt.Sprintf("v%d", i)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	history, err := svc.History("entry-3", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Message != "v3" {
		t.Fatalf("history = %+v", history)
	}
}

func TestHistoryWithoutRepoIsEmpty(t *testing.T) {
	history, err := New(t.TempDir()).History("never-saved", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Fatalf("history = %#v, want empty slice", history)
	}
}

func TestRevisionNotFound(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.Record("entry-4", Content{Title: "T", Content: "C"}, "Sam", "Create entry"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	for _, hash := range []string{"deadbeef", "not-a-hash", "../x"} {
		if _, err := svc.Revision("entry-4", hash); !errors.Is(err, ErrRevisionNotFound) {
			t.Errorf("Revision(%q) error = %v, want ErrRevisionNotFound", hash, err)
		}
	}
	if _, err := svc.Revision("missing", "abcdef1"); !errors.Is(err, ErrRevisionNotFound) {
		t.Errorf("Revision on missing repo error = %v", err)
	}
}

func TestRejectsPathTraversal(t *testing.T) {
	svc := New(t.TempDir())
	for _, id := range []string{"", "..", "../etc", `a\b`} {
		if _, err := svc.Record(id, Content{}, "Sam", "x"); !errors.Is(err, ErrInvalidID) {
			t.Errorf("Record(%q) error = %v, want ErrInvalidID", id, err)
		}
	}
}

func TestEntryEncodingRoundTrip(t *testing.T) {
	c := Content{Title: "Multi\nline  title", Content: "# Not a title\n\nBody"}
	got := decodeEntry(string(encodeEntry(c)))
	if got.Title != "Multi line title" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Content != c.Content {
		t.Errorf("content = %q", got.Content)
	}
}

func TestConcurrentRecordsSerializePerEntry(t *testing.T) {
	svc := New(t.TempDir())
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Record("entry-5", Content{Title: "T", Content: fmt.Sprintf("v%d", i)}, "Sam", "update")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Record() error = %v", err)
		}
	}
	history, err := svc.History("entry-5", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) == 0 || len(history) > 8 {
		t.Fatalf("len(history) = %d", len(history))
	}
}

func TestSanitizeEmail(t *testing.T) {
	cases := map[string]string{
		"Sam Lee":  "Sam.Lee",
		"a_b-c":    "a.b.c",
		"!!!":      "user",
		"élodie42": "lodie42",
	}
	for in, want := range cases {
		if got := sanitizeEmail(in); got != want {
			t.Errorf("sanitizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
