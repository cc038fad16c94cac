package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	s := New(t.TempDir(), opts...)
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestWriteRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "a1", "u1", "profile", "Name: Emma"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Read(ctx, "a1", "u1", "profile")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Name: Emma" {
		t.Errorf("Read = %q", got)
	}

	// Overwrite replaces.
	if err := s.Write(ctx, "a1", "u1", "profile", "Name: Emma. Age: 30"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Read(ctx, "a1", "u1", "profile")
	if got != "Name: Emma. Age: 30" {
		t.Errorf("Read after overwrite = %q", got)
	}
}

func TestReadMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Read(context.Background(), "a1", "u1", "profile")
	if err != nil {
		t.Fatalf("missing artifact errored: %v", err)
	}
	if got != "" {
		t.Errorf("Read = %q, want empty", got)
	}
}

func TestAppend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "a1", "u1", "event", "first entry\n"); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "a1", "u1", "event", "second entry\n"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Read(ctx, "a1", "u1", "event")
	if err != nil {
		t.Fatal(err)
	}
	if got != "first entry\n\nsecond entry\n" {
		t.Errorf("Read = %q", got)
	}
}

func TestAppendConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Append(ctx, "a1", "u1", "event", "entry"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Read(ctx, "a1", "u1", "event")
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(got, "entry"); n != 10 {
		t.Errorf("appends lost: %d of 10 entries survive", n)
	}
}

func TestExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "a1", "u1", "profile")
	if err != nil || ok {
		t.Errorf("Exists before write = %v, %v", ok, err)
	}
	if err := s.Write(ctx, "a1", "u1", "profile", "content"); err != nil {
		t.Fatal(err)
	}
	ok, err = s.Exists(ctx, "a1", "u1", "profile")
	if err != nil || !ok {
		t.Errorf("Exists after write = %v, %v", ok, err)
	}
	// An empty file does not count as existing content.
	if err := s.Write(ctx, "a1", "u1", "reminder", ""); err != nil {
		t.Fatal(err)
	}
	ok, _ = s.Exists(ctx, "a1", "u1", "reminder")
	if ok {
		t.Error("empty artifact reported as existing")
	}
}

func TestListCategories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, cat := range []string{"profile", "event", "activity"} {
		if err := s.Write(ctx, "a1", "u1", cat, "content of "+cat); err != nil {
			t.Fatal(err)
		}
	}
	cats, err := s.ListCategories(ctx, "a1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"activity", "event", "profile"}
	if len(cats) != len(want) {
		t.Fatalf("ListCategories = %v", cats)
	}
	for i := range want {
		if cats[i] != want[i] {
			t.Fatalf("ListCategories = %v, want %v", cats, want)
		}
	}
}

func TestListCategoriesCustomFilename(t *testing.T) {
	s := newTestStore(t, WithFilenames(map[string]string{"profile": "who.md"}))
	ctx := context.Background()

	if err := s.Write(ctx, "a1", "u1", "profile", "content"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(s.Base(), "a1", "u1", "who.md")); err != nil {
		t.Fatalf("custom filename not used: %v", err)
	}
	cats, err := s.ListCategories(ctx, "a1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 1 || cats[0] != "profile" {
		t.Errorf("ListCategories = %v, want [profile]", cats)
	}
}

func TestListUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if users, err := s.ListUsers(ctx, "a1"); err != nil || len(users) != 0 {
		t.Errorf("ListUsers on empty agent = %v, %v", users, err)
	}
	for _, u := range []string{"u2", "u1"} {
		if err := s.Write(ctx, "a1", u, "profile", "content"); err != nil {
			t.Fatal(err)
		}
	}
	users, err := s.ListUsers(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Errorf("ListUsers = %v, want [u1 u2]", users)
	}
}

func TestClearCategory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "a1", "u1", "profile", "content"); err != nil {
		t.Fatal(err)
	}
	n, err := s.Clear(ctx, "a1", "u1", "profile")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Clear = %d, want 1", n)
	}
	got, _ := s.Read(ctx, "a1", "u1", "profile")
	if got != "" {
		t.Errorf("content survives clear: %q", got)
	}
	// Clearing again is a no-op.
	n, err = s.Clear(ctx, "a1", "u1", "profile")
	if err != nil || n != 0 {
		t.Errorf("second Clear = %d, %v", n, err)
	}
}

func TestClearAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, cat := range []string{"profile", "event", "activity"} {
		if err := s.Write(ctx, "a1", "u1", cat, "content"); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.Clear(ctx, "a1", "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Clear = %d, want 3", n)
	}
	if cats, _ := s.ListCategories(ctx, "a1", "u1"); len(cats) != 0 {
		t.Errorf("categories survive clear: %v", cats)
	}
}

func TestSanitizedIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// IDs with separators and parent references must stay under base.
	if err := s.Write(ctx, "../evil", "u/../1", "profile", "content"); err != nil {
		t.Fatal(err)
	}
	p := s.ArtifactPath("../evil", "u/../1", "profile")
	rel, err := filepath.Rel(s.Base(), p)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(rel, "..") {
		t.Errorf("artifact path escaped base: %s", p)
	}
	got, err := s.Read(ctx, "../evil", "u/../1", "profile")
	if err != nil || got != "content" {
		t.Errorf("Read via sanitized IDs = %q, %v", got, err)
	}
}

func TestSaveEmbeddingNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveEmbedding(context.Background(), "a1", "u1", "profile", []float32{1, 2}); err != nil {
		t.Errorf("SaveEmbedding = %v", err)
	}
}

func TestTmpFilesInvisible(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, "a1", "u1", "profile", "content"); err != nil {
		t.Fatal(err)
	}
	// A leftover temp file from a crashed write is never listed.
	tmp := filepath.Join(s.Base(), "a1", "u1", "event.md.tmp")
	if err := os.WriteFile(tmp, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	cats, err := s.ListCategories(ctx, "a1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range cats {
		if strings.Contains(c, "tmp") || c == "event" {
			t.Errorf("temp file leaked into categories: %v", cats)
		}
	}
}
