package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func writeFile(t *testing.T, s FileStore, path, data string) {
	t.Helper()
	w, err := s.Write(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, s FileStore, path string) string {
	t.Helper()
	r, err := s.Read(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(got)
}

func TestWriteAndRead(t *testing.T) {
	s := newTestLocal(t)
	writeFile(t, s, "a/b/file.txt", "hello, storage")
	if got := readFile(t, s, "a/b/file.txt"); got != "hello, storage" {
		t.Fatalf("got %q", got)
	}
}

func TestReadNotExist(t *testing.T) {
	s := newTestLocal(t)
	_, err := s.Read(context.Background(), "no-such-file")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestWriteVisibleOnlyAfterClose(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	writeFile(t, s, "sess/snapshot.bin", "old")

	w, err := s.Write(ctx, "sess/snapshot.bin")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "new content")

	if got := readFile(t, s, "sess/snapshot.bin"); got != "old" {
		t.Fatalf("before Close: got %q, want previous content", got)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, s, "sess/snapshot.bin"); got != "new content" {
		t.Fatalf("after Close: got %q", got)
	}

	entries, err := os.ReadDir(filepath.Join(s.Root(), "sess"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestWriteFailureKeepsPrevious(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	writeFile(t, s, "f", "old")

	w, err := s.Write(ctx, "f")
	if err != nil {
		t.Fatal(err)
	}
	lw := w.(*localWriter)
	lw.err = errors.New("disk full")
	if err := w.Close(); err == nil {
		t.Fatal("expected Close to report the write error")
	}
	if got := readFile(t, s, "f"); got != "old" {
		t.Fatalf("got %q, want previous content", got)
	}
	if _, err := os.Stat(lw.f.Name()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file not removed: %v", err)
	}
}

func TestExists(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
	writeFile(t, s, "present", "")
	ok, err = s.Exists(ctx, "present")
	if err != nil || !ok {
		t.Fatalf("Exists(present) = %v, %v", ok, err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if err := s.Delete(ctx, "ghost"); err != nil {
		t.Fatal(err)
	}
	writeFile(t, s, "tmp", "x")
	if err := s.Delete(ctx, "tmp"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, "tmp"); ok {
		t.Fatal("file should be gone after delete")
	}
	if err := s.Delete(ctx, "tmp"); err != nil {
		t.Fatal(err)
	}
}

func TestRemoveAll(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	writeFile(t, s, "s1/snapshot.bin", "a")
	writeFile(t, s, "s1/nested/extra", "b")
	writeFile(t, s, "s2/snapshot.bin", "c")

	if err := s.RemoveAll(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "s1")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("s1 still present: %v", err)
	}
	if got := readFile(t, s, "s2/snapshot.bin"); got != "c" {
		t.Fatalf("sibling damaged: %q", got)
	}
	if err := s.RemoveAll(ctx, "s1"); err != nil {
		t.Fatalf("RemoveAll of missing dir: %v", err)
	}
}

func TestInvalidPaths(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	for _, p := range []string{"", ".", "../escape", "a/../../b", "/abs"} {
		t.Run(p, func(t *testing.T) {
			if err := s.RemoveAll(ctx, p); !errors.Is(err, ErrInvalidPath) {
				t.Errorf("RemoveAll(%q) = %v, want ErrInvalidPath", p, err)
			}
			if _, err := s.Write(ctx, p); !errors.Is(err, ErrInvalidPath) {
				t.Errorf("Write(%q) = %v, want ErrInvalidPath", p, err)
			}
		})
	}
	if _, err := os.Stat(s.Root()); err != nil {
		t.Fatalf("root removed: %v", err)
	}
}

func TestNewLocalCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	s, err := NewLocal(dir)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(s.Root())
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Fatal("expected directory")
	}
}
