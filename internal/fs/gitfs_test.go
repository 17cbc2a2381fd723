package fs

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/CageChen/watchfs/internal/vfs"
)

// setupTestRepo creates a temporary git repository with sample files for testing.
func setupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}

	git("init")
	git("config", "user.email", "test@test.com")
	git("config", "user.name", "Test")

	// Create files and directories
	docsDir := filepath.Join(dir, "docs")
	if err := os.MkdirAll(docsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# README\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(docsDir, "guide.md"), []byte("# Guide\n\nHello world.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	git("add", "-A")
	git("commit", "-m", "initial commit")

	return dir
}

func TestGitFS_Stat_Root(t *testing.T) {
	dir := setupTestRepo(t)
	g := NewGitFS(dir, "HEAD", "/repo/")

	s, err := g.Stat(context.Background(), "/repo/")
	if err != nil {
		t.Fatalf("Stat(/repo/) failed: %v", err)
	}
	if !s.IsDirectory() {
		t.Error("expected root to be a directory")
	}
	if s.Hash() == "" {
		t.Error("expected tree id as hash")
	}
}

func TestGitFS_ReadDir_Root(t *testing.T) {
	dir := setupTestRepo(t)
	g := NewGitFS(dir, "HEAD", "/repo")

	entries, err := g.ReadDir(context.Background(), "/repo/")
	if err != nil {
		t.Fatalf("ReadDir(/repo/) failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected non-empty root directory")
	}

	kinds := make(map[string]bool)
	for _, e := range entries {
		kinds[e.Name] = e.Stats.IsDirectory()
		t.Logf("  entry: %s (dir=%v)", e.Name, e.Stats.IsDirectory())
	}

	if isDir, ok := kinds["README.md"]; !ok || isDir {
		t.Error("expected README.md file in root entries")
	}
	if isDir, ok := kinds["docs"]; !ok || !isDir {
		t.Error("expected docs directory in root entries")
	}
}

func TestGitFS_Stat_Dir(t *testing.T) {
	dir := setupTestRepo(t)
	g := NewGitFS(dir, "HEAD", "/repo/")

	s, err := g.Stat(context.Background(), "/repo/docs/")
	if err != nil {
		t.Fatalf("Stat(docs) failed: %v", err)
	}
	if !s.IsDirectory() {
		t.Error("expected docs to be a directory")
	}
}

func TestGitFS_Stat_FileHashIsBlobID(t *testing.T) {
	dir := setupTestRepo(t)
	g := NewGitFS(dir, "HEAD", "/repo/")

	s, err := g.Stat(context.Background(), "/repo/docs/guide.md")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	out, err := exec.Command("git", "-C", dir, "rev-parse", "HEAD:docs/guide.md").Output()
	if err != nil {
		t.Fatal(err)
	}
	if want := string(out[:len(out)-1]); s.Hash() != want {
		t.Errorf("hash = %q, want %q", s.Hash(), want)
	}
	if s.Size() != int64(len("# Guide\n\nHello world.\n")) {
		t.Errorf("size = %d", s.Size())
	}
}

func TestGitFS_ReadDir_SubDir(t *testing.T) {
	dir := setupTestRepo(t)
	g := NewGitFS(dir, "HEAD", "/repo/")

	entries, err := g.ReadDir(context.Background(), "/repo/docs/")
	if err != nil {
		t.Fatalf("ReadDir(docs) failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry in docs, got %d", len(entries))
	}
	if entries[0].Name != "guide.md" {
		t.Errorf("expected guide.md, got %s", entries[0].Name)
	}
}

func TestGitFS_ReadFile(t *testing.T) {
	dir := setupTestRepo(t)
	g := NewGitFS(dir, "HEAD", "/repo/")

	content, s, err := g.ReadFile(context.Background(), "/repo/docs/guide.md", vfs.ReadOptions{})
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(content) != "# Guide\n\nHello world.\n" {
		t.Errorf("unexpected content %q", content)
	}
	if !s.IsFile() {
		t.Error("expected file stats")
	}
}

func TestGitFS_ReadFile_NotExist(t *testing.T) {
	dir := setupTestRepo(t)
	g := NewGitFS(dir, "HEAD", "/repo/")

	_, _, err := g.ReadFile(context.Background(), "/repo/nonexistent.md", vfs.ReadOptions{})
	if !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	ok, err := g.Exists(context.Background(), "/repo/nonexistent.md")
	if err != nil || ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
}

func TestGitFS_ReadFile_MaxSize(t *testing.T) {
	dir := setupTestRepo(t)
	g := NewGitFS(dir, "HEAD", "/repo/")

	_, _, err := g.ReadFile(context.Background(), "/repo/docs/guide.md", vfs.ReadOptions{MaxSize: 4})
	if !errors.Is(err, vfs.ErrExceedsMaxFileSize) {
		t.Errorf("expected ErrExceedsMaxFileSize, got %v", err)
	}
}

func TestGitFS_ReadOnly(t *testing.T) {
	dir := setupTestRepo(t)
	g := NewGitFS(dir, "HEAD", "/repo/")
	ctx := context.Background()

	if _, _, err := g.WriteFile(ctx, "/repo/README.md", []byte("x"), vfs.WriteOptions{}); !errors.Is(err, vfs.ErrPermissionDenied) {
		t.Errorf("WriteFile: expected ErrPermissionDenied, got %v", err)
	}
	if err := g.Rename(ctx, "/repo/README.md", "/repo/x.md"); !errors.Is(err, vfs.ErrPermissionDenied) {
		t.Errorf("Rename: expected ErrPermissionDenied, got %v", err)
	}
	if err := g.Unlink(ctx, "/repo/README.md"); !errors.Is(err, vfs.ErrPermissionDenied) {
		t.Errorf("Unlink: expected ErrPermissionDenied, got %v", err)
	}
	if _, err := g.Mkdir(ctx, "/repo/new/", 0o755); !errors.Is(err, vfs.ErrPermissionDenied) {
		t.Errorf("Mkdir: expected ErrPermissionDenied, got %v", err)
	}
}

func TestGitFS_OutsideMount(t *testing.T) {
	dir := setupTestRepo(t)
	g := NewGitFS(dir, "HEAD", "/repo/")

	if _, err := g.Stat(context.Background(), "/elsewhere/README.md"); !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
