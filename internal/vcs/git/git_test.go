package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/mschirtzinger/dotmirror/internal/vcs"
)

// isolateGitConfig keeps the developer's global git identity out of tests.
func isolateGitConfig(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("GIT_CONFIG_GLOBAL", filepath.Join(t.TempDir(), "gitconfig"))
	for _, key := range []string{"GIT_AUTHOR_NAME", "GIT_AUTHOR_EMAIL", "GIT_COMMITTER_NAME", "GIT_COMMITTER_EMAIL", "EMAIL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// setupTestRepo creates a fresh mirror root with an initialized repository
func setupTestRepo(t *testing.T) *Git {
	t.Helper()
	isolateGitConfig(t)

	root := filepath.Join(t.TempDir(), "dotfiles")
	g, created, err := OpenOrInit(context.Background(), root, DefaultOptions())
	if err != nil {
		t.Fatalf("OpenOrInit() failed: %v", err)
	}
	if !created {
		t.Fatal("OpenOrInit() should report a new repository")
	}
	return g
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestVersion(t *testing.T) {
	isolateGitConfig(t)

	version, err := Version(context.Background())
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if version == "" {
		t.Error("Version() returned empty string")
	}
}

func TestOpenOrInit(t *testing.T) {
	g := setupTestRepo(t)

	if g.Name() != vcs.TypeGit {
		t.Errorf("Name() = %v, want %v", g.Name(), vcs.TypeGit)
	}
	if _, err := os.Stat(filepath.Join(g.Root(), ".git")); err != nil {
		t.Errorf(".git missing after init: %v", err)
	}

	again, created, err := OpenOrInit(context.Background(), g.Root(), DefaultOptions())
	if err != nil {
		t.Fatalf("second OpenOrInit() failed: %v", err)
	}
	if created {
		t.Error("second OpenOrInit() should open the existing repository")
	}
	if again.Root() != g.Root() {
		t.Errorf("Root() = %v, want %v", again.Root(), g.Root())
	}
}

func TestOpen_EnclosingRepositoryIsNotReused(t *testing.T) {
	isolateGitConfig(t)
	ctx := context.Background()

	home := t.TempDir()
	if _, err := Init(ctx, home, DefaultOptions()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	mirrorRoot := filepath.Join(home, "dotfiles")
	if err := os.MkdirAll(mirrorRoot, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(ctx, mirrorRoot, DefaultOptions()); !errors.Is(err, vcs.ErrNotInVCS) {
		t.Fatalf("Open() error = %v, want ErrNotInVCS", err)
	}

	g, created, err := OpenOrInit(ctx, mirrorRoot, DefaultOptions())
	if err != nil {
		t.Fatalf("OpenOrInit() failed: %v", err)
	}
	if !created {
		t.Error("expected a repository to be created at the mirror root")
	}
	if filepath.Base(g.Root()) != "dotfiles" {
		t.Errorf("Root() = %v, want the mirror root", g.Root())
	}
}

func TestSnapshot_RemovedGitDirDoesNotReachEnclosingRepository(t *testing.T) {
	isolateGitConfig(t)
	ctx := context.Background()

	home := t.TempDir()
	outer, err := Init(ctx, home, DefaultOptions())
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	writeFile(t, filepath.Join(home, "notes.txt"), "n")
	if res, err := outer.Snapshot(ctx); err != nil || res.Outcome != vcs.Committed {
		t.Fatalf("outer Snapshot() = %v, %v", res.Outcome, err)
	}
	outerHead, err := outer.Head(ctx)
	if err != nil {
		t.Fatal(err)
	}

	g, _, err := OpenOrInit(ctx, filepath.Join(home, "dotfiles"), DefaultOptions())
	if err != nil {
		t.Fatalf("OpenOrInit() failed: %v", err)
	}
	writeFile(t, filepath.Join(g.Root(), "zshrc"), "A")
	if res, err := g.Snapshot(ctx); err != nil || res.Outcome != vcs.Committed {
		t.Fatalf("Snapshot() = %v, %v", res.Outcome, err)
	}

	if err := os.RemoveAll(g.VCSDir()); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(g.Root(), "zshrc"), "B")

	res, err := g.Snapshot(ctx)
	if err == nil {
		t.Fatal("Snapshot() without a git directory should fail")
	}
	if res.Outcome != vcs.Failed {
		t.Errorf("Outcome = %v, want failed", res.Outcome)
	}

	after, err := outer.Head(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after != outerHead {
		t.Errorf("enclosing repository HEAD moved from %s to %s", outerHead, after)
	}
}

func TestSnapshot_ExcludedPathsAreNotRecorded(t *testing.T) {
	g := setupTestRepo(t)
	ctx := context.Background()

	g, err := Open(ctx, g.Root(), Options{Exclude: []string{"**/.tmp-*"}})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	writeFile(t, filepath.Join(g.Root(), ".tmp-1"), "partial")
	writeFile(t, filepath.Join(g.Root(), "nvim", ".tmp-2"), "partial")

	statuses, err := g.Status(ctx)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if len(statuses) != 0 {
		t.Errorf("Status() = %v, want excluded files left out", statuses)
	}
	if res, err := g.Snapshot(ctx); err != nil || res.Outcome != vcs.NoChanges {
		t.Fatalf("Snapshot() = %v, %v, want no-changes", res.Outcome, err)
	}

	writeFile(t, filepath.Join(g.Root(), "nvim", "init.lua"), "A")
	res, err := g.Snapshot(ctx)
	if err != nil || res.Outcome != vcs.Committed {
		t.Fatalf("Snapshot() = %v, %v", res.Outcome, err)
	}
	if _, err := g.ShowFile(ctx, "HEAD", "nvim/.tmp-2"); err == nil {
		t.Error("excluded file was committed")
	}
	if _, err := g.ShowFile(ctx, "HEAD", "nvim/init.lua"); err != nil {
		t.Errorf("ShowFile() failed: %v", err)
	}
}

func TestSnapshot_TimeoutIsRetryable(t *testing.T) {
	g := setupTestRepo(t)
	writeFile(t, filepath.Join(g.Root(), "zshrc"), "A")

	g.opts.Timeout = time.Nanosecond
	res, err := g.Snapshot(context.Background())
	if !errors.Is(err, vcs.ErrTimeout) {
		t.Fatalf("Snapshot() error = %v, want ErrTimeout", err)
	}
	if !vcs.IsRetryable(err) {
		t.Error("a timed out snapshot should be retryable")
	}
	if res.Outcome != vcs.Failed {
		t.Errorf("Outcome = %v, want failed", res.Outcome)
	}
}

func TestHead_Unborn(t *testing.T) {
	g := setupTestRepo(t)

	head, err := g.Head(context.Background())
	if err != nil {
		t.Fatalf("Head() failed: %v", err)
	}
	if head != "" {
		t.Errorf("Head() = %q for empty repository, want empty", head)
	}
}

func TestStatus(t *testing.T) {
	g := setupTestRepo(t)
	ctx := context.Background()

	statuses, err := g.Status(ctx)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if len(statuses) != 0 {
		t.Fatalf("Status() on empty repo returned %d entries", len(statuses))
	}

	// Untracked directories are recursed into
	writeFile(t, filepath.Join(g.Root(), "nvim", "lua", "init.lua"), "A")
	writeFile(t, filepath.Join(g.Root(), "nvim", "init.vim"), "B")

	statuses, err = g.Status(ctx)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("Status() returned %d files, want 2: %+v", len(statuses), statuses)
	}
	for _, s := range statuses {
		if s.Status != vcs.StatusUntracked {
			t.Errorf("Status(%s) = %v, want %v", s.Path, s.Status, vcs.StatusUntracked)
		}
	}
}

func TestParseStatus(t *testing.T) {
	output := []byte("R  new name.txt\x00old.txt\x00 M nvim/init.lua\x00?? a b\x00")
	statuses := parseStatus(output)

	if len(statuses) != 3 {
		t.Fatalf("parseStatus() returned %d entries, want 3: %+v", len(statuses), statuses)
	}
	if statuses[0].Path != "new name.txt" || statuses[0].StagedCode != vcs.StatusRenamed {
		t.Errorf("rename entry = %+v", statuses[0])
	}
	if statuses[1].Path != "nvim/init.lua" || statuses[1].Status != vcs.StatusModified {
		t.Errorf("modified entry = %+v", statuses[1])
	}
	if statuses[2].Path != "a b" || statuses[2].Status != vcs.StatusUntracked {
		t.Errorf("untracked entry = %+v", statuses[2])
	}
}

func TestSnapshot_FirstCommitHasNoParent(t *testing.T) {
	g := setupTestRepo(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(g.Root(), "nvim", "lua", "init.lua"), "A")

	res, err := g.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if res.Outcome != vcs.Committed {
		t.Fatalf("Outcome = %v, want committed", res.Outcome)
	}
	if res.Parent != "" {
		t.Errorf("Parent = %q, want none for the first commit", res.Parent)
	}

	commits, err := g.Log(ctx, time.Time{}, 0)
	if err != nil {
		t.Fatalf("Log() failed: %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("Log() returned %d commits, want 1", len(commits))
	}
	if len(commits[0].Parents) != 0 {
		t.Errorf("first commit has parents %v", commits[0].Parents)
	}
	if commits[0].Subject != vcs.DefaultSnapshotMessage {
		t.Errorf("Subject = %q, want %q", commits[0].Subject, vcs.DefaultSnapshotMessage)
	}
}

func TestSnapshot_EmptyTreeIsNoChanges(t *testing.T) {
	g := setupTestRepo(t)

	res, err := g.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if res.Outcome != vcs.NoChanges {
		t.Errorf("Outcome = %v, want no-changes", res.Outcome)
	}
}

func TestSnapshot_Idempotent(t *testing.T) {
	g := setupTestRepo(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(g.Root(), "nvim", "lua", "init.lua"), "A")

	first, err := g.Snapshot(ctx)
	if err != nil || first.Outcome != vcs.Committed {
		t.Fatalf("first Snapshot() = %v, %v; want committed", first.Outcome, err)
	}

	second, err := g.Snapshot(ctx)
	if err != nil {
		t.Fatalf("second Snapshot() failed: %v", err)
	}
	if second.Outcome != vcs.NoChanges {
		t.Errorf("second Outcome = %v, want no-changes", second.Outcome)
	}

	head, _ := g.Head(ctx)
	if head != first.Commit {
		t.Errorf("HEAD = %s, want %s (advanced exactly once)", head, first.Commit)
	}
}

func TestSnapshot_ParentsToPreviousHead(t *testing.T) {
	g := setupTestRepo(t)
	ctx := context.Background()
	file := filepath.Join(g.Root(), "nvim", "lua", "init.lua")

	writeFile(t, file, "A")
	first, err := g.Snapshot(ctx)
	if err != nil {
		t.Fatalf("first Snapshot() failed: %v", err)
	}

	writeFile(t, file, "B")
	second, err := g.Snapshot(ctx)
	if err != nil {
		t.Fatalf("second Snapshot() failed: %v", err)
	}
	if second.Outcome != vcs.Committed {
		t.Fatalf("second Outcome = %v, want committed", second.Outcome)
	}
	if second.Parent != first.Commit {
		t.Errorf("Parent = %s, want %s", second.Parent, first.Commit)
	}

	content, err := g.ShowFile(ctx, "HEAD", "nvim/lua/init.lua")
	if err != nil {
		t.Fatalf("ShowFile() failed: %v", err)
	}
	if string(content) != "B" {
		t.Errorf("HEAD content = %q, want B", content)
	}
}

func TestSnapshot_ForceAddsIgnoredFiles(t *testing.T) {
	g := setupTestRepo(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(g.Root(), ".gitignore"), "*.env\n")
	writeFile(t, filepath.Join(g.Root(), "zsh", "local.env"), "EDITOR=nvim")

	if _, err := g.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	content, err := g.ShowFile(ctx, "HEAD", "zsh/local.env")
	if err != nil {
		t.Fatalf("ignored file was not committed: %v", err)
	}
	if string(content) != "EDITOR=nvim" {
		t.Errorf("content = %q", content)
	}
}

func TestSnapshot_IdentityFallback(t *testing.T) {
	isolateGitConfig(t)
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "dotfiles")

	fallback := vcs.Identity{Name: "Mirror Bot", Email: "bot@example.com"}
	g, _, err := OpenOrInit(ctx, root, Options{Identity: fallback})
	if err != nil {
		t.Fatalf("OpenOrInit() failed: %v", err)
	}

	if got := g.Identity(ctx); got != fallback {
		t.Errorf("Identity() = %v, want fallback %v", got, fallback)
	}

	writeFile(t, filepath.Join(root, "a.txt"), "a")
	res, err := g.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if res.Author != fallback {
		t.Errorf("Author = %v, want %v", res.Author, fallback)
	}

	// A configured identity wins over the fallback
	exec.Command("git", "-C", root, "config", "user.name", "Test User").Run()
	exec.Command("git", "-C", root, "config", "user.email", "test@example.com").Run()

	want := vcs.Identity{Name: "Test User", Email: "test@example.com"}
	if got := g.Identity(ctx); got != want {
		t.Errorf("Identity() = %v, want %v", got, want)
	}

	// And with nothing configured at all the fixed default is used
	bare, _, err := OpenOrInit(ctx, filepath.Join(t.TempDir(), "bare"), Options{})
	if err != nil {
		t.Fatalf("OpenOrInit() failed: %v", err)
	}
	if got := bare.Identity(ctx); got != vcs.DefaultIdentity {
		t.Errorf("Identity() = %v, want %v", got, vcs.DefaultIdentity)
	}
}

func TestSnapshot_CustomMessage(t *testing.T) {
	isolateGitConfig(t)
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "dotfiles")

	g, _, err := OpenOrInit(ctx, root, Options{Message: "backup"})
	if err != nil {
		t.Fatalf("OpenOrInit() failed: %v", err)
	}
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	if _, err := g.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	commits, err := g.Log(ctx, time.Time{}, 1)
	if err != nil {
		t.Fatalf("Log() failed: %v", err)
	}
	if len(commits) != 1 || commits[0].Subject != "backup" {
		t.Errorf("Log() = %+v, want one commit with subject backup", commits)
	}
}

func TestLog_Unborn(t *testing.T) {
	g := setupTestRepo(t)

	commits, err := g.Log(context.Background(), time.Time{}, 10)
	if err != nil {
		t.Fatalf("Log() failed: %v", err)
	}
	if len(commits) != 0 {
		t.Errorf("Log() returned %d commits for empty repository", len(commits))
	}
}

func TestLog_SinceFiltersOlderCommits(t *testing.T) {
	g := setupTestRepo(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(g.Root(), "a.txt"), "a")
	if _, err := g.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	commits, err := g.Log(ctx, time.Now().Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Log() failed: %v", err)
	}
	if len(commits) != 0 {
		t.Errorf("Log(since=future) returned %d commits, want 0", len(commits))
	}
}

func TestParseLog(t *testing.T) {
	output := []byte("abc1234def\x1f\x1fBot\x1fbot@x\x1f1700000000\x1fdotmirror: automated snapshot\x00" +
		"\nfff0000\x1fabc1234def\x1fBot\x1fbot@x\x1f1700000100\x1fsecond\x00")

	commits, err := parseLog(output)
	if err != nil {
		t.Fatalf("parseLog() failed: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("parseLog() returned %d commits, want 2", len(commits))
	}
	if commits[0].ShortHash() != "abc1234" {
		t.Errorf("ShortHash() = %q", commits[0].ShortHash())
	}
	if len(commits[1].Parents) != 1 || commits[1].Parents[0] != "abc1234def" {
		t.Errorf("Parents = %v", commits[1].Parents)
	}
	if commits[1].Time.Unix() != 1700000100 {
		t.Errorf("Time = %v", commits[1].Time)
	}

	if _, err := parseLog([]byte("garbage\x00")); err == nil {
		t.Error("parseLog() should reject malformed records")
	}
}
