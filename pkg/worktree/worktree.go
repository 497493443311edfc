package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Manager provisions one git worktree per issue so concurrent sessions never
// share a checkout. It also answers which branch the repository treats as its
// default, backing authoritative branch protection checks.
type Manager struct {
	repoPath      string
	worktreesPath string

	mu            sync.Mutex
	defaultBranch string
}

func NewManager(repoPath string) (*Manager, error) {
	worktreesPath := filepath.Join(repoPath, ".agentgate", "worktrees")
	if err := os.MkdirAll(worktreesPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create worktrees directory: %w", err)
	}
	return &Manager{
		repoPath:      repoPath,
		worktreesPath: worktreesPath,
	}, nil
}

// Provision returns the worktree path for an issue, creating the worktree and
// its agents/issue-<n> branch on first use.
func (m *Manager) Provision(ctx context.Context, issueNumber int) (string, error) {
	worktreePath := m.Path(issueNumber)
	if _, err := os.Stat(worktreePath); err == nil {
		return worktreePath, nil
	}

	branch := fmt.Sprintf("agents/issue-%d", issueNumber)
	cmd := exec.CommandContext(ctx, "git", "worktree", "add", "-b", branch, worktreePath)
	cmd.Dir = m.repoPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to create git worktree: %w: %s", err, out)
	}
	return worktreePath, nil
}

// Remove tears down an issue's worktree. Removing one that never existed is a
// no-op.
func (m *Manager) Remove(ctx context.Context, issueNumber int) error {
	worktreePath := m.Path(issueNumber)
	if _, err := os.Stat(worktreePath); os.IsNotExist(err) {
		return nil
	}

	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", worktreePath)
	cmd.Dir = m.repoPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to remove git worktree: %w: %s", err, out)
	}
	return nil
}

// Path returns where an issue's worktree lives, whether or not it exists yet.
func (m *Manager) Path(issueNumber int) string {
	return filepath.Join(m.worktreesPath, fmt.Sprintf("issue-%d", issueNumber))
}

// BranchProtected reports whether branch is the repository's default branch.
// The answer comes from the repository itself, so it holds even when the
// static protection list is stale.
func (m *Manager) BranchProtected(ctx context.Context, branch string) (bool, error) {
	def, err := m.lookupDefaultBranch(ctx)
	if err != nil {
		return false, err
	}
	return branch == def, nil
}

func (m *Manager) lookupDefaultBranch(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defaultBranch != "" {
		return m.defaultBranch, nil
	}

	// origin/HEAD names the default branch for cloned repositories; fall back
	// to the current HEAD for local-only ones.
	cmd := exec.CommandContext(ctx, "git", "symbolic-ref", "--short", "refs/remotes/origin/HEAD")
	cmd.Dir = m.repoPath
	out, err := cmd.Output()
	if err != nil {
		cmd = exec.CommandContext(ctx, "git", "symbolic-ref", "--short", "HEAD")
		cmd.Dir = m.repoPath
		out, err = cmd.Output()
		if err != nil {
			return "", fmt.Errorf("failed to resolve default branch: %w", err)
		}
	}

	ref := strings.TrimSpace(string(out))
	ref = strings.TrimPrefix(ref, "origin/")
	if ref == "" {
		return "", fmt.Errorf("default branch ref is empty")
	}
	m.defaultBranch = ref
	return ref, nil
}
