package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/kazz187/agentgate/internal/action"
	"github.com/kazz187/agentgate/pkg/worktree"
)

// LogExecutor records what would run without touching anything. It is the
// default executor: governance verdicts and the event log are exercised for
// real while side effects stay off.
type LogExecutor struct{}

func (LogExecutor) Run(ctx context.Context, issueNumber int, act action.Action) (string, error) {
	slog.InfoContext(ctx, "dry-run action",
		"issue", issueNumber, "kind", string(act.Kind), "target", act.Target())
	return "", nil
}

// ShellExecutor runs command actions through a shell. With Workspaces set,
// each issue's commands run in that issue's git worktree; otherwise they run
// in Dir. Non-command actions are acknowledged without side effects; their
// collaborators (VCS, file tooling) live outside this process.
type ShellExecutor struct {
	Dir        string
	Workspaces *worktree.Manager
}

func (e *ShellExecutor) Run(ctx context.Context, issueNumber int, act action.Action) (string, error) {
	if act.Kind != action.KindCommand {
		slog.InfoContext(ctx, "acknowledged action",
			"issue", issueNumber, "kind", string(act.Kind), "target", act.Target())
		return "", nil
	}

	dir := e.Dir
	if e.Workspaces != nil {
		provisioned, err := e.Workspaces.Provision(ctx, issueNumber)
		if err != nil {
			return "", err
		}
		dir = provisioned
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", act.Command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return string(out), ctx.Err()
		}
		return string(out), fmt.Errorf("command failed: %w: %s", err, out)
	}
	return string(out), nil
}
