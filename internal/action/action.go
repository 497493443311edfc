package action

// Kind discriminates the action variants an engine can propose.
type Kind string

const (
	KindFileWrite  Kind = "file_write"
	KindFileRead   Kind = "file_read"
	KindCommand    Kind = "command"
	KindBranchPush Kind = "branch_push"
	KindToolUse    Kind = "tool_use"
)

// Action is a single side-effecting step proposed by an engine while it works
// on an issue. Exactly the fields relevant to the Kind are set.
type Action struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// Path is the repository-relative file path for file_write / file_read.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Command is the raw shell command for command actions.
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	// Branch is the push target for branch_push actions.
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`

	// Force marks a branch_push that would rewrite remote history.
	Force bool `json:"force,omitempty" yaml:"force,omitempty"`

	// Tool is the tool name for tool_use actions.
	Tool string `json:"tool,omitempty" yaml:"tool,omitempty"`
}

func FileWrite(path string) Action {
	return Action{Kind: KindFileWrite, Path: path}
}

func FileRead(path string) Action {
	return Action{Kind: KindFileRead, Path: path}
}

func Command(command string) Action {
	return Action{Kind: KindCommand, Command: command}
}

func BranchPush(branch string, force bool) Action {
	return Action{Kind: KindBranchPush, Branch: branch, Force: force}
}

func ToolUse(tool string) Action {
	return Action{Kind: KindToolUse, Tool: tool}
}

// Category names the approval category an action falls under, used to match
// approvalRequiredFor entries and to key approval grants. Categories are
// coarser than kinds: a forced branch_push is "force-push" while a normal
// one is "branch-push".
func (a Action) Category() string {
	switch a.Kind {
	case KindBranchPush:
		if a.Force {
			return "force-push"
		}
		return "branch-push"
	case KindFileWrite:
		return "file-write"
	case KindFileRead:
		return "file-read"
	case KindCommand:
		return "command"
	case KindToolUse:
		return "tool:" + a.Tool
	}
	return string(a.Kind)
}

// Resource names the usage counter the action consumes, or "" when the
// action is not budgeted.
func (a Action) Resource() string {
	switch a.Kind {
	case KindFileWrite:
		return "filesWritten"
	case KindCommand:
		return "commandsRun"
	case KindBranchPush:
		return "branchPushes"
	}
	return ""
}

// Target is the user-facing description of what the action touches.
func (a Action) Target() string {
	switch a.Kind {
	case KindFileWrite, KindFileRead:
		return a.Path
	case KindCommand:
		return a.Command
	case KindBranchPush:
		return a.Branch
	case KindToolUse:
		return a.Tool
	}
	return ""
}
