package match

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// CommandMatcher matches a shell command string against a blocked-command
// pattern. A single-token pattern (e.g. "rm") matches when any call in the
// command has that verb, including calls inside pipelines and && chains.
// A multi-token pattern (e.g. "rm -rf") is treated as a raw substring match
// against the whole command text, so destructive flag sequences are caught
// wherever they appear.
//
// Commands that cannot be parsed as shell are treated as matching: an input
// the policy engine cannot understand is blocked, not waved through.
type CommandMatcher struct {
	pattern   string
	verb      string
	substring bool
}

func NewCommandMatcher(pattern string) (*CommandMatcher, error) {
	trimmed := strings.TrimSpace(pattern)
	if trimmed == "" {
		return nil, fmt.Errorf("empty command pattern: %w", ErrInvalidPattern)
	}
	fields := strings.Fields(trimmed)
	if len(fields) > 1 {
		return &CommandMatcher{pattern: trimmed, substring: true}, nil
	}
	return &CommandMatcher{pattern: trimmed, verb: fields[0]}, nil
}

func (m *CommandMatcher) Pattern() string {
	return m.pattern
}

func (m *CommandMatcher) Matches(command string) bool {
	if m.substring {
		return strings.Contains(command, m.pattern)
	}
	verbs, err := CommandVerbs(command)
	if err != nil {
		return true
	}
	for _, verb := range verbs {
		if verb == m.verb {
			return true
		}
	}
	return false
}

// CommandVerbs parses a shell command and returns the verb (first word) of
// every call it contains, covering pipelines, && / || chains and
// subshells.
func CommandVerbs(command string) ([]string, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	var verbs []string
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if len(call.Args) == 0 {
				return true
			}
			if verb := wordToString(call.Args[0]); verb != "" {
				verbs = append(verbs, verb)
			}
		}
		return true
	})
	return verbs, nil
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}
