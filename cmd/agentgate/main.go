package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"github.com/kazz187/agentgate/internal/client"
	"github.com/kazz187/agentgate/internal/eventlog"
)

var (
	app    = kingpin.New("agentgate", "Governance gate for autonomous coding agents")
	server = app.Flag("server", "Server base URL").Default("http://localhost:8700").String()

	eventsCmd   = app.Command("events", "Show the engine event log")
	eventsIssue = eventsCmd.Flag("issue", "Filter by issue number").Default("0").Int()

	approvalsCmd = app.Command("approvals", "List pending approval requests")

	approveCmd = app.Command("approve", "Approve a pending request")
	approveID  = approveCmd.Arg("id", "Approval request ID").Required().String()

	denyCmd    = app.Command("deny", "Deny a pending request")
	denyID     = denyCmd.Arg("id", "Approval request ID").Required().String()
	denyReason = denyCmd.Flag("reason", "Reason for denial").Default("denied").String()

	agentTypesCmd = app.Command("agent-types", "List known agent types")

	submitCmd     = app.Command("submit", "Submit a task for an issue")
	submitIssue   = submitCmd.Arg("issue", "Issue number").Required().Int()
	submitType    = submitCmd.Flag("type", "Agent type").Default("contributor").String()
	submitTitle   = submitCmd.Flag("title", "Task title").Default("").String()
	submitOrg     = submitCmd.Flag("org", "Organization scope").Default("").String()
	submitSession = submitCmd.Flag("session", "Session scope").Default("").String()

	cancelCmd   = app.Command("cancel", "Cancel a running task")
	cancelIssue = cancelCmd.Arg("issue", "Issue number").Required().Int()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx := context.Background()
	c := client.New(*server)

	var err error
	switch command {
	case eventsCmd.FullCommand():
		err = showEvents(ctx, c, *eventsIssue)
	case approvalsCmd.FullCommand():
		err = showApprovals(ctx, c)
	case approveCmd.FullCommand():
		err = resolveApproval(ctx, c, *approveID, true, "")
	case denyCmd.FullCommand():
		err = resolveApproval(ctx, c, *denyID, false, *denyReason)
	case agentTypesCmd.FullCommand():
		err = showAgentTypes(ctx, c)
	case submitCmd.FullCommand():
		err = submitTask(ctx, c)
	case cancelCmd.FullCommand():
		err = cancelTask(ctx, c, *cancelIssue)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var eventColors = map[eventlog.EventType]*color.Color{
	eventlog.EventTaskStarted:       color.New(color.FgCyan),
	eventlog.EventActionAllowed:     color.New(color.FgGreen),
	eventlog.EventActionDenied:      color.New(color.FgRed),
	eventlog.EventApprovalRequested: color.New(color.FgYellow),
	eventlog.EventApprovalResolved:  color.New(color.FgYellow),
	eventlog.EventTaskCompleted:     color.New(color.FgGreen, color.Bold),
	eventlog.EventTaskFailed:        color.New(color.FgRed, color.Bold),
}

func showEvents(ctx context.Context, c *client.Client, issue int) error {
	events, err := c.Events(ctx, issue)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}
	for _, ev := range events {
		typ := string(ev.Type)
		if cl, ok := eventColors[ev.Type]; ok {
			typ = cl.Sprint(typ)
		}
		fmt.Printf("%s  #%-5d %-20s %s\n",
			ev.Timestamp.Local().Format(time.RFC3339),
			ev.IssueNumber, typ, formatPayload(ev.Payload))
	}
	return nil
}

func formatPayload(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := &bytes.Buffer{}
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(buf, "%s=%v", k, payload[k])
	}
	return buf.String()
}

func showApprovals(ctx context.Context, c *client.Client) error {
	approvals, err := c.PendingApprovals(ctx)
	if err != nil {
		return err
	}
	if len(approvals) == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}
	yellow := color.New(color.FgYellow)
	for _, req := range approvals {
		fmt.Printf("%s  #%-5d %-15s %s (expires %s)\n",
			yellow.Sprint(req.ID), req.IssueNumber, req.Category,
			req.Action.Target(), req.ExpiresAt.Local().Format(time.RFC3339))
	}
	return nil
}

func resolveApproval(ctx context.Context, c *client.Client, requestID string, approved bool, reason string) error {
	if err := c.ResolveApproval(ctx, requestID, approved, reason); err != nil {
		return err
	}
	if approved {
		color.Green("Approved %s", requestID)
	} else {
		color.Red("Denied %s", requestID)
	}
	return nil
}

func showAgentTypes(ctx context.Context, c *client.Client) error {
	types, err := c.AgentTypes(ctx)
	if err != nil {
		return err
	}
	for _, t := range types {
		fmt.Println(t)
	}
	return nil
}

func submitTask(ctx context.Context, c *client.Client) error {
	if err := c.SubmitTask(ctx, *submitIssue, *submitType, *submitTitle, *submitOrg, *submitSession); err != nil {
		return err
	}
	fmt.Printf("Submitted task for issue #%d (%s)\n", *submitIssue, *submitType)
	return nil
}

func cancelTask(ctx context.Context, c *client.Client, issue int) error {
	if err := c.CancelTask(ctx, issue); err != nil {
		return err
	}
	fmt.Printf("Cancelled task for issue #%d\n", issue)
	return nil
}
