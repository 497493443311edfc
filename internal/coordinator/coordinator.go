package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourcegraph/conc"

	"github.com/kazz187/agentgate/internal/action"
	"github.com/kazz187/agentgate/internal/enforce"
	"github.com/kazz187/agentgate/internal/eventbus"
	"github.com/kazz187/agentgate/internal/eventlog"
	"github.com/kazz187/agentgate/internal/policy"
	"github.com/kazz187/agentgate/internal/pool"
	"github.com/kazz187/agentgate/pkg/panicerr"
)

// Terminal failure reasons recorded in task-failed payloads.
const (
	ReasonViolation      = "violation"
	ReasonApprovalDenied = "approval-denied"
	ReasonCancelled      = "cancelled"
	ReasonCollaborator   = "collaborator-error"
	ReasonInvalidPolicy  = "invalid-policy"
)

// Config wires a Coordinator. Store must be the same store the approval
// registry records to, and Bus must see its events (wrap the store in an
// eventbus.StorePublisher) or suspended tasks will never observe their
// resolutions.
type Config struct {
	Pool      pool.EnginePool
	Store     eventlog.Store
	Bus       *eventbus.Bus
	Resolver  *policy.Resolver
	Approvals *enforce.ApprovalRegistry
	Executor  Executor

	// SourceControl optionally backs the enforcer's authoritative branch
	// checks.
	SourceControl enforce.BranchAuthority

	// ExecutorMaxAttempts bounds retries of transient executor failures.
	ExecutorMaxAttempts uint64

	// RetryInitialInterval seeds the retry backoff; zero means 500ms.
	RetryInitialInterval time.Duration
}

// Coordinator drives tasks through the pool: acquire an engine, gate every
// proposed action through the enforcer, forward allowed actions to the
// executor, and append lifecycle events as it goes. A suspended task
// releases its engine and resumes from the event log once its approval
// resolves.
type Coordinator struct {
	pool          pool.EnginePool
	store         eventlog.Store
	bus           *eventbus.Bus
	resolver      *policy.Resolver
	approvals     *enforce.ApprovalRegistry
	executor      Executor
	authority     enforce.BranchAuthority
	maxAttempts   uint64
	retryInterval time.Duration

	waitGroup *conc.WaitGroup
	mu        sync.Mutex
	cancels   map[int]context.CancelFunc
}

func New(cfg Config) *Coordinator {
	retryInterval := cfg.RetryInitialInterval
	if retryInterval <= 0 {
		retryInterval = 500 * time.Millisecond
	}
	return &Coordinator{
		pool:          cfg.Pool,
		store:         cfg.Store,
		bus:           cfg.Bus,
		resolver:      cfg.Resolver,
		approvals:     cfg.Approvals,
		executor:      cfg.Executor,
		authority:     cfg.SourceControl,
		maxAttempts:   cfg.ExecutorMaxAttempts,
		retryInterval: retryInterval,
		waitGroup:     conc.NewWaitGroup(),
		cancels:       make(map[int]context.CancelFunc),
	}
}

// Submit dispatches a task on its own goroutine and reports whether it was
// accepted. An issue with a dispatch still in flight is refused: two
// concurrent sessions would interleave their action-allowed appends and break
// replay. Cancel stops an accepted task; Wait joins all of them.
func (c *Coordinator) Submit(ctx context.Context, task pool.Task) bool {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if _, running := c.cancels[task.IssueNumber]; running {
		c.mu.Unlock()
		cancel()
		slog.Info("task already in flight", "issue", task.IssueNumber)
		return false
	}
	c.cancels[task.IssueNumber] = cancel
	c.mu.Unlock()

	c.waitGroup.Go(func() {
		defer func() {
			cancel()
			c.mu.Lock()
			delete(c.cancels, task.IssueNumber)
			c.mu.Unlock()
		}()
		if err := c.Dispatch(runCtx, task); err != nil {
			slog.Error("task dispatch finished with error",
				"issue", task.IssueNumber, "error", err)
		}
	})
	return true
}

// Cancel aborts a submitted task before it reaches a terminal event.
func (c *Coordinator) Cancel(issueNumber int) bool {
	c.mu.Lock()
	cancel, ok := c.cancels[issueNumber]
	c.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until every submitted task has finished.
func (c *Coordinator) Wait() {
	c.waitGroup.Wait()
}

// Dispatch runs one task to a terminal event, synchronously. Re-dispatching
// an issue that already reached terminal state is a no-op; re-dispatching an
// interrupted one resumes from the event log.
func (c *Coordinator) Dispatch(ctx context.Context, task pool.Task) error {
	issue := task.IssueNumber

	last, err := c.store.LastEvent(ctx, issue, eventlog.EventTaskCompleted, eventlog.EventTaskFailed)
	if err != nil {
		return err
	}
	if last != nil {
		slog.InfoContext(ctx, "task already terminal", "issue", issue, "state", string(last.Type))
		return nil
	}

	events, err := c.store.Events(ctx, issue)
	if err != nil {
		return err
	}

	rp, err := c.resolver.Resolve(ctx, task.AgentType, task.OrgScope, task.SessionScope)
	if err != nil {
		// Configuration errors are fatal to session start, never partial.
		if recErr := c.failTask(ctx, issue, map[string]any{
			"reason": ReasonInvalidPolicy,
			"error":  err.Error(),
		}); recErr != nil {
			return recErr
		}
		return err
	}

	started := false
	for _, event := range events {
		if event.Type == eventlog.EventTaskStarted {
			started = true
			break
		}
	}
	if !started {
		if _, err := c.store.Record(ctx, eventlog.EventTaskStarted, issue, map[string]any{
			"agent_type": string(task.AgentType),
			"title":      task.Title,
		}); err != nil {
			return err
		}
	}

	var opts []enforce.Option
	if c.authority != nil {
		opts = append(opts, enforce.WithBranchAuthority(c.authority))
	}
	enforcer := enforce.NewEnforcer(rp, c.approvals, c.store, issue, opts...)
	enforcer.RestoreUsage(events)

	for {
		suspension, err := c.runSession(ctx, task, enforcer)
		if err != nil || suspension == nil {
			return err
		}

		approved, err := c.waitForApproval(ctx, issue, suspension.RequestID)
		if err != nil {
			if isCtxErr(err) {
				if recErr := c.failTask(ctx, issue, map[string]any{"reason": ReasonCancelled}); recErr != nil {
					return recErr
				}
			}
			return err
		}
		if !approved {
			if err := c.failTask(ctx, issue, map[string]any{
				"reason":     ReasonApprovalDenied,
				"request_id": suspension.RequestID,
				"category":   suspension.Category,
			}); err != nil {
				return err
			}
			return suspension
		}
		slog.InfoContext(ctx, "task resuming after approval",
			"issue", issue, "request_id", suspension.RequestID)
	}
}

// runSession holds an engine for one stretch of work: from acquisition until
// the task completes, fails, or suspends. The returned approval detail is
// non-nil only for suspension; all terminal events are recorded before
// returning.
func (c *Coordinator) runSession(ctx context.Context, task pool.Task, enforcer *enforce.Enforcer) (*enforce.ApprovalRequiredError, error) {
	issue := task.IssueNumber

	engine, err := c.pool.Acquire(ctx)
	if err != nil {
		if isCtxErr(err) {
			if recErr := c.failTask(ctx, issue, map[string]any{"reason": ReasonCancelled}); recErr != nil {
				return nil, recErr
			}
		}
		return nil, err
	}
	defer c.pool.Release(engine)

	// The engine re-proposes its actions from the top; the log tells us how
	// many were already allowed and executed.
	skip, err := c.executedActions(ctx, issue)
	if err != nil {
		return nil, err
	}

	source, err := engine.StartTask(ctx, task)
	if err != nil {
		if recErr := c.failTask(ctx, issue, map[string]any{
			"reason": ReasonCollaborator,
			"error":  err.Error(),
		}); recErr != nil {
			return nil, recErr
		}
		return nil, err
	}
	slog.InfoContext(ctx, "engine assigned",
		"issue", issue, "engine", engine.ID(), "skip", skip)

	for {
		act, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			if _, err := c.store.Record(ctx, eventlog.EventTaskCompleted, issue, nil); err != nil {
				return nil, err
			}
			slog.InfoContext(ctx, "task completed", "issue", issue)
			return nil, nil
		}
		if err != nil {
			reason := ReasonCollaborator
			if isCtxErr(err) {
				reason = ReasonCancelled
			}
			if recErr := c.failTask(ctx, issue, map[string]any{"reason": reason, "error": err.Error()}); recErr != nil {
				return nil, recErr
			}
			return nil, err
		}
		if skip > 0 {
			skip--
			continue
		}

		decision, err := enforcer.Evaluate(ctx, act)
		if err != nil {
			return nil, err
		}
		switch decision.Verdict {
		case enforce.VerdictAllow:
			if err := c.execute(ctx, issue, act); err != nil {
				reason := ReasonCollaborator
				if isCtxErr(err) {
					reason = ReasonCancelled
				}
				if recErr := c.failTask(ctx, issue, map[string]any{"reason": reason, "error": err.Error()}); recErr != nil {
					return nil, recErr
				}
				return nil, err
			}
		case enforce.VerdictSuspend:
			// approval-requested is already in the log; hand the engine
			// back so the wait cannot starve the pool.
			return decision.Approval, nil
		case enforce.VerdictDeny:
			payload := map[string]any{"reason": ReasonViolation}
			if decision.Denied != nil {
				payload["rule"] = decision.Denied.Rule
				payload["input"] = decision.Denied.Input
				payload["explanation"] = decision.Denied.Explanation
			}
			if decision.Limit != nil {
				payload["resource"] = decision.Limit.Resource
				payload["limit"] = decision.Limit.Limit
				payload["current"] = decision.Limit.Current
			}
			if err := c.failTask(ctx, issue, payload); err != nil {
				return nil, err
			}
			return nil, decision.Err()
		}
	}
}

// executedActions counts the allowed actions already committed for an issue.
func (c *Coordinator) executedActions(ctx context.Context, issue int) (int, error) {
	events, err := c.store.Events(ctx, issue)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, event := range events {
		if event.Type == eventlog.EventActionAllowed {
			n++
		}
	}
	return n, nil
}

// approvalRescanInterval bounds how long a suspended task waits after a
// resolution the bus failed to deliver.
const approvalRescanInterval = 100 * time.Millisecond

// waitForApproval blocks until the request resolves. Bus delivery is lossy
// (Publish drops events when a subscriber falls behind), so the store is the
// source of truth: the log is scanned before waiting and re-scanned on a
// ticker, and the bus only shortens the wait.
func (c *Coordinator) waitForApproval(ctx context.Context, issue int, requestID string) (bool, error) {
	subID, ch := c.bus.Subscribe(16)
	defer c.bus.Unsubscribe(subID)

	if approved, found, err := c.scanResolution(ctx, issue, requestID); err != nil || found {
		return approved, err
	}

	slog.InfoContext(ctx, "task suspended awaiting approval",
		"issue", issue, "request_id", requestID)
	ticker := time.NewTicker(approvalRescanInterval)
	defer ticker.Stop()
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return false, errors.New("event bus closed")
			}
			if approved, ok := resolutionOf(event, requestID); ok {
				return approved, nil
			}
		case <-ticker.C:
			if approved, found, err := c.scanResolution(ctx, issue, requestID); err != nil || found {
				return approved, err
			}
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// scanResolution looks through the committed log for the request's
// approval-resolved event.
func (c *Coordinator) scanResolution(ctx context.Context, issue int, requestID string) (approved, found bool, err error) {
	events, err := c.store.Events(ctx, issue)
	if err != nil {
		return false, false, err
	}
	for _, event := range events {
		if approved, ok := resolutionOf(event, requestID); ok {
			return approved, true, nil
		}
	}
	return false, false, nil
}

func resolutionOf(event *eventlog.EngineEvent, requestID string) (approved, matched bool) {
	if event.Type != eventlog.EventApprovalResolved {
		return false, false
	}
	if id, _ := event.Payload["request_id"].(string); id != requestID {
		return false, false
	}
	approved, _ = event.Payload["approved"].(bool)
	return approved, true
}

// execute forwards an allowed action to the executor, retrying transient
// failures with bounded exponential backoff. A panicking executor surfaces as
// an error instead of taking down the coordinator.
func (c *Coordinator) execute(ctx context.Context, issue int, act action.Action) error {
	run := panicerr.Safe(func() error {
		_, err := c.executor.Run(ctx, issue, act)
		return err
	})
	operation := func() error {
		err := run()
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxAttempts), ctx))
}

// failTask records the terminal failure even when ctx is already cancelled;
// the terminal event must land for the log to stay replayable.
func (c *Coordinator) failTask(ctx context.Context, issue int, payload map[string]any) error {
	_, err := c.store.Record(context.WithoutCancel(ctx), eventlog.EventTaskFailed, issue, payload)
	if err == nil {
		slog.Info("task failed", "issue", issue, "reason", payload["reason"])
	}
	return err
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
