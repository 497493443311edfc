package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/agentgate/internal/eventbus"
	"github.com/kazz187/agentgate/internal/eventlog"
)

// Dispatcher turns approval-requested events into push notifications so a
// human sees pending decisions without tailing the log.
type Dispatcher struct {
	eventBus *eventbus.Bus
	sender   *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		sender:   sender,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.Info("push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Type == eventlog.EventApprovalRequested {
				d.handleApprovalRequested(ctx, event)
			}
		}
	}
}

func (d *Dispatcher) handleApprovalRequested(ctx context.Context, event *eventlog.EngineEvent) {
	requestID, _ := event.Payload["request_id"].(string)
	category, _ := event.Payload["category"].(string)
	target, _ := event.Payload["target"].(string)

	d.sender.SendToAll(ctx, &NotificationPayload{
		Title: "Approval Required",
		Body:  fmt.Sprintf("issue #%d wants %s on %s", event.IssueNumber, category, target),
		URL:   fmt.Sprintf("/approvals/%s", requestID),
		Tag:   requestID,
	})
}
