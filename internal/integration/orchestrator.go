package integration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Sender delivers a run to one target type.
type Sender interface {
	Deliver(ctx context.Context, target Target, run Run) Outcome
}

type Orchestrator struct {
	targets    TargetStore
	deliveries DeliveryStore
	senders    map[string]Sender
}

func NewOrchestrator(targets TargetStore, deliveries DeliveryStore, senders map[string]Sender) *Orchestrator {
	return &Orchestrator{targets: targets, deliveries: deliveries, senders: senders}
}

// Deliver sends run to every enabled target of its owner, restricted to
// targetIDs when given. Targets are delivered concurrently and their
// failures are recorded on their delivery rows, not returned.
func (o *Orchestrator) Deliver(ctx context.Context, run Run, targetIDs []string) error {
	targets, err := o.targets.ListEnabled(ctx, run.OwnerID, targetIDs)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	if len(targets) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "delivering extraction", "extraction_id", run.ID, "targets", len(targets))

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			o.deliverOne(ctx, t, run)
		}(t)
	}
	wg.Wait()
	return nil
}

func (o *Orchestrator) deliverOne(ctx context.Context, target Target, run Run) {
	id, err := o.deliveries.Create(ctx, target.ID, run.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create delivery", "target_id", target.ID, "error", err)
		return
	}
	if err := o.deliveries.MarkProcessing(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to mark delivery processing", "delivery_id", id, "error", err)
	}

	var outcome Outcome
	if sender, ok := o.senders[target.Type]; ok {
		outcome = sender.Deliver(ctx, target, run)
	} else {
		outcome = failed(nil, fmt.Errorf("%w: %s", ErrUnsupportedType, target.Type))
	}

	var msg *string
	if outcome.Err != nil {
		m := outcome.Err.Error()
		msg = &m
		slog.WarnContext(ctx, "delivery failed", "delivery_id", id, "target_id", target.ID, "type", target.Type, "error", m)
	}
	if err := o.deliveries.Complete(ctx, id, outcome.Status, outcome.ResponseStatus, msg); err != nil {
		slog.ErrorContext(ctx, "failed to complete delivery", "delivery_id", id, "error", err)
	}
}
