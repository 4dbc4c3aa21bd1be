package bridge

import (
	"context"
	"errors"

	"github.com/nerrad567/geofence-relay/internal/audit"
	"github.com/nerrad567/geofence-relay/internal/dispatch"
	"github.com/nerrad567/geofence-relay/internal/geofence"
	"github.com/nerrad567/geofence-relay/internal/metrics"
)

// HandleSignal classifies a raw platform signal, filters its ids against
// the registry and queues the event for the dispatcher.
//
// It never blocks. Signals that cannot be delivered are logged and counted
// at once, and audited by the audit worker; the returned error says why.
func (b *Bridge) HandleSignal(raw geofence.RawSignal) error {
	event, err := geofence.Classify(raw)
	if err != nil {
		reason := DropPlatformError
		if errors.Is(err, geofence.ErrClassificationDropped) {
			reason = DropUnknownTransition
		}
		b.dropSignal(reason, raw.TriggeringIDs, err)
		return err
	}

	ids, ok := b.registry.Admit(event.IDs)
	if !ok {
		b.dropSignal(DropNotRegistered, event.IDs, nil)
		return nil
	}
	event.IDs = ids

	select {
	case b.queue <- event:
		return nil
	default:
		b.dropSignal(DropQueueFull, event.IDs, ErrQueueFull)
		return ErrQueueFull
	}
}

func (b *Bridge) dropSignal(reason string, ids []string, err error) {
	if err != nil {
		b.logger.Warn("signal dropped", "reason", reason, "ids", ids, "error", err)
	} else {
		b.logger.Debug("signal dropped", "reason", reason, "ids", ids)
	}

	b.metrics.IncrementSignalDropped(reason)
	if b.telemetry != nil {
		b.telemetry.WriteSignalDropped(reason)
	}

	details := map[string]any{"reason": reason, "ids": ids}
	if ge := geofence.AsError(err); ge != nil {
		details["code"] = ge.Code
		if ge.StatusCode != 0 {
			details["status_code"] = ge.StatusCode
		}
	}
	b.queueDropAudit(&audit.Entry{
		Action:     audit.ActionSignalDropped,
		EntityType: audit.EntitySignal,
		EntityID:   joinIDs(ids),
		Source:     "platform",
		Outcome:    audit.OutcomeDropped,
		Details:    details,
	})
}

// queueDropAudit hands entry to the audit worker without blocking. A full
// queue discards the entry; the drop is still logged and counted.
func (b *Bridge) queueDropAudit(entry *audit.Entry) {
	if b.audit == nil {
		return
	}
	select {
	case b.drops <- entry:
	default:
		b.logger.Warn("audit queue full, drop entry discarded", "ids", entry.EntityID)
	}
}

// auditDrops writes queued drop entries until ctx is cancelled, then flushes
// whatever is still queued.
func (b *Bridge) auditDrops(ctx context.Context) {
	for {
		select {
		case entry := <-b.drops:
			b.writeAudit(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-b.drops:
					b.writeAudit(entry)
				default:
					return
				}
			}
		}
	}
}

// observeDispatch records each event the dispatcher handled.
func (b *Bridge) observeDispatch(event geofence.TransitionEvent, path dispatch.Path, err error) {
	outcome := audit.OutcomeOK
	details := map[string]any{
		"ids":            event.IDs,
		"transitionType": string(event.Type),
		"path":           string(path),
	}
	if err != nil {
		outcome = audit.OutcomeRejected
		details["error"] = err.Error()
	} else {
		b.metrics.IncrementTransition(string(event.Type), string(path))
		if b.telemetry != nil {
			b.telemetry.WriteTransition(string(event.Type), string(path), len(event.IDs))
		}
	}

	b.writeAudit(&audit.Entry{
		Action:     audit.ActionTransition,
		EntityType: audit.EntitySignal,
		EntityID:   joinIDs(event.IDs),
		Source:     "platform",
		Outcome:    outcome,
		Details:    details,
	})
}

// TaskReporter returns a HeadlessRunner completion callback that logs and
// counts finished tasks.
func TaskReporter(m *metrics.Metrics, logger Logger) func(dispatch.TaskReport) {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(r dispatch.TaskReport) {
		result := "ok"
		switch {
		case errors.Is(r.Err, dispatch.ErrTaskTimeout):
			result = "timeout"
			logger.Warn("headless task timed out", "task", r.Task.Name, "budget", r.Task.Timeout)
		case r.Err != nil:
			result = "error"
			logger.Error("headless task failed", "task", r.Task.Name, "error", r.Err)
		default:
			logger.Debug("headless task completed", "task", r.Task.Name, "elapsed", r.Elapsed)
		}
		m.IncrementHeadlessTask(result)
	}
}
