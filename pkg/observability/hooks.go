// Package observability provides tools for monitoring the weft engine:
// hook multiplexing for attaching several observers to one session,
// structured audit logging of lifecycle transitions, and an in-memory
// recorder for tests and diagnostics.
package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/weft/pkg/domain"
)

// Multiplex fans lifecycle callbacks out to every given hook set, in
// order. Nil callbacks are skipped.
func Multiplex(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnFlowStarted: func(ctx context.Context, fe *domain.FlowEvent) {
			for _, h := range hooks {
				if h.OnFlowStarted != nil {
					h.OnFlowStarted(ctx, fe)
				}
			}
		},
		OnFlowFinished: func(ctx context.Context, fe *domain.FlowEvent) {
			for _, h := range hooks {
				if h.OnFlowFinished != nil {
					h.OnFlowFinished(ctx, fe)
				}
			}
		},
		OnFlowAborted: func(ctx context.Context, fe *domain.FlowEvent) {
			for _, h := range hooks {
				if h.OnFlowAborted != nil {
					h.OnFlowAborted(ctx, fe)
				}
			}
		},
		OnFlowFailed: func(ctx context.Context, fe *domain.FlowEvent) {
			for _, h := range hooks {
				if h.OnFlowFailed != nil {
					h.OnFlowFailed(ctx, fe)
				}
			}
		},
		OnActionStarted: func(ctx context.Context, ae *domain.ActionEvent) {
			for _, h := range hooks {
				if h.OnActionStarted != nil {
					h.OnActionStarted(ctx, ae)
				}
			}
		},
		OnActionStopped: func(ctx context.Context, ae *domain.ActionEvent) {
			for _, h := range hooks {
				if h.OnActionStopped != nil {
					h.OnActionStopped(ctx, ae)
				}
			}
		},
		OnConflict: func(ctx context.Context, ce *domain.ConflictEvent) {
			for _, h := range hooks {
				if h.OnConflict != nil {
					h.OnConflict(ctx, ce)
				}
			}
		},
		OnUnhandledEvent: func(ctx context.Context, ev domain.Event) {
			for _, h := range hooks {
				if h.OnUnhandledEvent != nil {
					h.OnUnhandledEvent(ctx, ev)
				}
			}
		},
		OnContextWriteRace: func(ctx context.Context, r *domain.WriteRaceError) {
			for _, h := range hooks {
				if h.OnContextWriteRace != nil {
					h.OnContextWriteRace(ctx, r)
				}
			}
		},
	}
}

// NewAuditHooks returns hooks that log every lifecycle transition as a
// structured audit trail.
func NewAuditHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnFlowStarted: func(_ context.Context, fe *domain.FlowEvent) {
			logger.Info("flow started", "flow", fe.FlowID, "instance", fe.InstanceUID, "loop", fe.Loop)
		},
		OnFlowFinished: func(_ context.Context, fe *domain.FlowEvent) {
			logger.Info("flow finished", "flow", fe.FlowID, "instance", fe.InstanceUID)
		},
		OnFlowAborted: func(_ context.Context, fe *domain.FlowEvent) {
			logger.Info("flow aborted", "flow", fe.FlowID, "instance", fe.InstanceUID, "reason", fe.Reason)
		},
		OnFlowFailed: func(_ context.Context, fe *domain.FlowEvent) {
			logger.Warn("flow failed", "flow", fe.FlowID, "instance", fe.InstanceUID, "reason", fe.Reason)
		},
		OnActionStarted: func(_ context.Context, ae *domain.ActionEvent) {
			logger.Info("action started", "action", ae.ActionName, "uid", ae.ActionUID, "instance", ae.InstanceUID)
		},
		OnActionStopped: func(_ context.Context, ae *domain.ActionEvent) {
			logger.Info("action stopped", "action", ae.ActionName, "uid", ae.ActionUID)
		},
		OnConflict: func(_ context.Context, ce *domain.ConflictEvent) {
			logger.Info("conflict resolved", "channel", ce.Channel, "winner", ce.Winner, "losers", ce.Losers)
		},
		OnUnhandledEvent: func(_ context.Context, ev domain.Event) {
			logger.Debug("unhandled event", "type", ev.Type)
		},
		OnContextWriteRace: func(_ context.Context, r *domain.WriteRaceError) {
			logger.Warn("context write race", "key", r.Key)
		},
	}
}
