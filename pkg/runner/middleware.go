package runner

import (
	"context"
	"fmt"

	"github.com/aretw0/weft/pkg/domain"
)

// EventInterceptor inspects or rewrites an inbound event before the
// session processes it. Returning false drops the event without
// failing the run loop.
type EventInterceptor func(ctx context.Context, ev domain.Event) (domain.Event, bool, error)

// ChainInterceptors runs interceptors in order; the first drop or
// error short-circuits.
func ChainInterceptors(interceptors ...EventInterceptor) EventInterceptor {
	return func(ctx context.Context, ev domain.Event) (domain.Event, bool, error) {
		for _, interceptor := range interceptors {
			next, ok, err := interceptor(ctx, ev)
			if err != nil || !ok {
				return ev, false, err
			}
			ev = next
		}
		return ev, true, nil
	}
}

// SanitizeInterceptor sanitizes the named string arguments of inbound
// events, rejecting events whose arguments fail validation.
func SanitizeInterceptor(argKeys ...string) EventInterceptor {
	return func(_ context.Context, ev domain.Event) (domain.Event, bool, error) {
		for _, key := range argKeys {
			raw, ok := ev.Arguments[key].(string)
			if !ok {
				continue
			}
			clean, err := SanitizeInput(raw)
			if err != nil {
				return ev, false, fmt.Errorf("argument %q: %w", key, err)
			}
			ev = ev.Clone()
			ev.Arguments[key] = clean
		}
		return ev, true, nil
	}
}

// AllowTypesInterceptor drops inbound events whose type is not listed.
// Hosts exposing the NDJSON mode to untrusted clients use it to keep
// internal event types out of the session.
func AllowTypesInterceptor(types ...string) EventInterceptor {
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	return func(_ context.Context, ev domain.Event) (domain.Event, bool, error) {
		return ev, allowed[ev.Type], nil
	}
}
