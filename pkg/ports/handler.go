package ports

import (
	"context"

	"github.com/aretw0/weft/pkg/domain"
)

// ActionHandler executes actions on behalf of the host. The runtime
// emits Start events; a handler may complete an action immediately by
// returning the paired Finished event, or return nil and deliver the
// completion asynchronously through Session.Process.
//
// Handlers also receive Stop events and should cancel the referenced
// action; no Finished event is expected for a stopped action.
type ActionHandler interface {
	Handle(ctx context.Context, ev domain.Event) (*domain.Event, error)
}

// ActionHandlerFunc adapts a function to the ActionHandler interface.
type ActionHandlerFunc func(ctx context.Context, ev domain.Event) (*domain.Event, error)

func (f ActionHandlerFunc) Handle(ctx context.Context, ev domain.Event) (*domain.Event, error) {
	return f(ctx, ev)
}
