package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	weft "github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
)

// Runner drives a single session of a weft engine against an
// IOHandler: read an event, process it, present the output, save. The
// loop ends cleanly on io.EOF from the handler.
type Runner struct {
	engine      *weft.Engine
	handler     IOHandler
	interceptor EventInterceptor
	logger      *slog.Logger
	sessionID   string
	resume      bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithIOHandler sets the IO strategy. Default is a TextHandler on
// stdin/stdout.
func WithIOHandler(h IOHandler) Option {
	return func(r *Runner) { r.handler = h }
}

// WithInterceptor installs an inbound event interceptor. Use
// ChainInterceptors to combine several.
func WithInterceptor(i EventInterceptor) Option {
	return func(r *Runner) { r.interceptor = i }
}

// WithLogger sets the structured logger for loop diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithSessionID pins the session identifier. Required for durable
// sessions; empty means a generated id.
func WithSessionID(id string) Option {
	return func(r *Runner) { r.sessionID = id }
}

// WithResume makes the runner restore the session from the engine's
// store when a snapshot exists, instead of always starting fresh.
func WithResume() Option {
	return func(r *Runner) { r.resume = true }
}

// New creates a runner for the engine.
func New(engine *weft.Engine, opts ...Option) *Runner {
	r := &Runner{engine: engine}
	for _, opt := range opts {
		opt(r)
	}
	if r.handler == nil {
		r.handler = NewTextHandler(nil, nil)
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	return r
}

// Run executes the session loop until the handler reports io.EOF or
// the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	sess, bootstrap, err := r.openSession(ctx)
	if err != nil {
		return err
	}
	if len(bootstrap) > 0 {
		settled, err := sess.Settle(ctx, bootstrap)
		if err != nil {
			return fmt.Errorf("process error: %w", err)
		}
		if err := r.handler.Output(ctx, settled); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}
	if err := r.save(ctx, sess); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := r.handler.Input(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("input error: %w", err)
		}

		if r.interceptor != nil {
			next, ok, err := r.interceptor(ctx, ev)
			if err != nil {
				r.logger.Warn("event rejected", "type", ev.Type, "error", err)
				if err := r.handler.SystemOutput(ctx, fmt.Sprintf("rejected: %v", err)); err != nil {
					return err
				}
				continue
			}
			if !ok {
				r.logger.Debug("event dropped", "type", ev.Type)
				continue
			}
			ev = next
		}

		out, err := sess.ProcessAll(ctx, ev)
		if err != nil {
			return fmt.Errorf("process error: %w", err)
		}
		if err := r.handler.Output(ctx, out); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
		if err := r.save(ctx, sess); err != nil {
			return err
		}
	}
}

// openSession restores the pinned session when resuming, otherwise
// starts a fresh one. The returned events are the bootstrap output of
// a fresh session, nil on restore.
func (r *Runner) openSession(ctx context.Context) (*weft.Session, []domain.Event, error) {
	if r.resume && r.sessionID != "" && r.engine.Sessions() != nil {
		sess, err := r.engine.LoadSession(ctx, r.sessionID)
		if err == nil {
			r.logger.Info("session resumed", "session_id", r.sessionID)
			return sess, nil, nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return nil, nil, err
		}
	}
	return r.engine.NewSession(ctx, r.sessionID)
}

func (r *Runner) save(ctx context.Context, sess *weft.Session) error {
	if r.engine.Sessions() == nil || r.sessionID == "" {
		return nil
	}
	if err := sess.Save(ctx); err != nil {
		return fmt.Errorf("persistence error: %w", err)
	}
	return nil
}
