package events

import (
	"context"

	"github.com/absentify/allowance-engine/logger"
)

// Dispatcher hands a job off for execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// Handler executes jobs. allowance.Service implements it.
type Handler interface {
	HandleJob(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) HandleJob(ctx context.Context, job Job) error { return f(ctx, job) }

// Inline runs jobs synchronously in the dispatching goroutine. Failures are
// logged and swallowed: the operation that triggered the job has already
// succeeded.
type Inline struct {
	handler Handler
	log     *logger.Logger
}

func NewInline(handler Handler, log *logger.Logger) *Inline {
	return &Inline{handler: handler, log: log.WithComponent("inline_dispatcher")}
}

func (d *Inline) Dispatch(ctx context.Context, job Job) error {
	if err := d.handler.HandleJob(ctx, job); err != nil {
		d.log.Error().
			Err(err).
			Str("job_id", job.ID).
			Str("kind", string(job.Kind)).
			Str("workspace_id", string(job.WorkspaceID)).
			Str("member_id", string(job.MemberID)).
			Msg("recompute job failed")
	}
	return nil
}

// Nop drops every job.
type Nop struct{}

func (Nop) Dispatch(context.Context, Job) error { return nil }
