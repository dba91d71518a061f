package engine

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hearthvtt/hearth/internal/game/rollmux"
	"github.com/hearthvtt/hearth/internal/game/state"
	apperrors "github.com/hearthvtt/hearth/internal/platform/errors"
)

var tracer = otel.Tracer("github.com/hearthvtt/hearth/internal/game/engine")

// queueCapacity bounds how many actions may wait behind the one
// executing before the session refuses new submissions.
const queueCapacity = 16

// Result reports how one dispatched action ended: rejected at the
// pre-execution validation, faulted during execution, or committed.
type Result struct {
	Request Request
	Verdict Verdict
	Err     error
	Changes state.ChangeSet
}

// ReportFunc receives a job's result on the session's dispatch goroutine.
type ReportFunc func(Result)

type job struct {
	req    Request
	report ReportFunc
}

// Config assembles a session dispatcher.
type Config struct {
	Table    *state.Table
	Rolls    *rollmux.Mux
	Registry *Registry
	Notifier Notifier
}

// Session serializes action execution for one table: exactly one Execute
// runs at a time, and a second request queues behind the first so that
// suspension points never expose partially-mutated state. Independent
// sessions run in parallel with nothing shared.
type Session struct {
	registry *Registry
	table    *state.Table
	rolls    *rollmux.Mux
	notifier Notifier

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	jobs   chan job
	quit   chan struct{}
	done   chan struct{}
}

// NewSession starts the dispatch loop for one table. Close stops it.
func NewSession(ctx context.Context, cfg Config) *Session {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		registry: cfg.Registry,
		table:    cfg.Table,
		rolls:    cfg.Rolls,
		notifier: notifier,
		ctx:      sctx,
		cancel:   cancel,
		jobs:     make(chan job, queueCapacity),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.loop()
	return s
}

// Snapshot returns the table's current state.
func (s *Session) Snapshot() state.Snapshot {
	return s.table.Snapshot()
}

// Validate runs the validation stage for immediate feedback at intake.
// It is synchronous, side-effect free, and safe to call from any
// goroutine. Acceptance here is provisional: the state may move before
// the request reaches the front of the queue, so dispatch validates
// again just before executing.
func (s *Session) Validate(req Request) Verdict {
	handler, ok := s.registry.Handler(req.Type)
	if !ok {
		return Reject(unknownActionError(req.Type))
	}
	return handler.Validate(req, s.table.Snapshot())
}

// ApprovalMessage returns the line shown to the GM before the action is
// allowed to execute, and whether the action type is known.
func (s *Session) ApprovalMessage(req Request) (string, bool) {
	handler, ok := s.registry.Handler(req.Type)
	if !ok {
		return "", false
	}
	return handler.ApprovalMessage(req, s.table.Snapshot()), true
}

// Enqueue adds a request to the session's FIFO. The report callback runs
// on the dispatch goroutine once the action resolves; it must not block.
func (s *Session) Enqueue(req Request, report ReportFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.New(apperrors.CodeSessionClosed, "session is no longer accepting actions")
	}
	select {
	case s.jobs <- job{req: req, report: report}:
		return nil
	default:
		return apperrors.WithMetadata(
			apperrors.CodeActionQueueFull,
			"too many actions are already waiting",
			map[string]string{"SessionID": s.table.SessionID()},
		)
	}
}

// Close stops the dispatcher: the in-flight action is canceled through
// its context, queued actions are reported as rejected, and pending
// rolls are abandoned. Close returns once the loop has exited.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.rolls.Close()
	close(s.quit)
	<-s.done
}

// Done is closed when the dispatch loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		// Quit wins over queued work so a closing session drains
		// instead of starting another action.
		select {
		case <-s.quit:
			s.drain()
			return
		default:
		}
		select {
		case <-s.quit:
			s.drain()
			return
		case j := <-s.jobs:
			result := s.run(j.req)
			if j.report != nil {
				j.report(result)
			}
		}
	}
}

func (s *Session) drain() {
	for {
		select {
		case j := <-s.jobs:
			if j.report != nil {
				j.report(Result{
					Request: j.req,
					Err:     apperrors.New(apperrors.CodeSessionClosed, "session ended before the action ran"),
				})
			}
		default:
			return
		}
	}
}

// run executes one action: revalidate inside the serialized section,
// open the draft, execute, and commit whatever happened. Resources spent
// before a fault or timeout stay spent; nothing rolls back.
func (s *Session) run(req Request) Result {
	ctx, span := tracer.Start(s.ctx, "engine.action", trace.WithAttributes(
		attribute.String("action.type", req.Type),
		attribute.String("session.id", s.table.SessionID()),
		attribute.String("actor.id", req.ActorID),
	))
	defer span.End()

	result := Result{Request: req}

	handler, ok := s.registry.Handler(req.Type)
	if !ok {
		result.Verdict = Reject(unknownActionError(req.Type))
		return result
	}

	// The queue may have held this request while an earlier action
	// changed the state it was validated against at intake.
	verdict := handler.Validate(req, s.table.Snapshot())
	if !verdict.Accepted() {
		result.Verdict = verdict
		return result
	}

	draft, err := s.table.BeginDraft()
	if err != nil {
		result.Err = err
		return result
	}

	env := &Env{
		SessionID: s.table.SessionID(),
		Draft:     draft,
		Rolls:     s.rolls,
		notifier:  s.notifier,
	}
	execErr := s.execute(ctx, req, handler, env)
	result.Changes = draft.Commit()
	if execErr != nil {
		span.RecordError(execErr)
		result.Err = execErr
		s.notifier.ActionEvent(Event{
			SessionID: s.table.SessionID(),
			Kind:      EventActionFailed,
			Actor:     req.ActorID,
			Detail: map[string]string{
				"Action": req.Type,
				"Reason": execErr.Error(),
			},
		})
	}
	return result
}

func (s *Session) execute(ctx context.Context, req Request, handler Handler, env *Env) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Wrap(
				apperrors.CodeUnknown,
				fmt.Sprintf("action %s aborted", req.Type),
				fmt.Errorf("panic: %v", r),
			)
		}
	}()
	return handler.Execute(ctx, req, env)
}

func unknownActionError(actionType string) *apperrors.Error {
	return apperrors.WithMetadata(
		apperrors.CodeActionUnknown,
		fmt.Sprintf("unknown action type %q", actionType),
		map[string]string{"Type": actionType},
	)
}
