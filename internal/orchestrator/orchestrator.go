// Package orchestrator walks a run through the stage graph: execute the
// current stage, route on the new state, persist a snapshot, repeat until the
// terminal marker.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lucasnoah/sdlcfactory/internal/human"
	"github.com/lucasnoah/sdlcfactory/internal/logging"
	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
	"github.com/lucasnoah/sdlcfactory/internal/router"
)

var (
	// ErrStepBudget ends a run whose automated segment exceeded its step bound.
	ErrStepBudget = errors.New("automated step budget exhausted")
	// ErrUnknownStage is returned when the graph routes to a stage it lacks.
	ErrUnknownStage = errors.New("unknown stage")
)

// Event types emitted to the Observer and the event log.
const (
	EventRunStarted   = "run_started"
	EventStage        = "stage_completed"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventRunAborted   = "run_aborted"
)

// Event describes one step of a run.
type Event struct {
	RunID      string           `json:"run_id"`
	Type       string           `json:"type"`
	Stage      pipeline.StageID `json:"stage,omitempty"`
	Attempt    int              `json:"attempt,omitempty"`
	Next       pipeline.StageID `json:"next,omitempty"`
	Forced     bool             `json:"forced,omitempty"`
	NoOp       bool             `json:"no_op,omitempty"`
	Detail     string           `json:"detail,omitempty"`
	DurationMs int64            `json:"duration_ms,omitempty"`
	Time       time.Time        `json:"time"`
}

// Observer receives every event of a run.
type Observer func(Event)

// EventLog persists run events and stage executions.
type EventLog interface {
	LogRunEvent(runID, event, stage string, attempt int, detail string) error
	LogStageRun(runID, stage string, attempt int, next string, forced, noOp bool, durationMs int64) error
}

// Persister saves the final artifacts of a completed run.
type Persister interface {
	Persist(ctx context.Context, runID string, s pipeline.State) error
}

// Options configures an Orchestrator. Every field is optional.
type Options struct {
	Store             *pipeline.Store
	Events            EventLog
	Persister         Persister
	Observer          Observer
	MaxAutomatedSteps int // 0 derives the bound from the default caps
	Logger            *logging.Logger
}

// Orchestrator executes runs over a Graph.
type Orchestrator struct {
	graph     *Graph
	store     *pipeline.Store
	events    EventLog
	persister Persister
	observer  Observer
	maxSteps  int
	log       *logging.Logger
	progress  io.Writer
}

// New creates an Orchestrator over g.
func New(g *Graph, opts Options) *Orchestrator {
	maxSteps := opts.MaxAutomatedSteps
	if maxSteps <= 0 {
		maxSteps = router.DefaultCaps().MaxAutomatedSteps()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Orchestrator{
		graph:     g,
		store:     opts.Store,
		events:    opts.Events,
		persister: opts.Persister,
		observer:  opts.Observer,
		maxSteps:  maxSteps,
		log:       log,
	}
}

// SetProgress sets a writer for human-readable progress lines.
func (o *Orchestrator) SetProgress(w io.Writer) {
	o.progress = w
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.progress != nil {
		fmt.Fprintf(o.progress, "  → "+format+"\n", args...)
	}
}

// Run executes a run from the graph entry with initial state s and returns
// the final state.
func (o *Orchestrator) Run(ctx context.Context, runID string, s pipeline.State) (pipeline.State, error) {
	return o.RunFrom(ctx, runID, o.graph.Entry, s)
}

// Resume continues a stored run from its recorded stage and state.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (pipeline.State, error) {
	if o.store == nil {
		return pipeline.State{}, errors.New("resume requires a run store")
	}
	rec, err := o.store.Get(runID)
	if err != nil {
		return pipeline.State{}, err
	}
	if rec.Status == pipeline.StatusCompleted || rec.CurrentStage == pipeline.Terminal {
		return rec.State, nil
	}
	from := rec.CurrentStage
	if from == "" {
		from = o.graph.Entry
	}
	return o.runFrom(ctx, runID, from, rec.State, automatedSteps(rec.StageHistory))
}

// automatedSteps counts the recorded executions that draw on the step budget.
func automatedSteps(history []pipeline.StageHistoryEntry) int {
	n := 0
	for _, h := range history {
		if automated(h.Stage) {
			n++
		}
	}
	return n
}

// RunFrom executes a run starting at stage from. Cancellation is honoured
// between stages only; a stage that has started is allowed to finish.
func (o *Orchestrator) RunFrom(ctx context.Context, runID string, from pipeline.StageID, s pipeline.State) (pipeline.State, error) {
	return o.runFrom(ctx, runID, from, s, 0)
}

// runFrom is RunFrom with steps automated stages already spent.
func (o *Orchestrator) runFrom(ctx context.Context, runID string, from pipeline.StageID, s pipeline.State, steps int) (pipeline.State, error) {
	if err := o.graph.Validate(); err != nil {
		return s, fmt.Errorf("invalid graph: %w", err)
	}
	log := o.log.WithRun(runID)

	o.setStatus(runID, pipeline.StatusInProgress, "")
	o.emit(Event{RunID: runID, Type: EventRunStarted, Stage: from})
	o.logf("run %s starting at %s", runID, from)

	current := from
	for {
		if err := ctx.Err(); err != nil {
			return s, o.abort(runID, current, err)
		}
		node, ok := o.graph.Nodes[current]
		if !ok {
			return s, o.fail(runID, current, fmt.Errorf("%w: %q", ErrUnknownStage, current))
		}
		if automated(current) {
			steps++
			if steps > o.maxSteps {
				return s, o.fail(runID, current, fmt.Errorf("%w: %d steps reached before %s", ErrStepBudget, o.maxSteps, current))
			}
		}

		before := s.Attempts(current)
		start := time.Now()
		next, err := node.Run(ctx, s)
		elapsed := time.Since(start)
		if err != nil {
			if isAbort(err) {
				return s, o.abort(runID, current, err)
			}
			return s, o.fail(runID, current, fmt.Errorf("stage %s: %w", current, err))
		}
		s = next

		d := node.successor(s)
		after := s.Attempts(current)
		entry := pipeline.StageHistoryEntry{
			Stage:    current,
			Attempt:  max(after, 0),
			Next:     d.Next,
			Forced:   d.Forced,
			NoOp:     before >= 0 && after == before,
			Duration: elapsed.Round(time.Millisecond).String(),
		}
		if err := o.snapshot(runID, s, entry); err != nil {
			return s, o.fail(runID, current, err)
		}
		if o.events != nil {
			_ = o.events.LogStageRun(runID, string(current), entry.Attempt, string(d.Next), d.Forced, entry.NoOp, elapsed.Milliseconds())
		}
		o.emit(Event{
			RunID:      runID,
			Type:       EventStage,
			Stage:      current,
			Attempt:    entry.Attempt,
			Next:       d.Next,
			Forced:     d.Forced,
			NoOp:       entry.NoOp,
			Detail:     d.Reason,
			DurationMs: elapsed.Milliseconds(),
		})
		log.Debug("stage completed", "stage", current, "attempt", entry.Attempt, "next", d.Next,
			"forced", d.Forced, "no_op", entry.NoOp, "duration", elapsed)
		if d.Forced {
			log.Warn("attempt cap reached; accepting", "stage", current, "reason", d.Reason)
			o.logf("%s", d.Reason)
		}

		if d.Next == pipeline.Terminal {
			return o.finish(ctx, runID, s)
		}
		current = d.Next
	}
}

// finish derives the final artifacts and persists them exactly once.
func (o *Orchestrator) finish(ctx context.Context, runID string, s pipeline.State) (pipeline.State, error) {
	s = s.Clone()
	s.FinalCode = s.GeneratedCode.Render()
	s.FinalTestCases = pipeline.FinalTests(s.TestCases)

	if o.persister != nil {
		if err := o.persister.Persist(ctx, runID, s); err != nil {
			return s, o.fail(runID, pipeline.Terminal, fmt.Errorf("persist final artifacts: %w", err))
		}
	}
	if o.store != nil {
		err := o.store.Update(runID, func(r *pipeline.RunRecord) {
			r.Status = pipeline.StatusCompleted
			r.CurrentStage = pipeline.Terminal
			r.State = s
			r.Error = ""
		})
		if err != nil {
			return s, fmt.Errorf("record completion: %w", err)
		}
	}
	o.emit(Event{RunID: runID, Type: EventRunCompleted})
	o.logf("run %s completed", runID)
	o.log.WithRun(runID).Info("run completed", "code_roles", s.GeneratedCode.Len())
	return s, nil
}

func (o *Orchestrator) snapshot(runID string, s pipeline.State, entry pipeline.StageHistoryEntry) error {
	if o.store == nil {
		return nil
	}
	err := o.store.Update(runID, func(r *pipeline.RunRecord) {
		r.Steps++
		r.CurrentStage = entry.Next
		r.StageHistory = append(r.StageHistory, entry)
		r.State = s
	})
	if err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

func (o *Orchestrator) setStatus(runID, status, msg string) {
	if o.store == nil {
		return
	}
	_ = o.store.Update(runID, func(r *pipeline.RunRecord) {
		r.Status = status
		r.Error = msg
	})
}

func (o *Orchestrator) fail(runID string, at pipeline.StageID, err error) error {
	o.setStatus(runID, pipeline.StatusFailed, err.Error())
	o.emit(Event{RunID: runID, Type: EventRunFailed, Stage: at, Detail: err.Error()})
	o.logf("run %s failed at %s: %v", runID, at, err)
	o.log.WithRun(runID).Error("run failed", "stage", at, "error", err)
	return err
}

func (o *Orchestrator) abort(runID string, at pipeline.StageID, err error) error {
	o.setStatus(runID, pipeline.StatusAborted, err.Error())
	o.emit(Event{RunID: runID, Type: EventRunAborted, Stage: at, Detail: err.Error()})
	o.logf("run %s aborted at %s", runID, at)
	o.log.WithRun(runID).Warn("run aborted", "stage", at, "error", err)
	return fmt.Errorf("run %s aborted at %s: %w", runID, at, err)
}

// emit stamps e and forwards it to the event log and the observer.
func (o *Orchestrator) emit(e Event) {
	e.Time = time.Now().UTC()
	if o.events != nil {
		detail := e.Detail
		if e.Next != "" {
			detail = fmt.Sprintf("next=%s %s", e.Next, e.Detail)
		}
		_ = o.events.LogRunEvent(e.RunID, e.Type, string(e.Stage), e.Attempt, detail)
	}
	if o.observer != nil {
		o.observer(e)
	}
}

func isAbort(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, human.ErrAborted)
}
