package correction

import (
	"context"
	"fmt"
	"time"

	"github.com/agentworkforce/contactsync/internal/identity"
	"github.com/agentworkforce/contactsync/internal/reconcile"
	"github.com/agentworkforce/contactsync/internal/records"
	"github.com/agentworkforce/contactsync/internal/session"
)

// Client is the part of the contact API the workflow drives.
type Client interface {
	Lookup
	InvalidData(ctx context.Context) ([]records.InvalidRecord, error)
	Create(ctx context.Context, contact records.Contact) (records.Contact, error)
	Update(ctx context.Context, key identity.Key, contact records.Contact) (records.Contact, error)
}

type WorkflowOptions struct {
	Now    func() time.Time
	Logger Logger
}

// Workflow ties the worklist, the queue and the form handoff together.
type Workflow struct {
	client   Client
	backend  session.Backend
	worklist *reconcile.Worklist
	queue    *Queue
	resolver *Resolver
	logger   Logger
}

// Progress is returned when a correction begins or moves to the next item.
type Progress struct {
	Step       *Step       `json:"step,omitempty"`
	Navigation *Navigation `json:"navigation,omitempty"`
}

// Outcome reports a finished form.
type Outcome struct {
	Saved     *records.Contact `json:"saved,omitempty"`
	Kind      Kind             `json:"kind,omitempty"`
	Progress  Progress         `json:"progress"`
	Remaining int              `json:"remaining"`
}

// Pending is the persisted handoff between the correction list and the form.
type Pending struct {
	Callback *Callback      `json:"callback,omitempty"`
	Prefill  *PrefilledForm `json:"prefill,omitempty"`
	Queue    *QueueState    `json:"queue,omitempty"`
}

func NewWorkflow(client Client, backend session.Backend, worklist *reconcile.Worklist, opts WorkflowOptions) (*Workflow, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if worklist == nil {
		worklist = reconcile.NewWorklist(nil, opts.Logger)
	}
	queue, err := NewQueue(backend, opts.Logger)
	if err != nil {
		return nil, err
	}
	resolver, err := NewResolver(client, backend, opts.Now, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Workflow{
		client:   client,
		backend:  backend,
		worklist: worklist,
		queue:    queue,
		resolver: resolver,
		logger:   opts.Logger,
	}, nil
}

func (w *Workflow) Worklist() *reconcile.Worklist {
	return w.worklist
}

func (w *Workflow) Queue() *Queue {
	return w.queue
}

// Load replaces the worklist with the current invalid rows.
func (w *Workflow) Load(ctx context.Context) (int, error) {
	rows, err := w.client.InvalidData(ctx)
	if err != nil {
		return 0, err
	}
	w.worklist.Replace(rows)
	return len(rows), nil
}

// CorrectOne starts the correction of a single worklist row.
func (w *Workflow) CorrectOne(ctx context.Context, index int) (Navigation, error) {
	record, ok := w.worklist.Item(index)
	if !ok {
		return Navigation{}, fmt.Errorf("%w: %d", ErrItemOutOfRange, index)
	}
	return w.resolve(ctx, Item{Record: record, Index: index})
}

// StartMass queues the rows at indices, or the current selection when no
// indices are given, and resolves the first one.
func (w *Workflow) StartMass(ctx context.Context, indices []int) (Progress, error) {
	if len(indices) == 0 {
		indices = w.worklist.Selected()
	}
	items := make([]Item, 0, len(indices))
	for _, index := range indices {
		record, ok := w.worklist.Item(index)
		if !ok {
			return Progress{}, fmt.Errorf("%w: %d", ErrItemOutOfRange, index)
		}
		items = append(items, Item{Record: record, Index: index})
	}
	step, err := w.queue.Start(items)
	if err != nil {
		return Progress{Step: &step}, err
	}
	return w.follow(ctx, step)
}

// Submit saves the form for the correction in progress, then moves the queue
// forward when one is active. A failed save leaves every piece of state as it
// was so the form can be corrected and submitted again.
func (w *Workflow) Submit(ctx context.Context, form records.Contact) (Outcome, error) {
	var callback Callback
	ok, err := loadDocument(w.backend, session.CorrectionCallback, &callback)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		if active, _ := w.queue.Active(); active != nil {
			return Outcome{}, fmt.Errorf("%w: queued key %s is unresolved, resume the queue", ErrNoActiveCorrection, active.Record.ClientKey)
		}
		return Outcome{}, ErrNoActiveCorrection
	}

	if form.ClientKey.IsZero() {
		form.ClientKey = callback.Key
	}
	var saved records.Contact
	switch callback.Kind {
	case KindEdit:
		saved, err = w.client.Update(ctx, callback.Key, form)
	case KindCreate:
		saved, err = w.client.Create(ctx, form)
	default:
		return Outcome{}, fmt.Errorf("decode %s: unknown kind %q", session.CorrectionCallback, callback.Kind)
	}
	if err != nil {
		return Outcome{}, err
	}
	w.worklist.ClearProcessing(callback.Key)
	if err := w.clearHandoff(); err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Saved: &saved, Kind: callback.Kind}
	progress, err := w.advanceIfQueued(ctx)
	outcome.Progress = progress
	outcome.Remaining = w.worklist.Len()
	return outcome, err
}

// Skip leaves the active queue item uncorrected and moves on.
func (w *Workflow) Skip(ctx context.Context) (Outcome, error) {
	active, err := w.queue.Active()
	if err != nil {
		return Outcome{}, err
	}
	if active == nil {
		return Outcome{}, ErrNoActiveQueue
	}
	w.worklist.ClearProcessing(active.Record.ClientKey)
	if err := w.clearHandoff(); err != nil {
		return Outcome{}, err
	}
	progress, err := w.advanceIfQueued(ctx)
	return Outcome{Progress: progress, Remaining: w.worklist.Len()}, err
}

// Resume resolves the active queue item again. A queue halts on its active
// item when the lookup for it fails; this picks it back up.
func (w *Workflow) Resume(ctx context.Context) (Progress, error) {
	state, ok, err := w.queue.State()
	if err != nil {
		return Progress{}, err
	}
	if !ok {
		return Progress{}, ErrNoActiveQueue
	}
	return w.follow(ctx, stepFor(state))
}

// Cancel abandons the correction in progress, queued or not.
func (w *Workflow) Cancel() error {
	var callback Callback
	if ok, err := loadDocument(w.backend, session.CorrectionCallback, &callback); err == nil && ok {
		w.worklist.ClearProcessing(callback.Key)
	}
	w.worklist.ClearSelection()
	return w.queue.Cancel()
}

// MarkCorrected drops a row the user fixed by other means.
func (w *Workflow) MarkCorrected(index int) error {
	if !w.worklist.Remove(index) {
		return fmt.Errorf("%w: %d", ErrItemOutOfRange, index)
	}
	return nil
}

// Pending returns whatever handoff state is persisted.
func (w *Workflow) Pending() (Pending, error) {
	var out Pending
	var callback Callback
	ok, err := loadDocument(w.backend, session.CorrectionCallback, &callback)
	if err != nil {
		return Pending{}, err
	}
	if ok {
		out.Callback = &callback
	}
	var prefill PrefilledForm
	ok, err = loadDocument(w.backend, session.PrefilledContactKey, &prefill)
	if err != nil {
		return Pending{}, err
	}
	if ok {
		out.Prefill = &prefill
	}
	state, ok, err := w.queue.State()
	if err != nil {
		return Pending{}, err
	}
	if ok {
		out.Queue = &state
	}
	return out, nil
}

func (w *Workflow) advanceIfQueued(ctx context.Context) (Progress, error) {
	if _, active, err := w.queue.State(); err != nil || !active {
		return Progress{}, err
	}
	step, err := w.queue.Advance()
	if err != nil {
		return Progress{}, err
	}
	if step.Done {
		w.logf("mass correction completed")
		return Progress{Step: &step}, nil
	}
	return w.follow(ctx, step)
}

func (w *Workflow) follow(ctx context.Context, step Step) (Progress, error) {
	progress := Progress{Step: &step}
	if step.Item == nil {
		return progress, nil
	}
	item := *step.Item
	item.Index = w.worklist.IndexOf(item.Record)
	step.Item = &item
	nav, err := w.resolve(ctx, item)
	if err != nil {
		return progress, err
	}
	progress.Navigation = &nav
	return progress, nil
}

func (w *Workflow) resolve(ctx context.Context, item Item) (Navigation, error) {
	w.worklist.MarkProcessing(item.Record.ClientKey)
	nav, err := w.resolver.Resolve(ctx, item)
	if err != nil {
		w.worklist.ClearProcessing(item.Record.ClientKey)
		return Navigation{}, err
	}
	return nav, nil
}

func (w *Workflow) clearHandoff() error {
	if err := w.backend.Clear(session.CorrectionCallback); err != nil {
		return err
	}
	return w.backend.Clear(session.PrefilledContactKey)
}

func (w *Workflow) logf(format string, args ...any) {
	if w.logger == nil {
		return
	}
	w.logger.Printf(format, args...)
}
