package correction

import (
	"fmt"

	"github.com/agentworkforce/contactsync/internal/identity"
	"github.com/agentworkforce/contactsync/internal/session"
)

type Logger interface {
	Printf(format string, args ...any)
}

// Step is what the consumer should do next.
type Step struct {
	// Item is the record to process next. Nil once the batch is done.
	Item     *Item `json:"item,omitempty"`
	Done     bool  `json:"done"`
	Position int   `json:"position"`
	Total    int   `json:"total"`
	Skipped  int   `json:"skipped"`
}

// Queue is the persisted Idle -> Active -> Idle state machine for a batch.
// The absence of the queue document means Idle.
type Queue struct {
	backend session.Backend
	logger  Logger
}

func NewQueue(backend session.Backend, logger Logger) (*Queue, error) {
	if backend == nil {
		return nil, fmt.Errorf("session backend is required")
	}
	return &Queue{backend: backend, logger: logger}, nil
}

// Start filters out items without a usable client key and makes the first
// remaining item active. It replaces any queue already in progress.
func (q *Queue) Start(items []Item) (Step, error) {
	usable := make([]Item, 0, len(items))
	for _, item := range items {
		n, ok := identity.Resolve(item.Record.ClientKey.String())
		if !ok {
			continue
		}
		item.ResolvedKey = n
		usable = append(usable, item)
	}
	skipped := len(items) - len(usable)
	if len(usable) == 0 {
		return Step{Skipped: skipped}, fmt.Errorf("%w: %d item(s) skipped", ErrEmptyBatch, skipped)
	}
	if _, active, err := q.State(); err != nil {
		return Step{}, err
	} else if active {
		q.logf("replacing correction queue already in progress")
	}

	first := usable[0]
	state := QueueState{
		Remaining:  usable[1:],
		TotalCount: len(usable),
		Skipped:    skipped,
		Active:     &first,
	}
	if err := saveDocument(q.backend, session.MassCorrectionQueue, state); err != nil {
		return Step{}, err
	}
	q.logf("correction queue started: %d item(s), %d skipped", state.TotalCount, skipped)
	return stepFor(state), nil
}

// Advance completes the active item. It activates the next one or, when none
// remain, clears the queue and reports Done.
func (q *Queue) Advance() (Step, error) {
	state, ok, err := q.State()
	if err != nil {
		return Step{}, err
	}
	if !ok {
		return Step{}, ErrNoActiveQueue
	}
	state.CompletedCount++
	if len(state.Remaining) == 0 {
		if err := q.backend.Clear(session.MassCorrectionQueue); err != nil {
			return Step{}, err
		}
		q.logf("correction queue completed: %d item(s)", state.CompletedCount)
		return Step{Done: true, Position: state.CompletedCount, Total: state.TotalCount, Skipped: state.Skipped}, nil
	}
	next := state.Remaining[0]
	state.Remaining = state.Remaining[1:]
	state.Active = &next
	if err := saveDocument(q.backend, session.MassCorrectionQueue, state); err != nil {
		return Step{}, err
	}
	return stepFor(state), nil
}

// Cancel abandons the batch together with any in-flight callback and
// prefilled form. It is safe to call when idle.
func (q *Queue) Cancel() error {
	for _, key := range []string{session.MassCorrectionQueue, session.CorrectionCallback, session.PrefilledContactKey} {
		if err := q.backend.Clear(key); err != nil {
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}
	return nil
}

// State returns the persisted queue and whether one is in progress.
func (q *Queue) State() (QueueState, bool, error) {
	var state QueueState
	ok, err := loadDocument(q.backend, session.MassCorrectionQueue, &state)
	if err != nil || !ok {
		return QueueState{}, false, err
	}
	if state.Active == nil {
		return QueueState{}, false, fmt.Errorf("decode %s: missing active item", session.MassCorrectionQueue)
	}
	return state, true, nil
}

// Active returns the item currently being corrected, if any.
func (q *Queue) Active() (*Item, error) {
	state, ok, err := q.State()
	if err != nil || !ok {
		return nil, err
	}
	return state.Active, nil
}

func stepFor(state QueueState) Step {
	return Step{
		Item:     state.Active,
		Position: state.Position(),
		Total:    state.TotalCount,
		Skipped:  state.Skipped,
	}
}

func (q *Queue) logf(format string, args ...any) {
	if q.logger == nil {
		return
	}
	q.logger.Printf(format, args...)
}
