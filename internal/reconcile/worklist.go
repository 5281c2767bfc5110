// Package reconcile keeps the working set of invalid records shown during
// correction and prunes it when a contact is created or updated elsewhere.
package reconcile

import (
	"sort"
	"strings"
	"sync"

	"github.com/agentworkforce/contactsync/internal/identity"
	"github.com/agentworkforce/contactsync/internal/records"
	"github.com/agentworkforce/contactsync/internal/updatebus"
)

// Path names the matching rule that removed records.
type Path string

const (
	PathNone    Path = "none"
	PathPrimary Path = "primary"
	PathSoft    Path = "soft"
)

type Result struct {
	Removed   int  `json:"removed"`
	Path      Path `json:"path"`
	Remaining int  `json:"remaining"`
}

type Logger interface {
	Printf(format string, args ...any)
}

// Subscriber is the subscribe half of the update bus.
type Subscriber interface {
	Subscribe(listener updatebus.Listener) func()
}

type Worklist struct {
	mu         sync.Mutex
	items      []records.InvalidRecord
	processing map[identity.Key]struct{}
	selected   map[int]struct{}
	logger     Logger
}

func NewWorklist(items []records.InvalidRecord, logger Logger) *Worklist {
	w := &Worklist{logger: logger}
	w.Replace(items)
	return w
}

// Replace swaps in a freshly loaded working set. Markers and selection reset.
func (w *Worklist) Replace(items []records.InvalidRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.items = append([]records.InvalidRecord(nil), items...)
	w.processing = map[identity.Key]struct{}{}
	w.selected = map[int]struct{}{}
}

func (w *Worklist) Items() []records.InvalidRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]records.InvalidRecord(nil), w.items...)
}

func (w *Worklist) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

func (w *Worklist) Item(index int) (records.InvalidRecord, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if index < 0 || index >= len(w.items) {
		return records.InvalidRecord{}, false
	}
	return w.items[index], true
}

// IndexOf returns the current position of record, or -1 once it has left the
// worklist. Records are matched by client key, or by name, email and row when
// the key is blank.
func (w *Worklist) IndexOf(record records.InvalidRecord) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	blank := strings.TrimSpace(record.ClientKey.String()) == ""
	for i, item := range w.items {
		if !blank {
			if identity.Equivalent(item.ClientKey, record.ClientKey) {
				return i
			}
			continue
		}
		if strings.TrimSpace(item.ClientKey.String()) == "" &&
			item.Name == record.Name && item.Email == record.Email && item.Row == record.Row {
			return i
		}
	}
	return -1
}

// ErrorCount sums the error messages attached to the remaining records.
func (w *Worklist) ErrorCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, item := range w.items {
		n += len(item.Errors)
	}
	return n
}

// Apply removes the records addressed by a created or updated event. Other
// event types are ignored. The soft name+email match only runs when the
// primary identity match removed nothing.
func (w *Worklist) Apply(event updatebus.Event) Result {
	if event.Type != updatebus.ContactCreated && event.Type != updatebus.ContactUpdated {
		return Result{Path: PathNone, Remaining: w.Len()}
	}
	key := event.Key
	if key.IsZero() && event.Contact != nil {
		key = event.Contact.ClientKey
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path := PathNone
	matched := w.removeLocked(func(item records.InvalidRecord) bool {
		return identity.Equivalent(item.ClientKey, key)
	})
	if len(matched) > 0 {
		path = PathPrimary
	} else if event.Contact != nil {
		name := strings.TrimSpace(event.Contact.Name)
		email := strings.TrimSpace(event.Contact.Email)
		if name != "" && email != "" {
			matched = w.removeLocked(func(item records.InvalidRecord) bool {
				return strings.EqualFold(strings.TrimSpace(item.Name), name) &&
					strings.EqualFold(strings.TrimSpace(item.Email), email)
			})
			if len(matched) > 0 {
				path = PathSoft
				w.logf("soft match removed %d invalid record(s) for %s <%s>", len(matched), name, email)
			}
		}
	}

	removed := len(matched)
	w.clearProcessingLocked(key)
	for _, item := range matched {
		w.clearProcessingLocked(item.ClientKey)
	}
	w.selected = map[int]struct{}{}
	if removed == 0 {
		w.logf("no invalid record matched %s event for %q", event.Type, key.String())
	}
	return Result{Removed: removed, Path: path, Remaining: len(w.items)}
}

// Attach prunes the worklist on every bus event until the returned function
// is called.
func (w *Worklist) Attach(bus Subscriber) func() {
	return bus.Subscribe(updatebus.ListenerFunc(func(event updatebus.Event) {
		w.Apply(event)
	}))
}

// Remove drops the record at index after a manual correction.
func (w *Worklist) Remove(index int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if index < 0 || index >= len(w.items) {
		return false
	}
	key := w.items[index].ClientKey
	w.items = append(w.items[:index], w.items[index+1:]...)
	w.clearProcessingLocked(key)
	w.selected = map[int]struct{}{}
	return true
}

func (w *Worklist) MarkProcessing(key identity.Key) {
	if key.IsZero() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.processing[key] = struct{}{}
}

func (w *Worklist) ClearProcessing(key identity.Key) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clearProcessingLocked(key)
}

func (w *Worklist) IsProcessing(key identity.Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for marked := range w.processing {
		if identity.Equivalent(marked, key) {
			return true
		}
	}
	return false
}

func (w *Worklist) ProcessingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.processing)
}

// Select adds indices to the selection. Out of range indices are ignored.
func (w *Worklist) Select(indices ...int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, i := range indices {
		if i >= 0 && i < len(w.items) {
			w.selected[i] = struct{}{}
		}
	}
}

func (w *Worklist) Selected() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]int, 0, len(w.selected))
	for i := range w.selected {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (w *Worklist) ClearSelection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selected = map[int]struct{}{}
}

func (w *Worklist) removeLocked(match func(records.InvalidRecord) bool) []records.InvalidRecord {
	kept := make([]records.InvalidRecord, 0, len(w.items))
	var removed []records.InvalidRecord
	for _, item := range w.items {
		if match(item) {
			removed = append(removed, item)
			continue
		}
		kept = append(kept, item)
	}
	w.items = kept
	return removed
}

func (w *Worklist) clearProcessingLocked(key identity.Key) {
	for marked := range w.processing {
		if identity.Equivalent(marked, key) {
			delete(w.processing, marked)
		}
	}
}

func (w *Worklist) logf(format string, args ...any) {
	if w.logger == nil {
		return
	}
	w.logger.Printf(format, args...)
}
