// Package updatebus carries contact change notifications between the API
// client and every component that keeps derived state.
package updatebus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/agentworkforce/contactsync/internal/identity"
	"github.com/agentworkforce/contactsync/internal/records"
)

type EventType string

const (
	ContactCreated EventType = "contact-created"
	ContactUpdated EventType = "contact-updated"
	ContactDeleted EventType = "contact-deleted"
	DataReloaded   EventType = "data-reloaded"
)

// Event is one change notification. Contact is set for created and updated
// events; Key names the addressed record for updated and deleted events;
// Reload carries the server summary of a source reload.
type Event struct {
	ID        string           `json:"id"`
	Type      EventType        `json:"type"`
	Contact   *records.Contact `json:"data,omitempty"`
	Key       identity.Key     `json:"clave,omitzero"`
	Reload    json.RawMessage  `json:"reload,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

type Listener func(Event) error

// ListenerFunc adapts a listener that cannot fail.
func ListenerFunc(fn func(Event)) Listener {
	return func(event Event) error {
		fn(event)
		return nil
	}
}

// Publisher is the side of the bus the API client depends on.
type Publisher interface {
	Publish(event Event) error
}

type Logger interface {
	Printf(format string, args ...any)
}

type subscription struct {
	id       uint64
	listener Listener
}

// Bus dispatches synchronously, in subscription order, to the listeners
// subscribed when Publish is called. Nothing is buffered for later subscribers.
type Bus struct {
	logger Logger
	now    func() time.Time

	mu     sync.Mutex
	nextID uint64
	subs   []subscription
}

func New(logger Logger) *Bus {
	return &Bus{logger: logger, now: time.Now}
}

// Subscribe registers listener and returns a function that removes exactly
// that registration. Calling it again is a no-op.
func (b *Bus) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, listener: listener})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range b.subs {
				if sub.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish stamps event and delivers it to every current listener. A failing
// or panicking listener does not stop delivery; failures are returned together.
func (b *Bus) Publish(event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}
	b.mu.Lock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	b.logf("event published: %s to %d listener(s)", event.Type, len(subs))
	var errs *multierror.Error
	for _, sub := range subs {
		if err := deliver(sub.listener, event); err != nil {
			b.logf("listener %d failed on %s: %v", sub.id, event.Type, err)
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Len reports the number of current subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func deliver(listener Listener, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return listener(event)
}

func (b *Bus) logf(format string, args ...any) {
	if b.logger == nil {
		return
	}
	b.logger.Printf(format, args...)
}
