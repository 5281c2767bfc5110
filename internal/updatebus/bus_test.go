package updatebus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentworkforce/contactsync/internal/identity"
)

type recorder struct {
	events []EventType
}

func (r *recorder) listen(event Event) error {
	r.events = append(r.events, event.Type)
	return nil
}

func TestPublishOrderAndLateSubscriber(t *testing.T) {
	bus := New(nil)
	early := []*recorder{{}, {}, {}}
	for _, r := range early {
		bus.Subscribe(r.listen)
	}

	require.NoError(t, bus.Publish(Event{Type: ContactCreated}))
	late := &recorder{}
	bus.Subscribe(late.listen)
	require.NoError(t, bus.Publish(Event{Type: ContactUpdated}))
	require.NoError(t, bus.Publish(Event{Type: ContactDeleted}))

	for _, r := range early {
		assert.Equal(t, []EventType{ContactCreated, ContactUpdated, ContactDeleted}, r.events)
	}
	assert.Equal(t, []EventType{ContactUpdated, ContactDeleted}, late.events)
}

func TestListenersRunInSubscriptionOrder(t *testing.T) {
	bus := New(nil)
	var order []int
	for i := 0; i < 4; i++ {
		n := i
		bus.Subscribe(ListenerFunc(func(Event) { order = append(order, n) }))
	}
	require.NoError(t, bus.Publish(Event{Type: DataReloaded}))
	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestFailingListenersAreIsolated(t *testing.T) {
	bus := New(nil)
	after := &recorder{}
	bus.Subscribe(func(Event) error { return errors.New("boom") })
	bus.Subscribe(ListenerFunc(func(Event) { panic("listener exploded") }))
	bus.Subscribe(after.listen)

	err := bus.Publish(Event{Type: ContactUpdated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "listener exploded")
	assert.Equal(t, []EventType{ContactUpdated}, after.events)
}

func TestUnsubscribeRemovesExactlyOne(t *testing.T) {
	bus := New(nil)
	first, second := &recorder{}, &recorder{}
	unsubscribe := bus.Subscribe(first.listen)
	bus.Subscribe(second.listen)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, bus.Len())

	require.NoError(t, bus.Publish(Event{Type: ContactDeleted, Key: identity.Parse("7")}))
	assert.Empty(t, first.events)
	assert.Equal(t, []EventType{ContactDeleted}, second.events)
}

func TestPublishStampsEvent(t *testing.T) {
	bus := New(nil)
	var got Event
	bus.Subscribe(ListenerFunc(func(e Event) { got = e }))
	require.NoError(t, bus.Publish(Event{Type: ContactCreated}))
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestUnsubscribeDuringPublishDoesNotSkipOthers(t *testing.T) {
	bus := New(nil)
	tail := &recorder{}
	var unsubscribe func()
	unsubscribe = bus.Subscribe(ListenerFunc(func(Event) { unsubscribe() }))
	bus.Subscribe(tail.listen)

	require.NoError(t, bus.Publish(Event{Type: ContactCreated}))
	assert.Equal(t, []EventType{ContactCreated}, tail.events)
	assert.Equal(t, 1, bus.Len())
}
