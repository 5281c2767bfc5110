package correction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentworkforce/contactsync/internal/contacts"
	"github.com/agentworkforce/contactsync/internal/identity"
	"github.com/agentworkforce/contactsync/internal/records"
	"github.com/agentworkforce/contactsync/internal/session"
)

// Lookup fetches one contact by client key.
type Lookup interface {
	GetByID(ctx context.Context, key identity.Key) (records.Contact, error)
}

// Navigation tells the consumer which form to open for an item.
type Navigation struct {
	Kind    Kind           `json:"kind"`
	Key     identity.Key   `json:"key"`
	Index   int            `json:"index"`
	Prefill *PrefilledForm `json:"prefill,omitempty"`
}

// Resolver decides between editing an existing contact and creating one from
// the invalid row.
type Resolver struct {
	lookup  Lookup
	backend session.Backend
	now     func() time.Time
	logger  Logger
}

func NewResolver(lookup Lookup, backend session.Backend, now func() time.Time, logger Logger) (*Resolver, error) {
	if lookup == nil {
		return nil, fmt.Errorf("lookup is required")
	}
	if backend == nil {
		return nil, fmt.Errorf("session backend is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{lookup: lookup, backend: backend, now: now, logger: logger}, nil
}

// Resolve looks the item up by its raw client key. A found contact leads to
// the edit form; a not-found answer leads to the create form with the row's
// fields prefilled. Any other error is returned and nothing is persisted.
func (r *Resolver) Resolve(ctx context.Context, item Item) (Navigation, error) {
	key := item.Record.ClientKey
	if key.IsZero() {
		return r.toCreate(item)
	}
	if _, err := r.lookup.GetByID(ctx, key); err != nil {
		if errors.Is(err, contacts.ErrNotFound) {
			r.logf("client key %s not found, creating from invalid row", key)
			return r.toCreate(item)
		}
		return Navigation{}, fmt.Errorf("look up client key %s: %w", key, err)
	}
	callback := Callback{Kind: KindEdit, Original: item.Record, Index: item.Index, Key: key}
	if err := saveDocument(r.backend, session.CorrectionCallback, callback); err != nil {
		return Navigation{}, err
	}
	return Navigation{Kind: KindEdit, Key: key, Index: item.Index}, nil
}

func (r *Resolver) toCreate(item Item) (Navigation, error) {
	key := item.Record.ClientKey
	if strings.TrimSpace(key.String()) == "" {
		key = r.placeholderKey()
	}
	form := PrefilledForm{
		ClientKey: key,
		Name:      item.Record.Name,
		Email:     item.Record.Email,
		Phone:     item.Record.Phone,
	}
	if err := saveDocument(r.backend, session.PrefilledContactKey, form); err != nil {
		return Navigation{}, err
	}
	callback := Callback{Kind: KindCreate, Original: item.Record, Index: item.Index, Key: key}
	if err := saveDocument(r.backend, session.CorrectionCallback, callback); err != nil {
		return Navigation{}, err
	}
	return Navigation{Kind: KindCreate, Key: key, Index: item.Index, Prefill: &form}, nil
}

// placeholderKey is "NEW" followed by the last six digits of the clock in
// milliseconds.
func (r *Resolver) placeholderKey() identity.Key {
	ms := fmt.Sprintf("%06d", r.now().UnixMilli())
	return identity.Parse("NEW" + ms[len(ms)-6:])
}

func (r *Resolver) logf(format string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}
