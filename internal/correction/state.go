// Package correction sequences the manual correction of invalid records. A
// batch is walked front to back, one record per form visit, and the progress
// is persisted through a session backend so it survives between invocations.
package correction

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentworkforce/contactsync/internal/identity"
	"github.com/agentworkforce/contactsync/internal/records"
	"github.com/agentworkforce/contactsync/internal/session"
)

var (
	ErrEmptyBatch         = errors.New("no item in the batch has a usable client key")
	ErrNoActiveQueue      = errors.New("no correction queue in progress")
	ErrNoActiveCorrection = errors.New("no correction in progress")
	ErrItemOutOfRange     = errors.New("invalid record index out of range")
)

// Kind is the form a correction is carried out in.
type Kind string

const (
	KindEdit   Kind = "edit"
	KindCreate Kind = "create"
)

// Item is one queued invalid record. Index is its position in the working
// set when it was last resolved, or -1 once the row has left it.
type Item struct {
	Record records.InvalidRecord `json:"record"`
	Index  int                   `json:"index"`
	// ResolvedKey is the numeric identity recovered from the raw client key.
	ResolvedKey int64 `json:"resolvedKey"`
}

type QueueState struct {
	Remaining      []Item `json:"items"`
	TotalCount     int    `json:"totalCount"`
	CompletedCount int    `json:"completedCount"`
	Skipped        int    `json:"skipped,omitempty"`
	Active         *Item  `json:"active,omitempty"`
}

// Position is the 1-based position of the active item within the batch.
func (s QueueState) Position() int {
	return s.CompletedCount + 1
}

// Callback describes the correction the form is currently carrying out.
type Callback struct {
	Kind     Kind                  `json:"type"`
	Original records.InvalidRecord `json:"originalData"`
	Index    int                   `json:"index"`
	Key      identity.Key          `json:"key,omitzero"`
}

// PrefilledForm is the contact the create form opens with.
type PrefilledForm = records.Contact

func loadDocument(backend session.Backend, key string, out any) (bool, error) {
	data, err := backend.Load(key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func saveDocument(backend session.Backend, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := backend.Save(key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
