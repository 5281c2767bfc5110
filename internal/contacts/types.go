package contacts

import (
	"bytes"
	"encoding/json"

	"github.com/agentworkforce/contactsync/internal/records"
)

// Envelope is the wrapper every contact service response uses.
type Envelope struct {
	Success bool                 `json:"success"`
	Data    json.RawMessage      `json:"data"`
	Error   string               `json:"error,omitempty"`
	Message string               `json:"message,omitempty"`
	Errors  []records.FieldError `json:"errors,omitempty"`
}

// Decode unmarshals the envelope data into out. Null or missing data leaves
// out untouched.
func (e Envelope) Decode(out any) error {
	if len(e.Data) == 0 || bytes.Equal(bytes.TrimSpace(e.Data), []byte("null")) {
		return nil
	}
	return json.Unmarshal(e.Data, out)
}

// Page is one page of the paginated contact listing. The service returns
// either a bare array or an object; both decode here.
type Page struct {
	Contacts []records.Contact `json:"data"`
	Total    int               `json:"total"`
	HasNext  bool              `json:"hasNext"`
	Page     int               `json:"page"`
	Size     int               `json:"size"`
}

func (p *Page) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		*p = Page{}
		if err := json.Unmarshal(data, &p.Contacts); err != nil {
			return err
		}
		p.Total = len(p.Contacts)
		return nil
	}
	var aux struct {
		Data          []records.Contact `json:"data"`
		Contactos     []records.Contact `json:"contactos"`
		Items         []records.Contact `json:"items"`
		Total         int               `json:"total"`
		TotalElements int               `json:"totalElements"`
		HasNext       bool              `json:"hasNext"`
		Page          int               `json:"page"`
		Size          int               `json:"size"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*p = Page{
		Contacts: firstNonEmpty(aux.Data, aux.Contactos, aux.Items),
		Total:    aux.Total,
		HasNext:  aux.HasNext,
		Page:     aux.Page,
		Size:     aux.Size,
	}
	if p.Total == 0 {
		p.Total = aux.TotalElements
	}
	return nil
}

func firstNonEmpty(lists ...[]records.Contact) []records.Contact {
	for _, list := range lists {
		if len(list) > 0 {
			return list
		}
	}
	return []records.Contact{}
}

// Count decodes either a bare number or {"count": n} / {"total": n}.
type Count int

func (c *Count) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*c = Count(n)
		return nil
	}
	var aux struct {
		Count *int `json:"count"`
		Total *int `json:"total"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch {
	case aux.Count != nil:
		*c = Count(*aux.Count)
	case aux.Total != nil:
		*c = Count(*aux.Total)
	}
	return nil
}

type ValidationReport struct {
	TotalRows       int                     `json:"totalRows"`
	ValidRows       int                     `json:"validRows"`
	InvalidRows     int                     `json:"invalidRows"`
	InvalidRowsData []records.InvalidRecord `json:"invalidRowsData,omitempty"`
	Errors          []string                `json:"errors,omitempty"`
}

// ValidationError is one entry of the validation error listing.
type ValidationError struct {
	Row     int    `json:"fila,omitempty"`
	Field   string `json:"campo,omitempty"`
	Value   string `json:"valor,omitempty"`
	Message string `json:"mensaje,omitempty"`
	Key     string `json:"claveCliente,omitempty"`
}

// UnmarshalJSON also accepts a bare message string.
func (v *ValidationError) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		*v = ValidationError{Message: msg}
		return nil
	}
	type plain ValidationError
	var aux plain
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*v = ValidationError(aux)
	return nil
}

type KeyCheck struct {
	Valid   bool   `json:"valid"`
	Exists  bool   `json:"exists"`
	Message string `json:"message,omitempty"`
}
