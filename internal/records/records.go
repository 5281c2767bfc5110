// Package records holds the contact shapes shared by the API client, the
// update bus and the correction workflow.
package records

import (
	"encoding/json"
	"strings"

	"github.com/agentworkforce/contactsync/internal/identity"
)

type Contact struct {
	ClientKey identity.Key `json:"claveCliente"`
	Name      string       `json:"nombre"`
	Email     string       `json:"correo"`
	Phone     string       `json:"telefonoContacto"`
}

// InvalidRecord is a row that failed upstream validation. Rows come from a
// spreadsheet, so any field may be missing or malformed.
type InvalidRecord struct {
	ID        identity.Key `json:"id,omitzero"`
	ClientKey identity.Key `json:"claveCliente"`
	Name      string       `json:"nombre"`
	Email     string       `json:"correo"`
	Phone     string       `json:"telefono,omitempty"`
	Row       int          `json:"fila,omitempty"`
	Errors    []string     `json:"errors,omitempty"`
}

func (r *InvalidRecord) UnmarshalJSON(data []byte) error {
	type plain InvalidRecord
	var aux struct {
		plain
		ContactPhone string   `json:"telefonoContacto"`
		Errores      []string `json:"errores"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = InvalidRecord(aux.plain)
	if strings.TrimSpace(r.Phone) == "" {
		r.Phone = aux.ContactPhone
	}
	if len(r.Errors) == 0 {
		r.Errors = aux.Errores
	}
	return nil
}

// Contact returns the fields of r as a contact for the create form.
func (r InvalidRecord) Contact() Contact {
	return Contact{
		ClientKey: r.ClientKey,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
	}
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
