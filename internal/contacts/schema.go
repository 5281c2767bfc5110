package contacts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	envelopeSchemaURL = "https://contactsync.local/schemas/envelope.json"
	contactSchemaURL  = "https://contactsync.local/schemas/contact.json"
)

type schemaSet struct {
	envelope *jsonschema.Schema
	contact  *jsonschema.Schema
}

var (
	schemasOnce sync.Once
	schemas     *schemaSet
	schemasErr  error
)

func loadSchemas() (*schemaSet, error) {
	schemasOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		resources := map[string]string{
			envelopeSchemaURL: "schemas/envelope.json",
			contactSchemaURL:  "schemas/contact.json",
		}
		for url, file := range resources {
			data, err := schemaFS.ReadFile(file)
			if err != nil {
				schemasErr = err
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
			if err != nil {
				schemasErr = fmt.Errorf("parse %s: %w", file, err)
				return
			}
			if err := compiler.AddResource(url, doc); err != nil {
				schemasErr = err
				return
			}
		}
		set := &schemaSet{}
		if set.envelope, schemasErr = compiler.Compile(envelopeSchemaURL); schemasErr != nil {
			return
		}
		if set.contact, schemasErr = compiler.Compile(contactSchemaURL); schemasErr != nil {
			return
		}
		schemas = set
	})
	return schemas, schemasErr
}

func validateEnvelope(payload []byte) error {
	set, err := loadSchemas()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if err := set.envelope.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	return nil
}

// ValidateContact checks a contact payload before it is sent to the service.
func ValidateContact(v any) error {
	set, err := loadSchemas()
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if err := set.contact.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
