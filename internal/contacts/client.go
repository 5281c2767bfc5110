// Package contacts is the single seam to the remote contact service. Reads go
// through the request cache; successful writes invalidate the affected cache
// families and publish an update event.
package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/agentworkforce/contactsync/internal/identity"
	"github.com/agentworkforce/contactsync/internal/records"
	"github.com/agentworkforce/contactsync/internal/reqcache"
	"github.com/agentworkforce/contactsync/internal/updatebus"
)

const (
	contactsPath         = "/contactos"
	paginatedPath        = "/contactos/paginated"
	searchPath           = "/contactos/search"
	findPath             = "/contactos/buscar"
	countPath            = "/contactos/count"
	statsPath            = "/contactos/stats"
	validationPath       = "/contactos/validation"
	errorsPath           = "/contactos/errors"
	withValidationPath   = "/contactos/con-validacion"
	invalidDataPath      = "/contactos/invalid-data"
	reloadPath           = "/contactos/reload"
	validateKeyPath      = "/contactos/validate/key/"
	debugInvalidDataPath = "/contactos/debug/invalid-data"
	debugForceInvalid    = "/contactos/debug/force-invalid"
	debugCheckSourcePath = "/contactos/debug/check-excel"
	healthPath           = "/health"

	// ContactsFamily matches every cache key of the contact resource.
	ContactsFamily = "contactos"
)

// ValidationFamilies are the cache key fragments whose entries depend on the
// validation outcome of the source data.
var ValidationFamilies = []string{"invalid-data", "validation", "errors", "con-validacion"}

type Logger interface {
	Printf(format string, args ...any)
}

type Client struct {
	transport Transport
	cache     reqcache.Store
	bus       updatebus.Publisher
	logger    Logger
	flight    singleflight.Group
}

// NewClient wires the client. A nil cache gets a default FIFO cache and a nil
// bus disables event publication.
func NewClient(transport Transport, cache reqcache.Store, bus updatebus.Publisher, logger Logger) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cache == nil {
		cache = reqcache.New(reqcache.Options{Logger: logger})
	}
	return &Client{
		transport: transport,
		cache:     cache,
		bus:       bus,
		logger:    logger,
	}, nil
}

func (c *Client) List(ctx context.Context) ([]records.Contact, error) {
	env, err := c.get(ctx, contactsPath, nil)
	if err != nil {
		return nil, err
	}
	out := []records.Contact{}
	return out, env.Decode(&out)
}

// GetByID fetches one contact. A missing contact satisfies errors.Is(err, ErrNotFound)
// whether the service answers 404 or success:false.
func (c *Client) GetByID(ctx context.Context, key identity.Key) (records.Contact, error) {
	if key.IsZero() {
		return records.Contact{}, fmt.Errorf("%w: client key is required", ErrInvalidInput)
	}
	env, err := c.get(ctx, contactPath(key), nil)
	if err != nil {
		var serverErr *ServerError
		if errors.As(err, &serverErr) {
			notFound := *serverErr
			notFound.NotFound = true
			return records.Contact{}, &notFound
		}
		return records.Contact{}, err
	}
	var wrapped struct {
		Contacto *records.Contact `json:"contacto"`
	}
	if env.Decode(&wrapped) == nil && wrapped.Contacto != nil {
		return *wrapped.Contacto, nil
	}
	var contact records.Contact
	return contact, env.Decode(&contact)
}

func (c *Client) Paginated(ctx context.Context, page, size int, search string) (Page, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	if s := strings.TrimSpace(search); s != "" {
		params.Set("search", s)
	}
	env, err := c.get(ctx, paginatedPath, params)
	if err != nil {
		return Page{}, err
	}
	var out Page
	if err := env.Decode(&out); err != nil {
		return Page{}, err
	}
	if out.Contacts == nil {
		out.Contacts = []records.Contact{}
	}
	if out.Size == 0 {
		out.Page, out.Size = page, size
	}
	return out, nil
}

func (c *Client) Search(ctx context.Context, term string, page, size int) (Page, error) {
	params := url.Values{}
	params.Set("q", term)
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	env, err := c.get(ctx, searchPath, params)
	if err != nil {
		return Page{}, err
	}
	var out Page
	return out, env.Decode(&out)
}

// Find runs the field filter search with arbitrary query parameters.
func (c *Client) Find(ctx context.Context, params url.Values) ([]records.Contact, error) {
	env, err := c.get(ctx, findPath, params)
	if err != nil {
		return nil, err
	}
	out := []records.Contact{}
	return out, env.Decode(&out)
}

func (c *Client) Count(ctx context.Context) (int, error) {
	env, err := c.get(ctx, countPath, nil)
	if err != nil {
		return 0, err
	}
	var n Count
	return int(n), env.Decode(&n)
}

func (c *Client) Stats(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, statsPath)
}

func (c *Client) ValidationReport(ctx context.Context) (ValidationReport, error) {
	env, err := c.get(ctx, validationPath, nil)
	if err != nil {
		return ValidationReport{}, err
	}
	var report ValidationReport
	return report, env.Decode(&report)
}

// InvalidData lists the rows that failed validation. When the listing
// endpoint fails, the rows embedded in the validation report are used.
func (c *Client) InvalidData(ctx context.Context) ([]records.InvalidRecord, error) {
	env, err := c.get(ctx, invalidDataPath, nil)
	if err == nil {
		out := []records.InvalidRecord{}
		return out, env.Decode(&out)
	}
	c.logf("invalid data listing failed, falling back to validation report: %v", err)
	report, fallbackErr := c.ValidationReport(ctx)
	if fallbackErr != nil || report.InvalidRowsData == nil {
		return nil, err
	}
	return report.InvalidRowsData, nil
}

func (c *Client) ValidationErrors(ctx context.Context) ([]ValidationError, error) {
	env, err := c.get(ctx, errorsPath, nil)
	if err != nil {
		return nil, err
	}
	out := []ValidationError{}
	return out, env.Decode(&out)
}

func (c *Client) WithValidation(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, withValidationPath)
}

func (c *Client) ValidateKey(ctx context.Context, key identity.Key) (KeyCheck, error) {
	env, err := c.get(ctx, validateKeyPath+url.PathEscape(key.String()), nil)
	if err != nil {
		return KeyCheck{}, err
	}
	var out KeyCheck
	return out, env.Decode(&out)
}

func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, healthPath)
}

func (c *Client) DebugInvalidData(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, debugInvalidDataPath)
}

func (c *Client) ForceInvalidData(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, debugForceInvalid)
}

func (c *Client) CheckSource(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, debugCheckSourcePath)
}

func (c *Client) Create(ctx context.Context, contact records.Contact) (records.Contact, error) {
	contact = NormalizeContact(contact)
	if err := ValidateContact(contact); err != nil {
		return records.Contact{}, err
	}
	env, err := c.write(ctx, http.MethodPost, contactsPath, contact)
	if err != nil {
		return records.Contact{}, err
	}
	created := mergeContact(contact, env)
	c.cache.Invalidate(ContactsFamily)
	c.InvalidateValidationCache()
	c.publish(updatebus.Event{Type: updatebus.ContactCreated, Contact: &created, Key: created.ClientKey})
	return created, nil
}

func (c *Client) Update(ctx context.Context, key identity.Key, contact records.Contact) (records.Contact, error) {
	if key.IsZero() {
		return records.Contact{}, fmt.Errorf("%w: client key is required", ErrInvalidInput)
	}
	contact = NormalizeContact(contact)
	if err := ValidateContact(contact); err != nil {
		return records.Contact{}, err
	}
	path := contactPath(key)
	env, err := c.write(ctx, http.MethodPut, path, contact)
	if err != nil {
		return records.Contact{}, err
	}
	updated := mergeContact(contact, env)
	c.cache.Invalidate(ContactsFamily)
	c.cache.Invalidate(path)
	c.InvalidateValidationCache()
	c.publish(updatebus.Event{Type: updatebus.ContactUpdated, Contact: &updated, Key: key})
	return updated, nil
}

func (c *Client) Delete(ctx context.Context, key identity.Key) error {
	if key.IsZero() {
		return fmt.Errorf("%w: client key is required", ErrInvalidInput)
	}
	path := contactPath(key)
	if _, err := c.write(ctx, http.MethodDelete, path, nil); err != nil {
		return err
	}
	c.cache.Invalidate(ContactsFamily)
	c.cache.Invalidate(path)
	c.InvalidateValidationCache()
	c.publish(updatebus.Event{Type: updatebus.ContactDeleted, Key: key})
	return nil
}

// Reload asks the service to re-read its spreadsheet source. Every cached
// response is dropped on success.
func (c *Client) Reload(ctx context.Context) (ValidationReport, error) {
	env, err := c.write(ctx, http.MethodPost, reloadPath, nil)
	if err != nil {
		return ValidationReport{}, err
	}
	c.cache.Invalidate("")
	var report ValidationReport
	if err := env.Decode(&report); err != nil {
		c.logf("reload summary not decodable: %v", err)
	}
	c.publish(updatebus.Event{Type: updatebus.DataReloaded, Reload: env.Data})
	return report, nil
}

// ClearCache drops cached responses whose key contains pattern, or all of
// them when pattern is empty.
func (c *Client) ClearCache(pattern string) int {
	return c.cache.Invalidate(pattern)
}

func (c *Client) InvalidateValidationCache() int {
	removed := 0
	for _, family := range ValidationFamilies {
		removed += c.cache.Invalidate(family)
	}
	return removed
}

func (c *Client) CacheStats() reqcache.Stats {
	return c.cache.Stats()
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (Envelope, error) {
	key := reqcache.Key(path, query)
	if payload, ok := c.cache.Get(key); ok {
		return decodeEnvelope(payload)
	}
	// callers sharing the flight each wait on their own ctx
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		payload, err := c.transport.Do(flightCtx, http.MethodGet, path, query, nil)
		if err != nil {
			return nil, err
		}
		env, err := parseEnvelope(payload)
		if err != nil {
			return nil, err
		}
		if !env.Success {
			return nil, newServerError(path, env)
		}
		c.cache.Set(key, payload)
		return env, nil
	})
	select {
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Envelope{}, res.Err
		}
		return res.Val.(Envelope), nil
	}
}

func (c *Client) getRaw(ctx context.Context, path string) (json.RawMessage, error) {
	env, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) write(ctx context.Context, method, path string, body any) (Envelope, error) {
	payload, err := c.transport.Do(ctx, method, path, nil, body)
	if err != nil {
		return Envelope{}, err
	}
	env, err := parseEnvelope(payload)
	if err != nil {
		return Envelope{}, err
	}
	if !env.Success {
		return env, newServerError(path, env)
	}
	return env, nil
}

func (c *Client) publish(event updatebus.Event) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(event); err != nil {
		c.logf("update listeners failed for %s: %v", event.Type, err)
	}
}

func (c *Client) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}

func contactPath(key identity.Key) string {
	return contactsPath + "/" + url.PathEscape(key.String())
}

func parseEnvelope(payload []byte) (Envelope, error) {
	if err := validateEnvelope(payload); err != nil {
		return Envelope{}, err
	}
	return decodeEnvelope(payload)
}

func decodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	return env, nil
}

func newServerError(path string, env Envelope) *ServerError {
	msg := env.Error
	if msg == "" {
		msg = env.Message
	}
	fields := env.Errors
	if len(fields) == 0 {
		var dataFields []records.FieldError
		if env.Decode(&dataFields) == nil {
			fields = dataFields
		}
	}
	return &ServerError{Endpoint: path, Message: msg, Fields: fields}
}

// NormalizeContact trims every field, lower-cases the email and sends a
// purely numeric client key as a JSON number.
func NormalizeContact(contact records.Contact) records.Contact {
	key := identity.Parse(contact.ClientKey.String())
	if n, ok := key.Int(); ok && n > 0 {
		key = identity.FromInt(n)
	}
	return records.Contact{
		ClientKey: key,
		Name:      strings.TrimSpace(contact.Name),
		Email:     strings.ToLower(strings.TrimSpace(contact.Email)),
		Phone:     strings.TrimSpace(contact.Phone),
	}
}

// mergeContact overlays whatever the service echoed back on the submitted
// contact, so events always carry a complete record.
func mergeContact(submitted records.Contact, env Envelope) records.Contact {
	merged := submitted
	var echoed records.Contact
	if env.Decode(&echoed) != nil {
		return merged
	}
	if !echoed.ClientKey.IsZero() {
		merged.ClientKey = echoed.ClientKey
	}
	if echoed.Name != "" {
		merged.Name = echoed.Name
	}
	if echoed.Email != "" {
		merged.Email = echoed.Email
	}
	if echoed.Phone != "" {
		merged.Phone = echoed.Phone
	}
	return merged
}
