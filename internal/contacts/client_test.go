package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentworkforce/contactsync/internal/identity"
	"github.com/agentworkforce/contactsync/internal/records"
	"github.com/agentworkforce/contactsync/internal/reqcache"
	"github.com/agentworkforce/contactsync/internal/updatebus"
)

type call struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

type fakeTransport struct {
	mu     sync.Mutex
	calls  []call
	routes map[string]func(call) ([]byte, error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{routes: map[string]func(call) ([]byte, error){}}
}

func (f *fakeTransport) on(method, path string, fn func(call) ([]byte, error)) {
	f.routes[method+" "+path] = fn
}

func (f *fakeTransport) respond(method, path, payload string) {
	f.on(method, path, func(call) ([]byte, error) { return []byte(payload), nil })
}

func (f *fakeTransport) Do(_ context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	c := call{Method: method, Path: path, Query: query, Body: body}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	fn, ok := f.routes[method+" "+path]
	f.mu.Unlock()
	if !ok {
		return nil, &HTTPError{StatusCode: http.StatusNotFound}
	}
	return fn(c)
}

func (f *fakeTransport) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, transport Transport) (*Client, *reqcache.Cache, *updatebus.Bus) {
	t.Helper()
	cache := reqcache.New(reqcache.Options{})
	bus := updatebus.New(nil)
	client, err := NewClient(transport, cache, bus, nil)
	require.NoError(t, err)
	return client, cache, bus
}

func validContact(key string) records.Contact {
	return records.Contact{
		ClientKey: identity.Parse(key),
		Name:      "Ana Torres",
		Email:     "ana@example.com",
		Phone:     "5512345678",
	}
}

func TestNewClientRequiresTransport(t *testing.T) {
	_, err := NewClient(nil, nil, nil, nil)
	require.Error(t, err)
}

func TestPaginatedReadsAreServedFromCache(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(http.MethodGet, paginatedPath, `{"success":true,"data":{"data":[{"claveCliente":1,"nombre":"Ana","correo":"a@b.co","telefonoContacto":"5512345678"}],"total":1,"hasNext":false}}`)
	client, cache, _ := newTestClient(t, transport)
	ctx := context.Background()

	first, err := client.Paginated(ctx, 0, 50, "ana")
	require.NoError(t, err)
	second, err := client.Paginated(ctx, 0, 50, "ana")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, transport.count(http.MethodGet, paginatedPath))
	require.Len(t, first.Contacts, 1)
	assert.Equal(t, 1, first.Total)
	assert.Equal(t, 50, first.Size)

	_, ok := cache.Get("/contactos/paginated?page=0&search=ana&size=50")
	assert.True(t, ok)

	_, err = client.Paginated(ctx, 0, 50, "luis")
	require.NoError(t, err)
	assert.Equal(t, 2, transport.count(http.MethodGet, paginatedPath))
}

func TestUnsuccessfulReadIsNotCached(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(http.MethodGet, countPath, `{"success":false,"error":"source unavailable"}`)
	client, _, _ := newTestClient(t, transport)

	_, err := client.Count(context.Background())
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "source unavailable", serverErr.Message)

	_, err = client.Count(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, transport.count(http.MethodGet, countPath))
}

func TestMalformedEnvelopeIsRejected(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(http.MethodGet, contactsPath, `[1,2,3]`)
	client, cache, _ := newTestClient(t, transport)

	_, err := client.List(context.Background())
	require.ErrorIs(t, err, ErrBadEnvelope)
	assert.Equal(t, 0, cache.Stats().TotalEntries)
}

func TestCountAcceptsObjectForm(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(http.MethodGet, countPath, `{"success":true,"data":{"count":42}}`)
	client, _, _ := newTestClient(t, transport)

	n, err := client.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestCreateInvalidatesAndPublishesAfterSuccess(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(http.MethodGet, contactsPath, `{"success":true,"data":[]}`)
	transport.respond(http.MethodGet, invalidDataPath, `{"success":true,"data":[]}`)
	transport.respond(http.MethodGet, "/health", `{"success":true,"data":{"status":"UP"}}`)
	transport.respond(http.MethodPost, contactsPath, `{"success":true,"data":{"claveCliente":121223,"nombre":"Ana Torres"}}`)
	client, cache, bus := newTestClient(t, transport)
	ctx := context.Background()

	_, err := client.List(ctx)
	require.NoError(t, err)
	_, err = client.InvalidData(ctx)
	require.NoError(t, err)
	_, err = client.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, cache.Stats().TotalEntries)

	var seen []updatebus.Event
	bus.Subscribe(updatebus.ListenerFunc(func(e updatebus.Event) {
		// cache must already be clean when listeners run
		_, cached := cache.Get(reqcache.Key(contactsPath, nil))
		assert.False(t, cached)
		seen = append(seen, e)
	}))

	input := validContact("121223")
	input.Email = "  ANA@Example.com "
	created, err := client.Create(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", created.Email)
	assert.Equal(t, "5512345678", created.Phone)

	require.Len(t, seen, 1)
	assert.Equal(t, updatebus.ContactCreated, seen[0].Type)
	require.NotNil(t, seen[0].Contact)
	assert.True(t, identity.Equivalent(identity.FromInt(121223), seen[0].Key))

	// health is outside the contact families and survives
	stats := cache.Stats()
	assert.Equal(t, 1, stats.TotalEntries)

	sent := transport.calls[len(transport.calls)-1].Body.(records.Contact)
	raw, err := json.Marshal(sent)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"claveCliente":121223`)
}

func TestFailedWriteLeavesCacheAndBusUntouched(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(http.MethodGet, contactsPath, `{"success":true,"data":[]}`)
	transport.on(http.MethodPost, contactsPath, func(call) ([]byte, error) {
		return nil, &HTTPError{StatusCode: http.StatusInternalServerError, Message: "boom"}
	})
	transport.respond(http.MethodPut, "/contactos/7", `{"success":false,"error":"Datos inválidos","errors":[{"field":"correo","message":"duplicado"}]}`)
	client, cache, bus := newTestClient(t, transport)
	ctx := context.Background()

	_, err := client.List(ctx)
	require.NoError(t, err)
	before := cache.Entries()

	published := 0
	bus.Subscribe(updatebus.ListenerFunc(func(updatebus.Event) { published++ }))

	_, err = client.Create(ctx, validContact("7"))
	require.Error(t, err)
	_, err = client.Update(ctx, identity.Parse("7"), validContact("7"))
	require.Error(t, err)
	fields := FieldErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "correo", fields[0].Field)

	assert.Equal(t, before, cache.Entries())
	assert.Zero(t, published)
}

func TestInvalidContactNeverReachesNetwork(t *testing.T) {
	transport := newFakeTransport()
	client, _, _ := newTestClient(t, transport)

	bad := validContact("1")
	bad.Email = "not-an-email"
	_, err := client.Create(context.Background(), bad)
	require.ErrorIs(t, err, ErrInvalidInput)

	bad = validContact("1")
	bad.Phone = "123"
	_, err = client.Update(context.Background(), identity.Parse("1"), bad)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = client.Update(context.Background(), identity.Key{}, validContact("1"))
	require.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, transport.calls)
}

func TestWritesPublishInCompletionOrder(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(http.MethodPost, contactsPath, `{"success":true,"data":{"claveCliente":5}}`)
	transport.respond(http.MethodPut, "/contactos/5", `{"success":true,"data":null}`)
	transport.respond(http.MethodDelete, "/contactos/5", `{"success":true,"message":"eliminado"}`)
	client, _, bus := newTestClient(t, transport)
	ctx := context.Background()

	var types []updatebus.EventType
	var keys []identity.Key
	bus.Subscribe(updatebus.ListenerFunc(func(e updatebus.Event) {
		types = append(types, e.Type)
		keys = append(keys, e.Key)
	}))

	_, err := client.Create(ctx, validContact("5"))
	require.NoError(t, err)
	_, err = client.Update(ctx, identity.Parse("5"), validContact("5"))
	require.NoError(t, err)
	require.NoError(t, client.Delete(ctx, identity.Parse("5")))

	assert.Equal(t, []updatebus.EventType{updatebus.ContactCreated, updatebus.ContactUpdated, updatebus.ContactDeleted}, types)
	for _, k := range keys {
		assert.True(t, identity.Equivalent(identity.FromInt(5), k))
	}
}

func TestUpdateWithNonNumericKey(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(http.MethodPut, "/contactos/CLI001", `{"success":true}`)
	client, _, bus := newTestClient(t, transport)

	var got updatebus.Event
	bus.Subscribe(updatebus.ListenerFunc(func(e updatebus.Event) { got = e }))

	_, err := client.Update(context.Background(), identity.Parse("CLI001"), validContact("CLI001"))
	require.NoError(t, err)
	assert.Equal(t, "CLI001", got.Key.String())
	assert.False(t, identity.Equivalent(got.Key, identity.FromInt(1)))
}

func TestListenerFailureDoesNotFailWrite(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(http.MethodDelete, "/contactos/9", `{"success":true}`)
	client, _, bus := newTestClient(t, transport)

	bus.Subscribe(func(updatebus.Event) error { return errors.New("listener broke") })
	require.NoError(t, client.Delete(context.Background(), identity.Parse("9")))
}

func TestReloadClearsEverything(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(http.MethodGet, "/health", `{"success":true,"data":{"status":"UP"}}`)
	transport.respond(http.MethodPost, reloadPath, `{"success":true,"data":{"totalRows":10,"validRows":8,"invalidRows":2}}`)
	client, cache, bus := newTestClient(t, transport)
	ctx := context.Background()

	_, err := client.Health(ctx)
	require.NoError(t, err)

	var got updatebus.Event
	bus.Subscribe(updatebus.ListenerFunc(func(e updatebus.Event) { got = e }))

	report, err := client.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.InvalidRows)
	assert.Equal(t, 0, cache.Stats().TotalEntries)
	assert.Equal(t, updatebus.DataReloaded, got.Type)
	assert.JSONEq(t, `{"totalRows":10,"validRows":8,"invalidRows":2}`, string(got.Reload))
}

func TestGetByIDUnwrapsAndReportsNotFound(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(http.MethodGet, "/contactos/3", `{"success":true,"data":{"contacto":{"claveCliente":"3","nombre":"Luis"}}}`)
	transport.respond(http.MethodGet, "/contactos/4", `{"success":true,"data":{"claveCliente":4,"nombre":"Eva"}}`)
	transport.respond(http.MethodGet, "/contactos/8", `{"success":false,"error":"Contacto no encontrado"}`)
	client, _, _ := newTestClient(t, transport)
	ctx := context.Background()

	c, err := client.GetByID(ctx, identity.FromInt(3))
	require.NoError(t, err)
	assert.Equal(t, "Luis", c.Name)

	c, err = client.GetByID(ctx, identity.FromInt(4))
	require.NoError(t, err)
	assert.Equal(t, "Eva", c.Name)

	_, err = client.GetByID(ctx, identity.FromInt(8))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = client.GetByID(ctx, identity.FromInt(99))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInvalidDataFallsBackToValidationReport(t *testing.T) {
	transport := newFakeTransport()
	transport.on(http.MethodGet, invalidDataPath, func(call) ([]byte, error) {
		return nil, &HTTPError{StatusCode: http.StatusInternalServerError}
	})
	transport.respond(http.MethodGet, validationPath, `{"success":true,"data":{"totalRows":3,"validRows":2,"invalidRows":1,"invalidRowsData":[{"claveCliente":"ABC","nombre":"X","correo":"bad","telefonoContacto":"1","errores":["correo inválido"]}]}}`)
	client, _, _ := newTestClient(t, transport)

	rows, err := client.InvalidData(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].Phone)
	assert.Equal(t, []string{"correo inválido"}, rows[0].Errors)
}

func TestInvalidateValidationCacheScope(t *testing.T) {
	transport := newFakeTransport()
	client, cache, _ := newTestClient(t, transport)
	for _, key := range []string{"/contactos/invalid-data?", "/contactos/validation?", "/contactos/errors?", "/contactos/con-validacion?", "/contactos?", "/health?"} {
		require.True(t, cache.Set(key, []byte(`{"success":true}`)))
	}

	assert.Equal(t, 4, client.InvalidateValidationCache())
	assert.Equal(t, 2, client.CacheStats().TotalEntries)
	assert.Equal(t, 1, client.ClearCache("contactos"))
	assert.Equal(t, 1, client.ClearCache(""))
}

func TestValidationErrorsAcceptStrings(t *testing.T) {
	transport := newFakeTransport()
	transport.respond(http.MethodGet, errorsPath, `{"success":true,"data":["fila 3: correo inválido",{"fila":4,"campo":"telefono","mensaje":"corto"}]}`)
	client, _, _ := newTestClient(t, transport)

	errs, err := client.ValidationErrors(context.Background())
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "fila 3: correo inválido", errs[0].Message)
	assert.Equal(t, 4, errs[1].Row)
}

func TestNormalizeContact(t *testing.T) {
	got := NormalizeContact(records.Contact{
		ClientKey: identity.Parse(" 0042 "),
		Name:      "  Ana ",
		Email:     " A@B.CO ",
		Phone:     " 5512345678",
	})
	n, ok := got.ClientKey.Int()
	require.True(t, ok)
	assert.EqualValues(t, 42, n)
	assert.False(t, got.ClientKey.Quoted())
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, "a@b.co", got.Email)
	assert.Equal(t, "5512345678", got.Phone)

	got = NormalizeContact(records.Contact{ClientKey: identity.Parse("CLI001")})
	assert.True(t, got.ClientKey.Quoted())
}
