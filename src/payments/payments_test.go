package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"horizon-server/src/models"
	"horizon-server/src/observability"
	"horizon-server/src/resilience"
)

type fakeAPI struct {
	tokenCalls atomic.Int32
	lastBody   map[string]any
	failWith   int
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		key, secret, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", key)
		assert.Equal(t, "secret", secret)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	created := func(location string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			if f.failWith != 0 {
				http.Error(w, `{"code":"ValidationError"}`, f.failWith)
				return
			}
			f.lastBody = map[string]any{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastBody))
			w.Header().Set("Location", location)
			w.WriteHeader(http.StatusCreated)
		}
	}
	mux.HandleFunc("POST /customers", created("https://api.example/customers/cust-1"))
	mux.HandleFunc("POST /customers/cust-1/funding-sources", created("https://api.example/funding-sources/fs-1"))
	mux.HandleFunc("POST /transfers", created("https://api.example/transfers/tr-1"))
	mux.HandleFunc("POST /on-demand-authorizations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"_links": map[string]any{"self": map[string]string{"href": "https://api.example/on-demand-authorizations/oda-1"}},
		})
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, "key", "secret", resilience.Config{}, observability.NewMetrics(), zap.NewNop())
}

func TestCreateCustomer(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	location, err := c.CreateCustomer(context.Background(), &models.RegisterRequest{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", State: "NY",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://api.example/customers/cust-1", location)
	assert.Equal(t, "cust-1", CustomerIDFromURL(location))
	assert.Equal(t, "personal", api.lastBody["type"])
	assert.Equal(t, "Ada", api.lastBody["firstName"])
}

func TestAddFundingSourceUsesOnDemandAuthorization(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	location, err := c.AddFundingSource(context.Background(), "cust-1", "processor-sandbox-123", "Checking")
	require.NoError(t, err)

	assert.Equal(t, "https://api.example/funding-sources/fs-1", location)
	assert.Equal(t, "processor-sandbox-123", api.lastBody["plaidToken"])
	links := api.lastBody["_links"].(map[string]any)
	assert.Contains(t, links, "on-demand-authorization")
	assert.Equal(t, int32(1), api.tokenCalls.Load(), "token should be reused across calls")
}

func TestCreateTransferFormatsAmount(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	location, err := c.CreateTransfer(context.Background(), "https://api.example/funding-sources/a", "https://api.example/funding-sources/b", decimal.RequireFromString("12.5"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.example/transfers/tr-1", location)
	amount := api.lastBody["amount"].(map[string]any)
	assert.Equal(t, "12.50", amount["value"])
	assert.Equal(t, "USD", amount["currency"])
}

func TestCreateTransferRejectsNonPositiveAmount(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})

	_, err := c.CreateTransfer(context.Background(), "a", "b", decimal.Zero)

	var verr *models.ErrValidation
	require.ErrorAs(t, err, &verr)
}

func TestUpstreamFailureIsExternalServiceError(t *testing.T) {
	c := newTestClient(t, &fakeAPI{failWith: http.StatusBadRequest})

	_, err := c.CreateCustomer(context.Background(), &models.RegisterRequest{})

	var extErr *models.ErrExternalService
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "payments", extErr.Service)
	assert.Contains(t, err.Error(), "ValidationError")
}

func TestRejectedRequestsKeepBreakerClosed(t *testing.T) {
	c := newTestClient(t, &fakeAPI{failWith: http.StatusBadRequest})

	for i := 0; i < 6; i++ {
		_, err := c.CreateCustomer(context.Background(), &models.RegisterRequest{})
		var se *resilience.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	}
	assert.Equal(t, gobreaker.StateClosed, c.cb.State())
}

func TestServerErrorsOpenBreaker(t *testing.T) {
	c := newTestClient(t, &fakeAPI{failWith: http.StatusBadGateway})

	for i := 0; i < 5; i++ {
		_, _ = c.CreateCustomer(context.Background(), &models.RegisterRequest{})
	}
	_, err := c.CreateCustomer(context.Background(), &models.RegisterRequest{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
