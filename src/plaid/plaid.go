// Package plaid adapts the Plaid API client to the server's own types. Every
// call goes through a circuit breaker and the configured retry policy.
package plaid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"horizon-server/src/config"
	"horizon-server/src/models"
	"horizon-server/src/observability"
	"horizon-server/src/resilience"
	"horizon-server/src/transactions"
	"horizon-server/src/util"
)

const (
	serviceName = "plaid"
	dateLayout  = "2006-01-02"
)

func NewPlaidClient(clientID, secret, env string, timeout time.Duration) (*plaid.APIClient, error) {
	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", clientID)
	configuration.AddDefaultHeader("PLAID-SECRET", secret)
	configuration.HTTPClient = &http.Client{Timeout: timeout}

	switch env {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	default:
		return nil, fmt.Errorf("invalid Plaid environment: %s", env)
	}

	return plaid.NewAPIClient(configuration), nil
}

type Client struct {
	api        *plaid.APIClient
	clientName string
	breaker    *gobreaker.CircuitBreaker
	retry      resilience.Config
	metrics    *observability.Metrics
	tracer     trace.Tracer
}

func NewClient(cfg *config.Config, metrics *observability.Metrics) (*Client, error) {
	api, err := NewPlaidClient(cfg.PlaidClientID, cfg.PlaidSecret, cfg.PlaidEnv, cfg.HTTPTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		api:        api,
		clientName: cfg.PlaidClientName,
		breaker:    resilience.NewCircuitBreaker(serviceName),
		retry:      resilience.Config{MaxRetries: cfg.MaxRetries, InitialBackoff: cfg.InitialBackoff},
		metrics:    metrics,
		tracer:     otel.Tracer("horizon-server/plaid"),
	}, nil
}

// call runs fn inside a span and the breaker, and wraps failures as
// ErrExternalService.
func call[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := c.tracer.Start(ctx, "plaid."+op)
	defer span.End()

	start := time.Now()
	out, err := resilience.Call(ctx, c.breaker, c.retry, fn)
	c.metrics.RecordDuration("plaid."+op, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.IncrExternalError(serviceName)
		return out, &models.ErrExternalService{Service: serviceName, Err: describe(op, err)}
	}
	return out, nil
}

// withStatus tags a failed call with its HTTP status so the breaker can tell
// an item-level rejection from a Plaid outage.
func withStatus(httpResp *http.Response, err error) error {
	if err == nil || httpResp == nil {
		return err
	}
	return &resilience.StatusError{StatusCode: httpResp.StatusCode, Err: err}
}

// describe pulls the response body out of Plaid API errors, which otherwise
// only carry the HTTP status text.
func describe(op string, err error) error {
	var apiErr *plaid.GenericOpenAPIError
	if errors.As(err, &apiErr) && len(apiErr.Body()) > 0 {
		return fmt.Errorf("%s: %w: %s", op, err, apiErr.Body())
	}
	return fmt.Errorf("%s: %w", op, err)
}

// SyncPage reads one page of /transactions/sync. An empty cursor starts from
// the beginning of the item's history.
func (c *Client) SyncPage(ctx context.Context, accessToken, cursor string) (*transactions.SyncPage, error) {
	resp, err := call(ctx, c, "transactions_sync", func(ctx context.Context) (plaid.TransactionsSyncResponse, error) {
		req := plaid.NewTransactionsSyncRequest(accessToken)
		if cursor != "" {
			req.SetCursor(cursor)
		}
		resp, httpResp, err := c.api.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*req).Execute()
		return resp, withStatus(httpResp, err)
	})
	if err != nil {
		return nil, err
	}

	added := make([]models.Transaction, 0, len(resp.GetAdded()))
	for _, txn := range resp.GetAdded() {
		t, err := toTransaction(txn)
		if err != nil {
			return nil, &models.ErrExternalService{Service: serviceName, Err: err}
		}
		added = append(added, t)
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("plaid.added", len(added)))
	return &transactions.SyncPage{
		Added:      added,
		NextCursor: resp.GetNextCursor(),
		HasMore:    resp.GetHasMore(),
	}, nil
}

func toTransaction(txn plaid.Transaction) (models.Transaction, error) {
	date, err := time.Parse(dateLayout, txn.GetDate())
	if err != nil {
		return models.Transaction{}, fmt.Errorf("transaction %s: bad date %q: %w", txn.GetTransactionId(), txn.GetDate(), err)
	}

	t := models.Transaction{
		ID:             txn.GetTransactionId(),
		AccountID:      txn.GetAccountId(),
		Name:           txn.GetName(),
		Amount:         txn.GetAmount(),
		PaymentChannel: txn.GetPaymentChannel(),
		Pending:        txn.GetPending(),
		Date:           date,
	}
	if pfc, ok := txn.GetPersonalFinanceCategoryOk(); ok && pfc != nil && pfc.GetPrimary() != "" {
		primary := pfc.GetPrimary()
		t.PrimaryCategory = &primary
	}
	if logo, ok := txn.GetLogoUrlOk(); ok && logo != nil && *logo != "" {
		url := *logo
		t.LogoURL = &url
	}
	return t, nil
}

// GetAccount returns the first account on the item, which is the one the
// link flow selected.
func (c *Client) GetAccount(ctx context.Context, accessToken string) (*models.Account, error) {
	resp, err := call(ctx, c, "accounts_get", func(ctx context.Context) (plaid.AccountsGetResponse, error) {
		req := plaid.NewAccountsGetRequest(accessToken)
		resp, httpResp, err := c.api.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*req).Execute()
		return resp, withStatus(httpResp, err)
	})
	if err != nil {
		return nil, err
	}

	accounts := resp.GetAccounts()
	item := resp.GetItem()
	if len(accounts) == 0 {
		return nil, &models.ErrNotFound{Resource: "account", ID: item.GetItemId()}
	}

	acc := accounts[0]
	balances := acc.GetBalances()
	return &models.Account{
		ID:               acc.GetAccountId(),
		AvailableBalance: balances.GetAvailable(),
		CurrentBalance:   balances.GetCurrent(),
		InstitutionID:    item.GetInstitutionId(),
		Name:             acc.GetName(),
		OfficialName:     acc.GetOfficialName(),
		Mask:             acc.GetMask(),
		Type:             string(acc.GetType()),
		Subtype:          string(acc.GetSubtype()),
	}, nil
}

func (c *Client) GetInstitutionName(ctx context.Context, institutionID string) (string, error) {
	if institutionID == "" {
		return "", &models.ErrValidation{Field: "institution_id", Message: "required"}
	}
	resp, err := call(ctx, c, "institutions_get_by_id", func(ctx context.Context) (plaid.InstitutionsGetByIdResponse, error) {
		req := plaid.NewInstitutionsGetByIdRequest(institutionID, []plaid.CountryCode{plaid.COUNTRYCODE_US})
		resp, httpResp, err := c.api.PlaidApi.InstitutionsGetById(ctx).InstitutionsGetByIdRequest(*req).Execute()
		return resp, withStatus(httpResp, err)
	})
	if err != nil {
		return "", err
	}
	institution := resp.GetInstitution()
	return institution.GetName(), nil
}

func (c *Client) CreateLinkToken(ctx context.Context, clientUserID string) (string, error) {
	resp, err := call(ctx, c, "link_token_create", func(ctx context.Context) (plaid.LinkTokenCreateResponse, error) {
		user := plaid.LinkTokenCreateRequestUser{ClientUserId: clientUserID}
		req := plaid.NewLinkTokenCreateRequest(c.clientName, "en", []plaid.CountryCode{plaid.COUNTRYCODE_US})
		req.SetUser(user)
		req.SetProducts([]plaid.Products{plaid.PRODUCTS_AUTH, plaid.PRODUCTS_TRANSACTIONS})
		resp, httpResp, err := c.api.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*req).Execute()
		return resp, withStatus(httpResp, err)
	})
	if err != nil {
		return "", err
	}
	return resp.GetLinkToken(), nil
}

// ExchangePublicToken returns the item's access token and item id.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	resp, err := call(ctx, c, "item_public_token_exchange", func(ctx context.Context) (plaid.ItemPublicTokenExchangeResponse, error) {
		req := plaid.NewItemPublicTokenExchangeRequest(publicToken)
		resp, httpResp, err := c.api.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*req).Execute()
		return resp, withStatus(httpResp, err)
	})
	if err != nil {
		return "", "", err
	}
	return resp.GetAccessToken(), resp.GetItemId(), nil
}

// CreateProcessorToken issues a token the payments processor uses to pull
// account and routing numbers for accountID.
func (c *Client) CreateProcessorToken(ctx context.Context, accessToken, accountID string) (string, error) {
	resp, err := call(ctx, c, "processor_token_create", func(ctx context.Context) (plaid.ProcessorTokenCreateResponse, error) {
		req := plaid.NewProcessorTokenCreateRequest(accessToken, accountID, "dwolla")
		resp, httpResp, err := c.api.PlaidApi.ProcessorTokenCreate(ctx).ProcessorTokenCreateRequest(*req).Execute()
		return resp, withStatus(httpResp, err)
	})
	if err != nil {
		return "", err
	}
	return resp.GetProcessorToken(), nil
}

// VerificationKey fetches the JWK Plaid signed a webhook with.
func (c *Client) VerificationKey(ctx context.Context, kid string) (*util.JWK, error) {
	resp, err := call(ctx, c, "webhook_verification_key_get", func(ctx context.Context) (plaid.WebhookVerificationKeyGetResponse, error) {
		req := plaid.NewWebhookVerificationKeyGetRequest(kid)
		resp, httpResp, err := c.api.PlaidApi.WebhookVerificationKeyGet(ctx).WebhookVerificationKeyGetRequest(*req).Execute()
		return resp, withStatus(httpResp, err)
	})
	if err != nil {
		return nil, err
	}
	key := resp.GetKey()
	return &util.JWK{Kid: key.Kid, Kty: key.Kty, Crv: key.Crv, X: key.X, Y: key.Y}, nil
}
