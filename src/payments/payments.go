// Package payments is a client for a Dwolla-style payments REST API:
// customers, bank funding sources and transfers between them.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"horizon-server/src/models"
	"horizon-server/src/observability"
	"horizon-server/src/resilience"
)

const (
	serviceName = "payments"
	mediaType   = "application/vnd.dwolla.v1.hal+json"
)

var tracer = otel.Tracer("horizon-server/payments")

// Client authenticates with client credentials and caches the bearer token
// until shortly before it expires.
type Client struct {
	httpClient *http.Client
	baseURL    string
	key        string
	secret     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	metrics    *observability.Metrics
	logger     *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(httpClient *http.Client, baseURL, key, secret string, cfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		key:        key,
		secret:     secret,
		cb:         resilience.NewCircuitBreaker(serviceName),
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// CreateCustomer opens a verified personal customer and returns its URL.
func (c *Client) CreateCustomer(ctx context.Context, req *models.RegisterRequest) (string, error) {
	body := map[string]any{
		"firstName":   req.FirstName,
		"lastName":    req.LastName,
		"email":       req.Email,
		"type":        "personal",
		"address1":    req.Address1,
		"city":        req.City,
		"state":       req.State,
		"postalCode":  req.PostalCode,
		"dateOfBirth": req.DateOfBirth,
		"ssn":         req.SSN,
	}
	return c.create(ctx, "create_customer", "/customers", body)
}

// AddFundingSource attaches the bank account behind processorToken to the
// customer and returns the funding source URL.
func (c *Client) AddFundingSource(ctx context.Context, customerID, processorToken, bankName string) (string, error) {
	auth, err := c.onDemandAuthorization(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"plaidToken": processorToken,
		"name":       bankName,
		"_links":     auth,
	}
	return c.create(ctx, "add_funding_source", "/customers/"+url.PathEscape(customerID)+"/funding-sources", body)
}

// CreateTransfer moves amount between two funding sources and returns the
// transfer URL.
func (c *Client) CreateTransfer(ctx context.Context, sourceURL, destinationURL string, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", &models.ErrValidation{Field: "amount", Message: "must be positive"}
	}
	body := map[string]any{
		"_links": map[string]any{
			"source":      map[string]string{"href": sourceURL},
			"destination": map[string]string{"href": destinationURL},
		},
		"amount": map[string]string{
			"currency": "USD",
			"value":    amount.StringFixed(2),
		},
	}
	return c.create(ctx, "create_transfer", "/transfers", body)
}

// CustomerIDFromURL returns the last path segment of a customer URL.
func CustomerIDFromURL(customerURL string) string {
	trimmed := strings.TrimRight(customerURL, "/")
	return trimmed[strings.LastIndex(trimmed, "/")+1:]
}

func (c *Client) onDemandAuthorization(ctx context.Context) (map[string]any, error) {
	var out struct {
		Links map[string]any `json:"_links"`
	}
	_, err := c.do(ctx, "on_demand_authorization", http.MethodPost, "/on-demand-authorizations", nil, &out)
	if err != nil {
		return nil, err
	}
	return map[string]any{"on-demand-authorization": out.Links["self"]}, nil
}

// create POSTs body and returns the Location of the created resource.
func (c *Client) create(ctx context.Context, op, path string, body any) (string, error) {
	resp, err := c.do(ctx, op, http.MethodPost, path, body, nil)
	if err != nil {
		return "", err
	}
	location := resp.Get("Location")
	if location == "" {
		return "", &models.ErrExternalService{Service: serviceName, Err: fmt.Errorf("%s: response has no Location", op)}
	}
	return location, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (http.Header, error) {
	ctx, span := tracer.Start(ctx, "payments."+op)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("payments.path", path))

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	header, err := resilience.Call(ctx, c.cb, c.cfg, func(ctx context.Context) (http.Header, error) {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", mediaType)
		req.Header.Set("Content-Type", mediaType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.resetToken()
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.logger.Warn("payments: non-2xx",
				zap.String("op", op),
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(respBody)),
			)
			return nil, &resilience.StatusError{
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(respBody)),
			}
		}
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return nil, fmt.Errorf("decode %s response: %w", op, err)
			}
		}
		return resp.Header, nil
	})
	c.metrics.RecordDuration("payments."+op, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.IncrExternalError(serviceName)
		return nil, &models.ErrExternalService{Service: serviceName, Err: err}
	}
	return header, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.key, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &resilience.StatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("token request returned %d", resp.StatusCode)}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token response has no access_token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - 30*time.Second)
	return c.token, nil
}

func (c *Client) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
