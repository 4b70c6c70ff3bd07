package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/api"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Error is returned when the metering API answers with a non-2xx status code.
type Error struct {
	StatusCode int
	Message    string
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("metering api: status %d: %s", e.StatusCode, e.Message)
}

// client contains the HTTP client to connect to the metering API.
type client struct {
	baseURL string
	http    *http.Client
}

// RegisterAccount performs an HTTP request to create or update an account in the Metering API.
func (c *client) RegisterAccount(ctx context.Context, req api.RegisterAccountRequest) (api.RegisterAccountResponse, error) {
	var res api.RegisterAccountResponse
	err := c.do(ctx, http.MethodPut, accountPath(req.AccountID), req, &res)
	return res, err
}

// CreatePortalSession performs an HTTP request to create a billing-portal session.
func (c *client) CreatePortalSession(ctx context.Context, req api.CreatePortalSessionRequest) (api.CreatePortalSessionResponse, error) {
	var res api.CreatePortalSessionResponse
	err := c.do(ctx, http.MethodPost, accountPath(req.AccountID, "portal-session"), nil, &res)
	return res, err
}

// CreateSetupIntent performs an HTTP request to start collecting a card for an account.
func (c *client) CreateSetupIntent(ctx context.Context, req api.CreateSetupIntentRequest) (api.CreateSetupIntentResponse, error) {
	var res api.CreateSetupIntentResponse
	err := c.do(ctx, http.MethodPost, accountPath(req.AccountID, "setup-intent"), nil, &res)
	return res, err
}

// CheckPaymentMethods performs an HTTP request to list the cards of an account.
func (c *client) CheckPaymentMethods(ctx context.Context, req api.CheckPaymentMethodsRequest) (api.CheckPaymentMethodsResponse, error) {
	var res api.CheckPaymentMethodsResponse
	err := c.do(ctx, http.MethodGet, accountPath(req.AccountID, "cards"), nil, &res)
	return res, err
}

// AddUsageBasedBilling performs an HTTP request to subscribe an account to the metered price.
func (c *client) AddUsageBasedBilling(ctx context.Context, req api.AddUsageBasedBillingRequest) (api.AddUsageBasedBillingResponse, error) {
	var res api.AddUsageBasedBillingResponse
	err := c.do(ctx, http.MethodPost, accountPath(req.AccountID, "subscription"), nil, &res)
	return res, err
}

// ReportUsage performs an HTTP request to report usage of an account.
func (c *client) ReportUsage(ctx context.Context, req api.ReportUsageRequest) (api.ReportUsageResponse, error) {
	var res api.ReportUsageResponse
	err := c.do(ctx, http.MethodPost, accountPath(req.AccountID, "credits"), req, &res)
	return res, err
}

// CreateCheckoutSession performs an HTTP request to create a credit bundle checkout session.
func (c *client) CreateCheckoutSession(ctx context.Context, req api.CreateCheckoutSessionRequest) (api.CreateCheckoutSessionResponse, error) {
	var res api.CreateCheckoutSessionResponse
	err := c.do(ctx, http.MethodPost, accountPath(req.AccountID, "checkout-sessions"), req, &res)
	return res, err
}

// VerifyPayment performs an HTTP request to check the outcome of a checkout session.
func (c *client) VerifyPayment(ctx context.Context, req api.VerifyPaymentRequest) (api.VerifyPaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return api.VerifyPaymentResponse{}, err
	}
	var res api.VerifyPaymentResponse
	err := c.do(ctx, http.MethodPost, "/checkout-sessions/"+url.PathEscape(req.SessionID)+"/verify", nil, &res)
	return res, err
}

func (c *client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if err = json.NewDecoder(res.Body).Decode(&e); err != nil || len(e.Error) == 0 {
			e.Error = http.StatusText(res.StatusCode)
		}
		return &Error{StatusCode: res.StatusCode, Message: e.Error}
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func accountPath(id string, parts ...string) string {
	return "/" + strings.Join(append([]string{"accounts", url.PathEscape(id)}, parts...), "/")
}

// Client holds methods to interact with the Metering API.
type Client interface {
	api.AccountsV1
	api.BillingV1
}

// NewClient initializes a new Client implementation using an HTTP client. baseURL is the address the Metering API
// listens to. If httpClient is nil, http.DefaultClient is used.
func NewClient(baseURL string, httpClient *http.Client) Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}
