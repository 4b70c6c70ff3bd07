package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"gitlab.com/ignitionrobotics/billing/metering/internal/conf"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/accounts"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/adapter"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/api"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/application"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/fake"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var ctxMatcher = mock.AnythingOfType("*context.timerCtx")

type handlersTestSuite struct {
	suite.Suite
	Adapter  *fake.Adapter
	Accounts accounts.Repository
	Server   *Server
	Hook     *logtest.Hook
	handler  http.Handler
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(handlersTestSuite))
}

func (s *handlersTestSuite) SetupTest() {
	logger, hook := logtest.NewNullLogger()
	s.Hook = hook
	registry := prometheus.NewRegistry()

	s.Adapter = new(fake.Adapter)
	s.Accounts = accounts.NewMemoryRepository(accounts.Account{
		ID:      "user_123",
		Name:    "Test User",
		Email:   "test@example.com",
		Billing: &accounts.BillingProfile{CustomerID: "cus_123"},
	})

	billing := application.NewBillingService(application.Options{
		Accounts:   s.Accounts,
		Adapter:    s.Adapter,
		Logger:     logger,
		Metrics:    application.NewMetrics(registry),
		Timeout:    time.Second,
		PriceID:    "price_metered",
		SuccessURL: "http://localhost/verify-payment?session_id={CHECKOUT_SESSION_ID}",
	})

	s.Server = NewServer(Options{
		Config:   conf.Config{Port: 0},
		Billing:  billing,
		Logger:   logger,
		Gatherer: registry,
	})
	s.handler = s.Server.Handler()
}

func (s *handlersTestSuite) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *handlersTestSuite) decode(rr *httptest.ResponseRecorder, out interface{}) {
	s.Require().Equal("application/json", rr.Header().Get("Content-Type"))
	s.Require().NoError(json.NewDecoder(rr.Body).Decode(out))
}

func (s *handlersTestSuite) TestRegisterAccount() {
	rr := s.do(http.MethodPut, "/accounts/user_456", api.RegisterAccountRequest{
		Name:  "Another User",
		Email: "another@example.com",
	})
	s.Require().Equal(http.StatusOK, rr.Code)

	var res api.RegisterAccountResponse
	s.decode(rr, &res)
	s.Assert().Equal("user_456", res.AccountID)

	acc, err := s.Accounts.Get(context.Background(), "user_456")
	s.Require().NoError(err)
	s.Assert().Equal("another@example.com", acc.Email)
	s.Assert().NotNil(acc.Billing)
}

func (s *handlersTestSuite) TestRegisterAccountMissingEmail() {
	rr := s.do(http.MethodPut, "/accounts/user_456", api.RegisterAccountRequest{Name: "Another User"})
	s.Assert().Equal(http.StatusBadRequest, rr.Code)
}

func (s *handlersTestSuite) TestMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/accounts/user_123/credits", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	s.Assert().Equal(http.StatusBadRequest, rr.Code)
	s.Adapter.AssertNotCalled(s.T(), "CreateMeterEvent", mock.Anything, mock.Anything)
}

func (s *handlersTestSuite) TestCheckPaymentMethods() {
	s.Adapter.On("GetCustomer", ctxMatcher, "cus_123").Return(adapter.Customer{ID: "cus_123"}, error(nil))
	s.Adapter.On("ListCards", ctxMatcher, "cus_123").Return([]adapter.Card{
		{Last4: "4242", Brand: "visa", ExpMonth: 12, ExpYear: 2030},
	}, error(nil))

	rr := s.do(http.MethodGet, "/accounts/user_123/cards", nil)
	s.Require().Equal(http.StatusOK, rr.Code)

	var res api.CheckPaymentMethodsResponse
	s.decode(rr, &res)
	s.Assert().True(res.HasPaymentMethod)
	s.Require().Len(res.Cards, 1)
	s.Assert().Equal("4242", res.Cards[0].Last4)
}

func (s *handlersTestSuite) TestUnknownAccount() {
	rr := s.do(http.MethodGet, "/accounts/user_missing/cards", nil)
	s.Assert().Equal(http.StatusNotFound, rr.Code)
}

func (s *handlersTestSuite) TestUnexpectedFailureHidesDetails() {
	s.Adapter.On("GetCustomer", ctxMatcher, "cus_123").Return(adapter.Customer{ID: "cus_123"}, error(nil))
	s.Adapter.On("CreatePortalSession", ctxMatcher, "cus_123", "").
		Return(adapter.PortalSession{}, errors.New("dial tcp: connection refused"))

	rr := s.do(http.MethodPost, "/accounts/user_123/portal-session", nil)
	s.Assert().Equal(http.StatusInternalServerError, rr.Code)
	s.Assert().NotContains(rr.Body.String(), "connection refused")
}

func (s *handlersTestSuite) TestCreatePortalSession() {
	s.Adapter.On("GetCustomer", ctxMatcher, "cus_123").Return(adapter.Customer{ID: "cus_123"}, error(nil))
	s.Adapter.On("CreatePortalSession", ctxMatcher, "cus_123", "").
		Return(adapter.PortalSession{ID: "bps_123", URL: "https://billing.stripe.com/p/session/bps_123"}, error(nil))

	rr := s.do(http.MethodPost, "/accounts/user_123/portal-session", nil)
	s.Require().Equal(http.StatusOK, rr.Code)

	var res api.CreatePortalSessionResponse
	s.decode(rr, &res)
	s.Assert().Equal("https://billing.stripe.com/p/session/bps_123", res.PortalURL)
}

func (s *handlersTestSuite) TestAddUsageBasedBillingWithoutCards() {
	s.Adapter.On("GetCustomer", ctxMatcher, "cus_123").Return(adapter.Customer{ID: "cus_123"}, error(nil))
	s.Adapter.On("ListCards", ctxMatcher, "cus_123").Return([]adapter.Card{}, error(nil))

	rr := s.do(http.MethodPost, "/accounts/user_123/subscription", nil)
	s.Require().Equal(http.StatusOK, rr.Code)

	var res api.AddUsageBasedBillingResponse
	s.decode(rr, &res)
	s.Assert().False(res.OK)
	s.Assert().Equal(api.MessageNoPaymentMethod, res.Error)
	s.Adapter.AssertNotCalled(s.T(), "CreateSubscription", mock.Anything, mock.Anything, mock.Anything)
}

func (s *handlersTestSuite) TestReportUsageWithoutSubscription() {
	rr := s.do(http.MethodPost, "/accounts/user_123/credits", map[string]int64{"quantity": 10})
	s.Require().Equal(http.StatusOK, rr.Code)

	var res api.ReportUsageResponse
	s.decode(rr, &res)
	s.Assert().False(res.OK)
	s.Assert().Equal(api.MessageNoActiveSubscription, res.Error)
}

func (s *handlersTestSuite) TestReportUsageInvalidQuantity() {
	rr := s.do(http.MethodPost, "/accounts/user_123/credits", map[string]int64{"quantity": 0})
	s.Assert().Equal(http.StatusBadRequest, rr.Code)
}

func (s *handlersTestSuite) TestCreateCheckoutSession() {
	s.Adapter.On("GetCustomer", ctxMatcher, "cus_123").Return(adapter.Customer{ID: "cus_123"}, error(nil))
	s.Adapter.On("CreateCheckoutSession", ctxMatcher, mock.MatchedBy(func(in adapter.CreateCheckoutSessionInput) bool {
		return in.LineItem.UnitAmount == 1000 && in.Metadata["creditQuantity"] == "100"
	})).Return(adapter.CheckoutSession{ID: "cs_123", URL: "https://checkout.stripe.com/c/pay/cs_123"}, error(nil))

	rr := s.do(http.MethodPost, "/accounts/user_123/checkout-sessions", map[string]interface{}{
		"unit_price":      10.0,
		"credit_quantity": 100,
	})
	s.Require().Equal(http.StatusOK, rr.Code)

	var res api.CreateCheckoutSessionResponse
	s.decode(rr, &res)
	s.Assert().Equal("https://checkout.stripe.com/c/pay/cs_123", res.URL)
}

func (s *handlersTestSuite) TestVerifyPayment() {
	s.Adapter.On("GetCheckoutSession", ctxMatcher, "cs_123").Return(adapter.CheckoutSession{
		ID:            "cs_123",
		PaymentStatus: "paid",
		Metadata:      map[string]string{"accountId": "user_123", "creditQuantity": "100", "unitPrice": "10"},
	}, error(nil))

	for _, target := range []string{"/checkout-sessions/cs_123/verify", "/verify-payment?session_id=cs_123"} {
		method := http.MethodPost
		if strings.HasPrefix(target, "/verify-payment") {
			method = http.MethodGet
		}
		rr := s.do(method, target, nil)
		s.Require().Equal(http.StatusOK, rr.Code, target)

		var res api.VerifyPaymentResponse
		s.decode(rr, &res)
		s.Assert().True(res.OK)
		s.Assert().Equal(int64(100), res.CreditsGranted)
		s.Assert().Equal(10.0, res.Price)
	}
}

func (s *handlersTestSuite) TestVerifyPaymentMissingSession() {
	rr := s.do(http.MethodGet, "/verify-payment", nil)
	s.Assert().Equal(http.StatusBadRequest, rr.Code)
}

func (s *handlersTestSuite) TestVerifyPaymentGatewayError() {
	s.Adapter.On("GetCheckoutSession", ctxMatcher, "cs_missing").
		Return(adapter.CheckoutSession{}, &adapter.Error{Code: "resource_missing", StatusCode: http.StatusNotFound})

	rr := s.do(http.MethodPost, "/checkout-sessions/cs_missing/verify", nil)
	s.Assert().Equal(http.StatusBadGateway, rr.Code)
}

func (s *handlersTestSuite) TestMetrics() {
	s.Adapter.On("GetCheckoutSession", ctxMatcher, "cs_123").
		Return(adapter.CheckoutSession{ID: "cs_123", PaymentStatus: "unpaid"}, error(nil))
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/checkout-sessions/cs_123/verify", nil).Code)

	rr := s.do(http.MethodGet, "/metrics", nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Assert().Contains(rr.Body.String(), "metering_gateway_requests_total")
}

func (s *handlersTestSuite) TestCreateSetupIntent() {
	s.Adapter.On("GetCustomer", ctxMatcher, "cus_123").Return(adapter.Customer{ID: "cus_123"}, error(nil))
	s.Adapter.On("CreateSetupIntent", ctxMatcher, "cus_123").
		Return(adapter.SetupIntent{ID: "seti_123", ClientSecret: "seti_123_secret_abc"}, error(nil))

	rr := s.do(http.MethodPost, "/accounts/user_123/setup-intent", nil)
	s.Require().Equal(http.StatusOK, rr.Code)

	var res api.CreateSetupIntentResponse
	s.decode(rr, &res)
	s.Assert().Equal("seti_123_secret_abc", res.ClientSecret)
}

func (s *handlersTestSuite) TestCreateCheckoutSessionPriceTooLarge() {
	rr := s.do(http.MethodPost, "/accounts/user_123/checkout-sessions", map[string]interface{}{
		"unit_price":      1e17,
		"credit_quantity": 1,
	})
	s.Assert().Equal(http.StatusBadRequest, rr.Code)
	s.Adapter.AssertNotCalled(s.T(), "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func (s *handlersTestSuite) TestWriteJSONEncodeFailure() {
	rr := httptest.NewRecorder()
	s.Server.writeJSON(rr, http.StatusOK, math.Inf(1))

	s.Assert().Equal(http.StatusInternalServerError, rr.Code)
	var body map[string]string
	s.Require().NoError(json.NewDecoder(rr.Body).Decode(&body))
	s.Assert().Contains(body["error"], "Failed to encode response")

	entry := s.Hook.LastEntry()
	s.Require().NotNil(entry)
	s.Assert().Equal(logrus.ErrorLevel, entry.Level)
	s.Assert().Equal("Failed to encode response", entry.Message)
}

// failingWriter is a http.ResponseWriter whose body can't be written.
type failingWriter struct {
	*httptest.ResponseRecorder
}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func (s *handlersTestSuite) TestWriteJSONWriteFailure() {
	s.Server.writeJSON(failingWriter{httptest.NewRecorder()}, http.StatusOK, api.CreateSetupIntentResponse{})

	entry := s.Hook.LastEntry()
	s.Require().NotNil(entry)
	s.Assert().Equal(logrus.WarnLevel, entry.Level)
	s.Assert().Equal("Failed to write response", entry.Message)
}
