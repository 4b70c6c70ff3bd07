package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/accounts"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/adapter"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/api"
	"io"
	"net/http"
)

// maxBodySize is the largest request body accepted by the JSON handlers.
const maxBodySize = 1 << 20

// RegisterAccount is an HTTP handler to call the api.AccountsV1's RegisterAccount method.
func (s *Server) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.AccountID = chi.URLParam(r, "accountID")

	res, err := s.billing.RegisterAccount(r.Context(), req)
	s.respond(w, r, res, err)
}

// CreatePortalSession is an HTTP handler to call the api.BillingV1's CreatePortalSession method.
func (s *Server) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	res, err := s.billing.CreatePortalSession(r.Context(), api.CreatePortalSessionRequest{
		AccountID: chi.URLParam(r, "accountID"),
	})
	s.respond(w, r, res, err)
}

// CreateSetupIntent is an HTTP handler to call the api.BillingV1's CreateSetupIntent method.
func (s *Server) CreateSetupIntent(w http.ResponseWriter, r *http.Request) {
	res, err := s.billing.CreateSetupIntent(r.Context(), api.CreateSetupIntentRequest{
		AccountID: chi.URLParam(r, "accountID"),
	})
	s.respond(w, r, res, err)
}

// CheckPaymentMethods is an HTTP handler to call the api.BillingV1's CheckPaymentMethods method.
func (s *Server) CheckPaymentMethods(w http.ResponseWriter, r *http.Request) {
	res, err := s.billing.CheckPaymentMethods(r.Context(), api.CheckPaymentMethodsRequest{
		AccountID: chi.URLParam(r, "accountID"),
	})
	s.respond(w, r, res, err)
}

// AddUsageBasedBilling is an HTTP handler to call the api.BillingV1's AddUsageBasedBilling method.
func (s *Server) AddUsageBasedBilling(w http.ResponseWriter, r *http.Request) {
	res, err := s.billing.AddUsageBasedBilling(r.Context(), api.AddUsageBasedBillingRequest{
		AccountID: chi.URLParam(r, "accountID"),
	})
	s.respond(w, r, res, err)
}

// ReportUsage is an HTTP handler to call the api.BillingV1's ReportUsage method.
func (s *Server) ReportUsage(w http.ResponseWriter, r *http.Request) {
	var req api.ReportUsageRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.AccountID = chi.URLParam(r, "accountID")

	res, err := s.billing.ReportUsage(r.Context(), req)
	s.respond(w, r, res, err)
}

// CreateCheckoutSession is an HTTP handler to call the api.BillingV1's CreateCheckoutSession method.
func (s *Server) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCheckoutSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.AccountID = chi.URLParam(r, "accountID")

	res, err := s.billing.CreateCheckoutSession(r.Context(), req)
	s.respond(w, r, res, err)
}

// VerifyPayment is an HTTP handler to call the api.BillingV1's VerifyPayment method.
// The session is read from the route, or from the session_id query parameter the hosted checkout redirects with.
func (s *Server) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if len(id) == 0 {
		id = r.URL.Query().Get("session_id")
	}

	res, err := s.billing.VerifyPayment(r.Context(), api.VerifyPaymentRequest{
		SessionID: id,
	})
	s.respond(w, r, res, err)
}

// Metrics returns the HTTP handler exposing the collected metrics.
func (s *Server) Metrics() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

// decode reads the JSON body of r into out. It writes a 400 response and returns false if the body is malformed.
// An empty body decodes as the zero value.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(out)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.logger.WithField("request_id", middleware.GetReqID(r.Context())).WithError(err).Warn("Failed to decode request body")
	s.writeError(w, http.StatusBadRequest, "Malformed request body")
	return false
}

// respond writes res as JSON, or the response matching err if the call failed.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, res interface{}, err error) {
	if err != nil {
		status := statusCode(err)
		logger := s.logger.WithField("request_id", middleware.GetReqID(r.Context())).WithError(err)
		if status >= http.StatusInternalServerError {
			logger.Error("Request failed")
			s.writeError(w, status, http.StatusText(status))
			return
		}
		logger.Info("Request rejected")
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// statusCode returns the HTTP status reported for err.
func statusCode(err error) int {
	switch {
	case errors.Is(err, api.ErrEmptyAccountID),
		errors.Is(err, api.ErrEmptyEmail),
		errors.Is(err, api.ErrEmptySessionID),
		errors.Is(err, api.ErrInvalidQuantity),
		errors.Is(err, api.ErrInvalidUnitPrice),
		errors.Is(err, api.ErrInvalidCreditQuantity):
		return http.StatusBadRequest
	case errors.Is(err, accounts.ErrAccountNotFound):
		return http.StatusNotFound
	}
	var gwErr *adapter.Error
	if errors.As(err, &gwErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorBody is the body of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorBody{Error: fmt.Sprintf("%s - %s", http.StatusText(status), msg)})
}

// writeJSON writes v as the JSON body of a response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
		status = http.StatusInternalServerError
		body = []byte(fmt.Sprintf(`{"error":"%s - Failed to encode response"}`, http.StatusText(status)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(append(body, '\n')); err != nil {
		s.logger.WithError(err).Warn("Failed to write response")
	}
}
