package application

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/accounts"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/adapter"
	"gitlab.com/ignitionrobotics/billing/metering/pkg/api"
)

// ReportUsage emits a meter event for the given account. Events are sent once and never retried.
func (s *service) ReportUsage(ctx context.Context, req api.ReportUsageRequest) (api.ReportUsageResponse, error) {
	if err := req.Validate(); err != nil {
		return api.ReportUsageResponse{}, err
	}
	logger := s.logger.WithFields(logrus.Fields{
		"account_id": req.AccountID,
		"quantity":   req.Quantity,
	})

	var res api.ReportUsageResponse
	err := s.withAccount(ctx, req.AccountID, func(ctx context.Context, acc *accounts.Account) error {
		if !acc.Billing.HasSubscription() {
			s.metrics.BusinessFailures.WithLabelValues("report_usage", "no_active_subscription").Inc()
			res = api.ReportUsageResponse{Error: api.MessageNoActiveSubscription}
			return nil
		}

		customerID, err := s.resolveCustomer(ctx, acc)
		if err != nil {
			return err
		}

		ev, err := s.adapter.CreateMeterEvent(ctx, adapter.MeterEventInput{
			EventName:  api.MeterEventAPIRequest,
			CustomerID: customerID,
			Value:      req.Quantity,
			Identifier: uuid.NewString(),
		})
		if s.metrics.gateway("create_meter_event", err) != nil {
			var gwErr *adapter.Error
			if errors.As(err, &gwErr) {
				s.metrics.BusinessFailures.WithLabelValues("report_usage", "gateway_error").Inc()
				logger.WithError(err).Warn("Gateway rejected meter event, usage dropped")
				res = api.ReportUsageResponse{Error: gatewayMessage(gwErr)}
				return nil
			}
			return err
		}

		logger.WithField("identifier", ev.Identifier).Info("Usage reported")
		res = api.ReportUsageResponse{
			OK:         true,
			MeterEvent: meterEvent(ev),
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).Error("Failed to report usage")
		return api.ReportUsageResponse{}, err
	}
	return res, nil
}

// meterEvent converts a gateway meter event into its api representation. Zero values become nil.
func meterEvent(ev adapter.MeterEvent) *api.MeterEvent {
	res := api.MeterEvent{
		EventName:  ev.EventName,
		Identifier: ev.Identifier,
	}
	if ev.Timestamp != 0 {
		ts := ev.Timestamp
		res.Timestamp = &ts
	}
	if ev.Created != 0 {
		created := ev.Created
		res.Created = &created
	}
	if len(ev.Status) > 0 {
		status := ev.Status
		res.Status = &status
	}
	return &res
}
