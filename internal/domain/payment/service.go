// Package payment wraps PayPal order creation and capture for the fixed-price
// consultation fee. No webhook processing; the client polls capture status.
package payment

import (
	"context"
	"fmt"

	"github.com/plutov/paypal/v4"
	"github.com/rs/zerolog"
)

const (
	ConsultationFee      = "0.02"
	ConsultationCurrency = "USD"
)

// OrderAPI is the slice of the PayPal client this package needs.
type OrderAPI interface {
	CreateOrder(ctx context.Context, intent string, purchaseUnits []paypal.PurchaseUnitRequest,
		payer *paypal.CreateOrderPayer, appContext *paypal.ApplicationContext) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string, req paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error)
}

type Service struct {
	orders OrderAPI
	logger zerolog.Logger
}

func NewService(orders OrderAPI, logger zerolog.Logger) *Service {
	return &Service{orders: orders, logger: logger}
}

// CreateConsultationOrder opens a capture-intent order for the consultation fee.
func (s *Service) CreateConsultationOrder(ctx context.Context) (*paypal.Order, error) {
	order, err := s.orders.CreateOrder(ctx, paypal.OrderIntentCapture, []paypal.PurchaseUnitRequest{
		{
			Amount: &paypal.PurchaseUnitAmount{
				Currency: ConsultationCurrency,
				Value:    ConsultationFee,
			},
		},
	}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create paypal order: %w", err)
	}

	s.logger.Info().Str("order_id", order.ID).Msg("paypal order created")
	return order, nil
}

// CaptureConsultationOrder captures a previously approved order.
func (s *Service) CaptureConsultationOrder(ctx context.Context, orderID string) (*paypal.CaptureOrderResponse, error) {
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	capture, err := s.orders.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, fmt.Errorf("capture paypal order: %w", err)
	}

	s.logger.Info().Str("order_id", orderID).Str("status", capture.Status).Msg("paypal order captured")
	return capture, nil
}

// CreateAndCaptureConsultationOrder runs the whole flow in one call for
// clients whose funding source needs no approval redirect.
func (s *Service) CreateAndCaptureConsultationOrder(ctx context.Context) (string, *paypal.CaptureOrderResponse, error) {
	order, err := s.CreateConsultationOrder(ctx)
	if err != nil {
		return "", nil, err
	}
	capture, err := s.CaptureConsultationOrder(ctx, order.ID)
	if err != nil {
		return order.ID, nil, err
	}
	return order.ID, capture, nil
}
