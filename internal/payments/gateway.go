package payments

import (
	"context"
	"errors"
	"fmt"

	"meridian-backend/internal/appointment"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeGateway charges and refunds through the Stripe API. A nil
// gateway means payments are not configured for this deployment.
type StripeGateway struct {
	api *client.API
}

// NewStripe returns nil when no secret key is configured, so callers
// can keep a nil PaymentGateway and fail bookings loudly.
func NewStripe(secretKey string) *StripeGateway {
	if secretKey == "" {
		return nil
	}
	return &StripeGateway{api: client.New(secretKey, nil)}
}

func (g *StripeGateway) Charge(ctx context.Context, req appointment.ChargeRequest) (appointment.ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(string(stripe.CurrencyUSD)),
		PaymentMethod:      stripe.String(req.PaymentMethodID),
		Confirm:            stripe.Bool(true),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return appointment.ChargeResult{}, fmt.Errorf("%w: %s", appointment.ErrPaymentDeclined, stripeErr.Msg)
		}
		return appointment.ChargeResult{}, fmt.Errorf("stripe charge: %w", err)
	}

	return appointment.ChargeResult{
		PaymentID: intent.ID,
		Succeeded: intent.Status == stripe.PaymentIntentStatusSucceeded,
	}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, paymentID string, amount int64, idempotencyKey string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentID),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(idempotencyKey)

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe refund: %w", err)
	}
	return refund.ID, nil
}

// CreateSetupIntent provisions a client secret for collecting a payment
// method on the booking form before the actual charge.
func (g *StripeGateway) CreateSetupIntent(ctx context.Context) (string, error) {
	params := &stripe.SetupIntentParams{
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx

	intent, err := g.api.SetupIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe setup intent: %w", err)
	}
	return intent.ClientSecret, nil
}
