package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"

	MetadataBookingID = "bookingId"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Intent is the provider-side handle a client uses to complete payment.
type Intent struct {
	ID           string
	ClientSecret string
}

// Event is a verified provider notification reduced to the fields the
// reconciler acts on.
type Event struct {
	ID            string
	Type          string
	IntentID      string
	Amount        int64
	Currency      string
	BookingID     uuid.UUID
	Method        string
	FailureReason string
}

type StripeGateway struct {
	api           *client.API
	webhookSecret string
	log           *zap.Logger
}

func NewStripeGateway(secretKey, webhookSecret string, log *zap.Logger) *StripeGateway {
	return newStripeGateway(client.New(secretKey, nil), webhookSecret, log)
}

func newStripeGateway(api *client.API, webhookSecret string, log *zap.Logger) *StripeGateway {
	return &StripeGateway{
		api:           api,
		webhookSecret: webhookSecret,
		log:           log.With(zap.String("gateway", "stripe")),
	}
}

// CreatePaymentIntent is keyed on the booking id, so retrying for the same
// booking returns the intent created the first time.
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, amount int64, currency string, bookingID uuid.UUID) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataBookingID, bookingID.String())
	params.SetIdempotencyKey("booking-" + bookingID.String())

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		g.log.Error("failed to create payment intent",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	g.log.Info("payment intent created",
		zap.String("booking_id", bookingID.String()),
		zap.String("intent_id", pi.ID),
	)

	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx

	if _, err := g.api.PaymentIntents.Cancel(intentID, params); err != nil {
		return fmt.Errorf("cancel payment intent %s: %w", intentID, err)
	}
	return nil
}

// ParseEvent verifies the signature header before decoding anything from the
// payload.
func (g *StripeGateway) ParseEvent(payload []byte, signatureHeader string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrInvalidHeader) || errors.Is(err, webhook.ErrTooOld) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	event := &Event{ID: evt.ID, Type: string(evt.Type)}

	if event.Type != EventPaymentSucceeded && event.Type != EventPaymentFailed {
		return event, nil
	}

	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: missing data object", ErrMalformedEvent)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	bookingID, err := uuid.Parse(pi.Metadata[MetadataBookingID])
	if err != nil {
		return nil, fmt.Errorf("%w: metadata.%s is not a valid id", ErrMalformedEvent, MetadataBookingID)
	}

	event.IntentID = pi.ID
	event.Amount = pi.Amount
	event.Currency = string(pi.Currency)
	event.BookingID = bookingID
	event.Method = paymentMethodOf(&pi)
	if pi.LastPaymentError != nil {
		event.FailureReason = pi.LastPaymentError.Msg
	}

	return event, nil
}

func paymentMethodOf(pi *stripe.PaymentIntent) string {
	if pi.PaymentMethod != nil && pi.PaymentMethod.Type != "" {
		return string(pi.PaymentMethod.Type)
	}
	if len(pi.PaymentMethodTypes) > 0 {
		return pi.PaymentMethodTypes[0]
	}
	return "unknown"
}
