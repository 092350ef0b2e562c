package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey           string
	WebhookSecret    string
	Currency         string
	Backends         *stripe.Backends
	WebhookTolerance time.Duration
	Logger           StripeLogger
	Clients          *stripeClients
}

// StripeGateway implements Gateway on top of Stripe Payment Intents.
type StripeGateway struct {
	api           stripeClients
	webhookSecret string
	currency      string
	tolerance     time.Duration
	logger        StripeLogger
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway constructs a Stripe gateway using the given configuration.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeGateway{
		api:           clients,
		webhookSecret: secret,
		currency:      currency,
		tolerance:     tolerance,
		logger:        logger,
	}, nil
}

// CreateIntent creates a Payment Intent with automatic payment methods enabled.
func (g *StripeGateway) CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error) {
	if g == nil {
		return Intent{}, errors.New("stripe: gateway is nil")
	}
	if req.AmountMinor <= 0 {
		return Intent{}, fmt.Errorf("stripe: amount must be positive, got %d", req.AmountMinor)
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = g.currency
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.ReceiptEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := g.api.intents.New(params)
	if err != nil {
		g.logger(ctx, "payments.stripe.intent.create_failed", map[string]any{
			"amount":   req.AmountMinor,
			"currency": currency,
			"error":    err.Error(),
		})
		return Intent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
		"status":        intent.Status,
	})
	return stripeIntent(intent), nil
}

// RetrieveIntent reads the current state of a Payment Intent.
func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	if g == nil {
		return Intent{}, errors.New("stripe: gateway is nil")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Intent{}, errors.New("stripe: payment intent id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := g.api.intents.Get(intentID, params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: retrieve payment intent: %w", err)
	}
	g.logger(ctx, "payments.stripe.intent.retrieved", map[string]any{
		"paymentIntent": intent.ID,
		"status":        intent.Status,
	})
	return stripeIntent(intent), nil
}

// IssueRefund refunds a charge, fully or for AmountMinor when positive.
func (g *StripeGateway) IssueRefund(ctx context.Context, req RefundRequest) (Refund, error) {
	if g == nil {
		return Refund{}, errors.New("stripe: gateway is nil")
	}
	chargeID := strings.TrimSpace(req.ChargeID)
	if chargeID == "" {
		return Refund{}, errors.New("stripe: charge id is required")
	}
	params := &stripe.RefundParams{
		Charge: stripe.String(chargeID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.AmountMinor > 0 {
		params.Amount = stripe.Int64(req.AmountMinor)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	refund, err := g.api.refunds.New(params)
	if err != nil {
		g.logger(ctx, "payments.stripe.refund.failed", map[string]any{
			"charge": chargeID,
			"error":  err.Error(),
		})
		return Refund{}, fmt.Errorf("stripe: create refund: %w", err)
	}
	g.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"refund": refund.ID,
		"charge": chargeID,
		"status": refund.Status,
	})
	return stripeRefund(refund), nil
}

// ParseEvent verifies the Stripe-Signature header and decodes the event object.
func (g *StripeGateway) ParseEvent(ctx context.Context, payload []byte, signature string) (Event, error) {
	if g == nil {
		return Event{}, errors.New("stripe: gateway is nil")
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                g.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return Event{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	out := Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return out, nil
	}

	switch out.Type {
	case EventPaymentIntentSucceeded, EventPaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			return Event{}, fmt.Errorf("%w: decode payment intent: %v", ErrMalformedEvent, err)
		}
		converted := stripeIntent(&intent)
		out.Intent = &converted
	case EventChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &charge); err != nil {
			return Event{}, fmt.Errorf("%w: decode charge: %v", ErrMalformedEvent, err)
		}
		out.Charge = stripeCharge(&charge)
	case EventChargeRefundUpdated:
		var refund stripe.Refund
		if err := json.Unmarshal(evt.Data.Raw, &refund); err != nil {
			return Event{}, fmt.Errorf("%w: decode refund: %v", ErrMalformedEvent, err)
		}
		converted := stripeRefund(&refund)
		out.Refund = &converted
	}

	g.logger(ctx, "payments.stripe.webhook.verified", map[string]any{
		"eventId":   out.ID,
		"eventType": out.Type,
	})
	return out, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrTooOld)
}

func stripeIntent(intent *stripe.PaymentIntent) Intent {
	if intent == nil {
		return Intent{}
	}
	out := Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       IntentStatus(intent.Status),
		AmountMinor:  intent.Amount,
		Currency:     strings.ToLower(string(intent.Currency)),
	}
	if intent.LatestCharge != nil {
		out.LatestChargeID = intent.LatestCharge.ID
	}
	if intent.PaymentMethod != nil {
		out.PaymentMethodID = intent.PaymentMethod.ID
	}
	if intent.LastPaymentError != nil {
		out.LastErrorMessage = intent.LastPaymentError.Msg
	}
	if len(intent.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(intent.Metadata))
		for k, v := range intent.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func stripeRefund(refund *stripe.Refund) Refund {
	if refund == nil {
		return Refund{}
	}
	out := Refund{
		ID:            refund.ID,
		Status:        RefundStatus(refund.Status),
		AmountMinor:   refund.Amount,
		FailureReason: string(refund.FailureReason),
	}
	if refund.Charge != nil {
		out.ChargeID = refund.Charge.ID
	}
	return out
}

func stripeCharge(charge *stripe.Charge) *Charge {
	out := &Charge{
		ID:       charge.ID,
		Refunded: charge.Refunded,
	}
	if charge.PaymentIntent != nil {
		out.PaymentIntentID = charge.PaymentIntent.ID
	}
	if charge.Refunds != nil {
		for _, refund := range charge.Refunds.Data {
			if refund != nil && refund.ID != "" {
				out.RefundIDs = append(out.RefundIDs, refund.ID)
			}
		}
	}
	return out
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer), "return", "product_defect", "order_cancelled":
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
