package payments

import (
	"context"
	"errors"
)

// IntentStatus is the gateway-side state of a payment intent.
type IntentStatus string

const (
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentStatusRequiresAction        IntentStatus = "requires_action"
	IntentStatusProcessing            IntentStatus = "processing"
	IntentStatusRequiresCapture       IntentStatus = "requires_capture"
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
)

// RefundStatus is the gateway-side state of a refund.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
	RefundStatusCanceled  RefundStatus = "canceled"
)

// Event types the webhook handler acts on.
const (
	EventPaymentIntentSucceeded     = "payment_intent.succeeded"
	EventPaymentIntentPaymentFailed = "payment_intent.payment_failed"
	EventChargeRefunded             = "charge.refunded"
	EventChargeRefundUpdated        = "charge.refund.updated"
	EventChargeDisputeCreated       = "charge.dispute.created"
)

var (
	// ErrSignatureInvalid is returned when a webhook payload fails signature verification.
	ErrSignatureInvalid = errors.New("payments: webhook signature invalid")
	// ErrMalformedEvent is returned when a verified payload cannot be decoded.
	ErrMalformedEvent = errors.New("payments: malformed webhook event")
)

// CreateIntentRequest describes a new payment intent. AmountMinor is in the currency's
// minor unit.
type CreateIntentRequest struct {
	AmountMinor    int64
	Currency       string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the normalised view of a gateway payment intent.
type Intent struct {
	ID               string
	ClientSecret     string
	Status           IntentStatus
	AmountMinor      int64
	Currency         string
	LatestChargeID   string
	PaymentMethodID  string
	LastErrorMessage string
	Metadata         map[string]string
}

// RefundRequest asks the gateway to return money for a charge.
type RefundRequest struct {
	ChargeID       string
	AmountMinor    int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// Refund is the normalised view of a gateway refund.
type Refund struct {
	ID            string
	Status        RefundStatus
	ChargeID      string
	AmountMinor   int64
	FailureReason string
}

// Charge is the subset of a gateway charge carried by refund events.
type Charge struct {
	ID              string
	PaymentIntentID string
	Refunded        bool
	RefundIDs       []string
}

// Event is a verified webhook notification. Only the object matching Type is populated.
type Event struct {
	ID     string
	Type   string
	Intent *Intent
	Charge *Charge
	Refund *Refund
}

// Gateway abstracts the payment service provider.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (Intent, error)
	IssueRefund(ctx context.Context, req RefundRequest) (Refund, error)
	ParseEvent(ctx context.Context, payload []byte, signature string) (Event, error)
}
