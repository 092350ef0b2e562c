package services

import (
	"errors"
	"fmt"

	"github.com/cloth-shop/api/internal/repositories"
)

var (
	// ErrValidation signals the caller provided invalid input.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound is the parent of every entity-specific not-found error.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the caller may not act on the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a concurrent write won.
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrRefundInProgress  = errors.New("refund already in progress")
	// ErrNoSuccessfulPayment indicates a refund was requested for an unpaid order.
	ErrNoSuccessfulPayment = errors.New("no successful payment for order")
	// ErrGateway wraps payment gateway failures.
	ErrGateway          = errors.New("payment gateway error")
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	// ErrUnavailable indicates a backing store could not be reached.
	ErrUnavailable = errors.New("service unavailable")
)

var (
	ErrOrderNotFound    = fmt.Errorf("order %w", ErrNotFound)
	ErrPaymentNotFound  = fmt.Errorf("payment %w", ErrNotFound)
	ErrRefundNotFound   = fmt.Errorf("refund %w", ErrNotFound)
	ErrAddressNotFound  = fmt.Errorf("address %w", ErrNotFound)
	ErrCartLineNotFound = fmt.Errorf("cart item %w", ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("product %w", ErrNotFound)
	ErrVariantNotFound  = fmt.Errorf("variant %w", ErrNotFound)
)

var (
	// ErrPaymentMethodRequired reports that the intent still needs a payment method.
	ErrPaymentMethodRequired   = fmt.Errorf("%w: payment method required", ErrGateway)
	ErrUnexpectedGatewayStatus = fmt.Errorf("%w: unexpected payment status", ErrGateway)
)

// mapRepositoryError converts repository failures into service sentinels. notFound is used
// when the repository reports a missing row.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			if notFound == nil {
				notFound = ErrNotFound
			}
			return fmt.Errorf("%w: %v", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
