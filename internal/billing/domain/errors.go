package domain

import "errors"

var (
	ErrAlreadyPaid           = errors.New("invoice_already_paid")
	ErrDuplicateSubscription = errors.New("duplicate_subscription")
	ErrInvalidPrice          = errors.New("invalid_price")
	ErrInvalidProject        = errors.New("invalid_project")
	ErrInvoiceNotFound       = errors.New("invoice_not_found")
	ErrSubscriptionNotFound  = errors.New("subscription_not_found")
	ErrPaymentFailed         = errors.New("payment_failed")
	ErrCycleAlreadyAdvanced  = errors.New("billing_cycle_already_advanced")
)
