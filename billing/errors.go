package billing

import "errors"

var (
	// ErrNoSecret means the webhook signing secret was never configured.
	ErrNoSecret = errors.New("webhook signing secret is not configured")

	// ErrNoSignature means the delivery arrived without a Stripe-Signature header.
	ErrNoSignature = errors.New("missing Stripe-Signature header")

	// ErrNoUserID means a well-signed subscription event carries no user id
	// in its metadata, so there is no record to reconcile against.
	ErrNoUserID = errors.New("user id not found in subscription metadata")

	// ErrUserNotFound means no durable record exists for the event's user id.
	ErrUserNotFound = errors.New("no user record for subscription event")
)
