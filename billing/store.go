package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UserStore is the durable user record the reconciler writes to.
type UserStore interface {
	// ApplySubscriptionState sets is_subscribed for userID. The write is
	// conditional on occurredAt: an event older than the one already applied
	// is skipped, so out-of-order deliveries cannot regress newer state.
	// Returns applied=false for a skipped stale event, ErrUserNotFound when
	// no record exists.
	ApplySubscriptionState(ctx context.Context, userID string, subscribed bool, occurredAt time.Time) (applied bool, err error)

	// LinkStripeSubscription records the Stripe customer and subscription ids
	// after checkout completes, so cancel-subscription can find them later.
	LinkStripeSubscription(ctx context.Context, userID, customerID, subscriptionID string) error
}

// PostgresUserStore implements UserStore against the users table.
type PostgresUserStore struct {
	DB *sql.DB
}

func (s *PostgresUserStore) ApplySubscriptionState(ctx context.Context, userID string, subscribed bool, occurredAt time.Time) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE users
		SET is_subscribed = $1,
		    subscription_event_at = $2
		WHERE uuid = $3
		  AND (subscription_event_at IS NULL OR subscription_event_at <= $2)
	`, subscribed, occurredAt, userID)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// Zero rows updated: either the record is missing or a newer event was
	// already applied. Only the first one is an error.
	var exists bool
	err = s.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE uuid = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user record: %w", err)
	}
	if !exists {
		return false, ErrUserNotFound
	}

	return false, nil
}

func (s *PostgresUserStore) LinkStripeSubscription(ctx context.Context, userID, customerID, subscriptionID string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE users
		SET stripe_customer_id = $1,
		    stripe_subscription_id = $2
		WHERE uuid = $3
	`, customerID, subscriptionID, userID)
	if err != nil {
		return fmt.Errorf("failed to link stripe subscription: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read link result: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}

	return nil
}
