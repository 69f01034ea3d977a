package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Outcome is how a webhook delivery was settled. The HTTP handler maps each
// outcome to a status code; the reconciler itself never touches the transport.
type Outcome int

const (
	// OutcomeRejected: signature verification failed or the secret is
	// unconfigured. The payload was never parsed.
	OutcomeRejected Outcome = iota
	// OutcomeInvalid: well-signed but structurally incomplete, typically a
	// subscription event without a user id in its metadata. No write happened.
	OutcomeInvalid
	// OutcomeIgnored: an event type this service does not reconcile.
	OutcomeIgnored
	// OutcomeNotFound: no user record exists for the event's user id.
	OutcomeNotFound
	// OutcomeStale: a newer event was already applied for this user; the
	// delivery is acknowledged without a write.
	OutcomeStale
	// OutcomeApplied: the subscription flag was written.
	OutcomeApplied
	// OutcomeLinked: a completed checkout session had its Stripe ids recorded.
	OutcomeLinked
	// OutcomeFailed: an unexpected internal failure, storage included.
	OutcomeFailed
)

// Result carries the settled outcome plus the decoded event for logging and
// response bodies. Err is set for Rejected, Invalid, NotFound and Failed.
type Result struct {
	Outcome Outcome
	Event   SubscriptionEvent
	Err     error
}

// Reconciler brings the users table's is_subscribed flag in line with Stripe
// subscription lifecycle events. All dependencies are injected at
// construction so handlers and tests build their own instances.
type Reconciler struct {
	store         UserStore
	webhookSecret string
}

func NewReconciler(store UserStore, webhookSecret string) *Reconciler {
	return &Reconciler{
		store:         store,
		webhookSecret: webhookSecret,
	}
}

// Reconcile verifies one raw webhook delivery and applies it exactly once.
// payload must be the unmodified request body; signature verification runs
// before any field of it is trusted.
func (r *Reconciler) Reconcile(ctx context.Context, payload []byte, signature string) Result {
	if r.webhookSecret == "" {
		return Result{Outcome: OutcomeRejected, Err: ErrNoSecret}
	}
	if signature == "" {
		return Result{Outcome: OutcomeRejected, Err: ErrNoSignature}
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, r.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Result{Outcome: OutcomeRejected, Err: fmt.Errorf("webhook signature verification failed: %w", err)}
	}

	if event.Type == "checkout.session.completed" {
		return r.linkCheckoutSession(ctx, event)
	}

	sub, err := parseEvent(event)
	if err != nil {
		return Result{Outcome: OutcomeInvalid, Event: sub, Err: err}
	}

	if sub.Kind == EventOther {
		return Result{Outcome: OutcomeIgnored, Event: sub}
	}

	subscribed, apply := SubscriptionState(sub.Kind, sub.Status)
	if !apply {
		return Result{Outcome: OutcomeIgnored, Event: sub}
	}

	applied, err := r.store.ApplySubscriptionState(ctx, sub.UserID, subscribed, sub.OccurredAt)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Result{Outcome: OutcomeNotFound, Event: sub, Err: err}
		}
		return Result{Outcome: OutcomeFailed, Event: sub, Err: err}
	}

	if !applied {
		return Result{Outcome: OutcomeStale, Event: sub}
	}

	return Result{Outcome: OutcomeApplied, Event: sub}
}

func (r *Reconciler) linkCheckoutSession(ctx context.Context, event stripe.Event) Result {
	res := Result{Event: SubscriptionEvent{Kind: EventOther}}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		res.Outcome = OutcomeInvalid
		res.Err = fmt.Errorf("failed to decode checkout session: %w", err)
		return res
	}

	userID := session.Metadata[MetadataUserIDKey]
	if userID == "" {
		res.Outcome = OutcomeInvalid
		res.Err = ErrNoUserID
		return res
	}
	res.Event.UserID = userID

	var customerID, subscriptionID string
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}

	err := r.store.LinkStripeSubscription(ctx, userID, customerID, subscriptionID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			res.Outcome = OutcomeNotFound
			res.Err = err
			return res
		}
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	res.Outcome = OutcomeLinked
	return res
}
