package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
)

// MetadataUserIDKey is the subscription metadata key carrying the application
// user id. The checkout endpoint writes it, the webhook reads it back.
const MetadataUserIDKey = "userID"

type EventKind int

const (
	EventOther EventKind = iota
	EventCreated
	EventUpdated
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "customer.subscription.created"
	case EventUpdated:
		return "customer.subscription.updated"
	case EventDeleted:
		return "customer.subscription.deleted"
	default:
		return "other"
	}
}

// SubscriptionEvent is a single decoded webhook delivery. UserID and Status
// are only populated for the subscription lifecycle kinds.
type SubscriptionEvent struct {
	Kind       EventKind
	UserID     string
	Status     string
	OccurredAt time.Time
}

func kindOf(t stripe.EventType) EventKind {
	switch t {
	case "customer.subscription.created":
		return EventCreated
	case "customer.subscription.updated":
		return EventUpdated
	case "customer.subscription.deleted":
		return EventDeleted
	default:
		return EventOther
	}
}

// parseEvent converts an already verified Stripe event into a
// SubscriptionEvent. It must only ever see events that passed signature
// verification.
func parseEvent(event stripe.Event) (SubscriptionEvent, error) {
	out := SubscriptionEvent{
		Kind:       kindOf(event.Type),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	if out.Kind == EventOther {
		return out, nil
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return out, fmt.Errorf("failed to decode %s payload: %w", event.Type, err)
	}

	out.Status = string(sub.Status)
	out.UserID = sub.Metadata[MetadataUserIDKey]

	if out.UserID == "" {
		return out, ErrNoUserID
	}

	return out, nil
}
