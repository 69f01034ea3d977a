package billing

import "github.com/stripe/stripe-go/v82"

// SubscriptionState maps an event kind and provider status to the stored
// is_subscribed flag. A deleted subscription always unsubscribes, whatever
// status the payload carries. Created and updated events subscribe only while
// the provider reports the subscription active; past_due, canceled,
// incomplete and every other status unsubscribe. For unrecognized kinds
// apply is false and the event must be acknowledged without a write.
func SubscriptionState(kind EventKind, status string) (subscribed bool, apply bool) {
	switch kind {
	case EventDeleted:
		return false, true
	case EventCreated, EventUpdated:
		return status == string(stripe.SubscriptionStatusActive), true
	default:
		return false, false
	}
}
