package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionStateMapping(t *testing.T) {
	tests := []struct {
		name       string
		kind       EventKind
		status     string
		subscribed bool
		apply      bool
	}{
		{"created active", EventCreated, "active", true, true},
		{"created past_due", EventCreated, "past_due", false, true},
		{"created incomplete", EventCreated, "incomplete", false, true},
		{"updated active", EventUpdated, "active", true, true},
		{"updated canceled", EventUpdated, "canceled", false, true},
		{"updated unpaid", EventUpdated, "unpaid", false, true},
		{"updated empty status", EventUpdated, "", false, true},
		{"deleted with active status", EventDeleted, "active", false, true},
		{"deleted with canceled status", EventDeleted, "canceled", false, true},
		{"deleted empty status", EventDeleted, "", false, true},
		{"other active", EventOther, "active", false, false},
		{"other empty", EventOther, "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subscribed, apply := SubscriptionState(tt.kind, tt.status)
			assert.Equal(t, tt.subscribed, subscribed)
			assert.Equal(t, tt.apply, apply)
		})
	}
}

// A deleted subscription always unsubscribes, no matter what status value the
// payload still carries.
func TestDeletionDominance(t *testing.T) {
	for _, status := range []string{"active", "trialing", "past_due", "canceled", "incomplete", "unpaid", "", "garbage"} {
		subscribed, apply := SubscriptionState(EventDeleted, status)
		assert.True(t, apply, "status %q", status)
		assert.False(t, subscribed, "status %q", status)
	}
}
