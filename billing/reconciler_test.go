package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

type storedState struct {
	subscribed bool
	occurredAt time.Time
}

type fakeStore struct {
	states     map[string]storedState
	linked     map[string][2]string
	applyCalls int
	linkCalls  int
	failWith   error
}

func newFakeStore(userIDs ...string) *fakeStore {
	s := &fakeStore{
		states: map[string]storedState{},
		linked: map[string][2]string{},
	}
	for _, id := range userIDs {
		s.states[id] = storedState{}
	}
	return s
}

func (s *fakeStore) ApplySubscriptionState(_ context.Context, userID string, subscribed bool, occurredAt time.Time) (bool, error) {
	s.applyCalls++
	if s.failWith != nil {
		return false, s.failWith
	}
	current, ok := s.states[userID]
	if !ok {
		return false, ErrUserNotFound
	}
	if current.occurredAt.After(occurredAt) {
		return false, nil
	}
	s.states[userID] = storedState{subscribed: subscribed, occurredAt: occurredAt}
	return true, nil
}

func (s *fakeStore) LinkStripeSubscription(_ context.Context, userID, customerID, subscriptionID string) error {
	s.linkCalls++
	if s.failWith != nil {
		return s.failWith
	}
	if _, ok := s.states[userID]; !ok {
		return ErrUserNotFound
	}
	s.linked[userID] = [2]string{customerID, subscriptionID}
	return nil
}

func signPayload(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func subscriptionPayload(t *testing.T, eventType, status, userID string, created int64) []byte {
	t.Helper()
	metadata := map[string]string{}
	if userID != "" {
		metadata[MetadataUserIDKey] = userID
	}
	event := map[string]interface{}{
		"id":      "evt_test_1",
		"type":    eventType,
		"created": created,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":       "sub_test_1",
				"status":   status,
				"metadata": metadata,
			},
		},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func TestReconcileCreatedActiveSubscribes(t *testing.T) {
	store := newFakeStore("u1")
	r := NewReconciler(store, testSecret)

	payload := subscriptionPayload(t, "customer.subscription.created", "active", "u1", time.Now().Unix())
	res := r.Reconcile(context.Background(), payload, signPayload(t, payload, testSecret))

	require.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, EventCreated, res.Event.Kind)
	assert.Equal(t, "u1", res.Event.UserID)
	assert.True(t, store.states["u1"].subscribed)
}

func TestReconcileUpdatedPastDueUnsubscribes(t *testing.T) {
	store := newFakeStore("u1")
	store.states["u1"] = storedState{subscribed: true}
	r := NewReconciler(store, testSecret)

	payload := subscriptionPayload(t, "customer.subscription.updated", "past_due", "u1", time.Now().Unix())
	res := r.Reconcile(context.Background(), payload, signPayload(t, payload, testSecret))

	require.Equal(t, OutcomeApplied, res.Outcome)
	assert.False(t, store.states["u1"].subscribed)
}

func TestReconcileDeletedUnsubscribesDespiteActiveStatus(t *testing.T) {
	store := newFakeStore("u1")
	store.states["u1"] = storedState{subscribed: true}
	r := NewReconciler(store, testSecret)

	payload := subscriptionPayload(t, "customer.subscription.deleted", "active", "u1", time.Now().Unix())
	res := r.Reconcile(context.Background(), payload, signPayload(t, payload, testSecret))

	require.Equal(t, OutcomeApplied, res.Outcome)
	assert.False(t, store.states["u1"].subscribed)
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := newFakeStore("u1")
	r := NewReconciler(store, testSecret)

	payload := subscriptionPayload(t, "customer.subscription.created", "active", "u1", time.Now().Unix())
	sig := signPayload(t, payload, testSecret)

	first := r.Reconcile(context.Background(), payload, sig)
	require.Equal(t, OutcomeApplied, first.Outcome)
	stateAfterFirst := store.states["u1"]

	second := r.Reconcile(context.Background(), payload, sig)
	require.Equal(t, OutcomeApplied, second.Outcome)
	assert.Equal(t, stateAfterFirst, store.states["u1"])
}

func TestReconcileStaleEventDoesNotRegress(t *testing.T) {
	store := newFakeStore("u1")
	r := NewReconciler(store, testSecret)

	now := time.Now().Unix()

	newer := subscriptionPayload(t, "customer.subscription.updated", "active", "u1", now)
	res := r.Reconcile(context.Background(), newer, signPayload(t, newer, testSecret))
	require.Equal(t, OutcomeApplied, res.Outcome)

	older := subscriptionPayload(t, "customer.subscription.updated", "canceled", "u1", now-3600)
	res = r.Reconcile(context.Background(), older, signPayload(t, older, testSecret))

	require.Equal(t, OutcomeStale, res.Outcome)
	assert.True(t, store.states["u1"].subscribed, "older canceled event must not overwrite newer active state")
}

func TestReconcileRejectsBadSignature(t *testing.T) {
	store := newFakeStore("u1")
	r := NewReconciler(store, testSecret)

	payload := subscriptionPayload(t, "customer.subscription.created", "active", "u1", time.Now().Unix())
	res := r.Reconcile(context.Background(), payload, signPayload(t, payload, "whsec_wrong_secret"))

	require.Equal(t, OutcomeRejected, res.Outcome)
	assert.Error(t, res.Err)
	assert.Zero(t, store.applyCalls, "no store mutation on failed verification")
}

func TestReconcileRejectsMissingSignatureHeader(t *testing.T) {
	store := newFakeStore("u1")
	r := NewReconciler(store, testSecret)

	payload := subscriptionPayload(t, "customer.subscription.created", "active", "u1", time.Now().Unix())
	res := r.Reconcile(context.Background(), payload, "")

	require.Equal(t, OutcomeRejected, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrNoSignature)
	assert.Zero(t, store.applyCalls)
}

func TestReconcileRejectsWhenSecretUnconfigured(t *testing.T) {
	store := newFakeStore("u1")
	r := NewReconciler(store, "")

	payload := subscriptionPayload(t, "customer.subscription.created", "active", "u1", time.Now().Unix())
	res := r.Reconcile(context.Background(), payload, signPayload(t, payload, testSecret))

	require.Equal(t, OutcomeRejected, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrNoSecret)
	assert.Zero(t, store.applyCalls)
}

func TestReconcileMissingUserIDIsInvalidNoOp(t *testing.T) {
	store := newFakeStore("u1")
	r := NewReconciler(store, testSecret)

	payload := subscriptionPayload(t, "customer.subscription.created", "active", "", time.Now().Unix())
	res := r.Reconcile(context.Background(), payload, signPayload(t, payload, testSecret))

	require.Equal(t, OutcomeInvalid, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrNoUserID)
	assert.Zero(t, store.applyCalls)
}

func TestReconcileUnknownUserIsNotFound(t *testing.T) {
	store := newFakeStore("u1")
	r := NewReconciler(store, testSecret)

	payload := subscriptionPayload(t, "customer.subscription.created", "active", "u-missing", time.Now().Unix())
	res := r.Reconcile(context.Background(), payload, signPayload(t, payload, testSecret))

	require.Equal(t, OutcomeNotFound, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUserNotFound)
	assert.Empty(t, store.states["u1"].occurredAt)
}

func TestReconcileIgnoresUnhandledEventTypes(t *testing.T) {
	store := newFakeStore("u1")
	r := NewReconciler(store, testSecret)

	payload := subscriptionPayload(t, "invoice.paid", "active", "u1", time.Now().Unix())
	res := r.Reconcile(context.Background(), payload, signPayload(t, payload, testSecret))

	require.Equal(t, OutcomeIgnored, res.Outcome)
	assert.Equal(t, EventOther, res.Event.Kind)
	assert.Zero(t, store.applyCalls)
}

func TestReconcileStorageFailure(t *testing.T) {
	store := newFakeStore("u1")
	store.failWith = fmt.Errorf("connection refused")
	r := NewReconciler(store, testSecret)

	payload := subscriptionPayload(t, "customer.subscription.created", "active", "u1", time.Now().Unix())
	res := r.Reconcile(context.Background(), payload, signPayload(t, payload, testSecret))

	require.Equal(t, OutcomeFailed, res.Outcome)
	assert.Error(t, res.Err)
}

func TestReconcileLinksCheckoutSession(t *testing.T) {
	store := newFakeStore("u1")
	r := NewReconciler(store, testSecret)

	event := map[string]interface{}{
		"id":      "evt_test_2",
		"type":    "checkout.session.completed",
		"created": time.Now().Unix(),
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":           "cs_test_1",
				"customer":     "cus_test_1",
				"subscription": "sub_test_1",
				"metadata":     map[string]string{MetadataUserIDKey: "u1"},
			},
		},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	res := r.Reconcile(context.Background(), payload, signPayload(t, payload, testSecret))

	require.Equal(t, OutcomeLinked, res.Outcome)
	assert.Equal(t, [2]string{"cus_test_1", "sub_test_1"}, store.linked["u1"])
}
