package handlers

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/climatecue/climatecue-api/billing"
	middleware "github.com/climatecue/climatecue-api/middlewares"
	"github.com/climatecue/climatecue-api/models"
	"github.com/climatecue/climatecue-api/utils"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
)

type Stripe struct {
	Db          *sql.DB
	Reconciler  *billing.Reconciler
	PriceID     string
	FrontendURL string
}

func (s *Stripe) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDContextKey).(string)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: User ID not provided")
		return
	}

	var link models.StripeLinkage
	s.Db.QueryRow(`SELECT stripe_customer_id, stripe_subscription_id FROM users WHERE uuid = $1`, userID).Scan(&link.CustomerID, &link.SubscriptionID)

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(s.FrontendURL + "/subscribe/success"),
		CancelURL:  stripe.String(s.FrontendURL + "/subscribe/cancel"),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				billing.MetadataUserIDKey: userID,
			},
		},
	}

	if link.CustomerID.Valid && link.CustomerID.String != "" {
		params.Customer = stripe.String(link.CustomerID.String)
	}

	params.AddMetadata(billing.MetadataUserIDKey, userID)

	result, err := session.New(params)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to create checkout session")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]string{"checkout_url": result.URL})
}

func (s *Stripe) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDContextKey).(string)
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: User ID not provided")
		return
	}

	var link models.StripeLinkage
	err := s.Db.QueryRow(`SELECT stripe_customer_id, stripe_subscription_id FROM users WHERE uuid = $1`, userID).Scan(&link.CustomerID, &link.SubscriptionID)
	if err != nil {
		if err == sql.ErrNoRows {
			utils.RespondError(w, http.StatusNotFound, "User not found")
		} else {
			utils.RespondInternal(w, err, "Failed to fetch subscription")
		}
		return
	}

	if !link.SubscriptionID.Valid || link.SubscriptionID.String == "" {
		utils.RespondError(w, http.StatusNotFound, "Subscription not found")
		return
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}

	_, err = subscription.Update(link.SubscriptionID.String, params)
	if err != nil {
		utils.RespondInternal(w, err, "Failed to set subscription cancel at period end")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]string{"status": "cancel_at_period_end"})
}

// HandleWebhook is the inbound endpoint for Stripe webhook deliveries. It
// reads the exact raw body, hands it to the reconciler, and translates the
// outcome to a status code. Stripe retries on 5xx, so internal failures must
// surface as such and everything applied or deliberately skipped must be a 2xx.
func (s *Stripe) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const MaxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Error reading webhook request body: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	res := s.Reconciler.Reconcile(r.Context(), payload, r.Header.Get("Stripe-Signature"))

	switch res.Outcome {
	case billing.OutcomeRejected:
		log.Printf("Webhook rejected: %v", res.Err)
		utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("Webhook Error: %v", res.Err))

	case billing.OutcomeInvalid:
		log.Printf("Webhook event %s invalid: %v", res.Event.Kind, res.Err)
		utils.RespondError(w, http.StatusBadRequest, "No action taken: user id not found in subscription metadata")

	case billing.OutcomeNotFound:
		log.Printf("No user record for webhook event %s (user %s)", res.Event.Kind, res.Event.UserID)
		utils.RespondError(w, http.StatusNotFound, fmt.Sprintf("No record for user %s", res.Event.UserID))

	case billing.OutcomeIgnored:
		log.Printf("Unhandled event type acknowledged")
		utils.RespondString(w, http.StatusOK, "Event acknowledged, no action taken")

	case billing.OutcomeStale:
		log.Printf("Stale event %s for user %s ignored", res.Event.Kind, res.Event.UserID)
		utils.RespondString(w, http.StatusOK, "Event acknowledged, newer state already applied")

	case billing.OutcomeLinked:
		utils.RespondString(w, http.StatusOK, fmt.Sprintf("Linked checkout session for user %s", res.Event.UserID))

	case billing.OutcomeApplied:
		utils.RespondString(w, http.StatusOK, fmt.Sprintf("Handled %s for user %s", res.Event.Kind, res.Event.UserID))

	default:
		utils.RespondInternal(w, res.Err, "Failed to process webhook event")
	}
}
