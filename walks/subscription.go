package walks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// PurchaseSubscription grants an owner the credits of a plan, valid for the
// plan's validity period from now. Payment happens outside the engine.
func (e *Engine) PurchaseSubscription(ctx context.Context, ownerID OwnerID, planID PlanID) (UserSubscription, error) {
	if strings.TrimSpace(string(ownerID)) == "" {
		return UserSubscription{}, fmt.Errorf("owner_id is required: %w", ErrInvalidInput)
	}
	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return UserSubscription{}, err
	}

	now := e.opts.Now()
	sub := UserSubscription{
		ID:           SubscriptionID(e.opts.NewID()),
		OwnerID:      ownerID,
		PlanID:       plan.ID,
		TotalCredits: plan.WalkCredits,
		CreditsUsed:  0,
		Status:       SubscriptionActive,
		PurchaseDate: now,
		ExpiryDate:   now.AddDate(0, 0, plan.ValidityPeriod),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return UserSubscription{}, err
	}

	e.logger.Info("subscription purchased",
		slog.String("subscription_id", string(sub.ID)),
		slog.String("owner_id", string(ownerID)),
		slog.String("plan_id", string(plan.ID)),
		slog.Int("credits", sub.TotalCredits))
	return sub, nil
}

// CancelSubscription stops a subscription from funding new bookings.
// Walks already booked keep their reserved credit.
func (e *Engine) CancelSubscription(ctx context.Context, id SubscriptionID) (UserSubscription, error) {
	sub, err := e.store.GetSubscription(ctx, id)
	if err != nil {
		return UserSubscription{}, err
	}
	if sub.Status != SubscriptionActive && sub.Status != SubscriptionPending {
		return sub, &TransitionError{Entity: "subscription", ID: string(id),
			From: string(sub.Status), To: string(SubscriptionCancelled)}
	}
	if err := e.store.SetSubscriptionStatus(ctx, id, sub.Status, SubscriptionCancelled); err != nil {
		return UserSubscription{}, err
	}
	return e.store.GetSubscription(ctx, id)
}

// ExpireSubscriptions marks every active subscription past its expiry date
// as expired and returns how many changed. A subscription whose status
// changed since it was listed is left alone.
func (e *Engine) ExpireSubscriptions(ctx context.Context) (int, error) {
	active := SubscriptionActive
	subs, err := e.store.ListSubscriptions(ctx, SubscriptionFilter{Status: &active})
	if err != nil {
		return 0, err
	}
	now := e.opts.Now()
	expired := 0
	for _, sub := range subs {
		if !now.After(sub.ExpiryDate) {
			continue
		}
		err := e.store.SetSubscriptionStatus(ctx, sub.ID, SubscriptionActive, SubscriptionExpired)
		if errors.Is(err, ErrInvalidStateTransition) {
			e.logger.Debug("subscription changed before expiry",
				slog.String("subscription_id", string(sub.ID)),
				slog.String("error", err.Error()))
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("failed to expire subscription %s: %w", sub.ID, err)
		}
		expired++
		e.logger.Info("subscription expired",
			slog.String("subscription_id", string(sub.ID)),
			slog.String("expired_at", sub.ExpiryDate.Format(time.RFC3339)))
	}
	return expired, nil
}

func (e *Engine) GetSubscription(ctx context.Context, id SubscriptionID) (UserSubscription, error) {
	return e.store.GetSubscription(ctx, id)
}

// CreditHistory lists the ledger entries of a subscription.
func (e *Engine) CreditHistory(ctx context.Context, id SubscriptionID) ([]CreditEntry, error) {
	if _, err := e.store.GetSubscription(ctx, id); err != nil {
		return nil, err
	}
	return e.ledger.History(ctx, id)
}

// ListSubscriptions returns an owner's subscriptions, or every one when
// ownerID is empty.
func (e *Engine) ListSubscriptions(ctx context.Context, ownerID OwnerID) ([]UserSubscription, error) {
	var f SubscriptionFilter
	if ownerID != "" {
		f.OwnerID = &ownerID
	}
	return e.store.ListSubscriptions(ctx, f)
}
