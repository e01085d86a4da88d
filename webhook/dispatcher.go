// ABOUTME: Dispatches verified identity provider events to the user service
// ABOUTME: Branches on create/update/delete and drops duplicate deliveries

package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edusphere/portal-gateway/models"
)

// UserSyncer applies user lifecycle changes to the platform
type UserSyncer interface {
	CreateUser(ctx context.Context, u models.IdentityUser) (*models.User, error)
	UpdateUser(ctx context.Context, u models.IdentityUser) (*models.User, error)
	DeleteUser(ctx context.Context, externalID string) error
}

// Outcome reports what Dispatch did with an event
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeDeleted   Outcome = "deleted"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

// Dispatcher routes events to a UserSyncer. Deliveries already seen
// (by svix-id) are acknowledged without being applied again.
type Dispatcher struct {
	syncer UserSyncer
	guard  ReplayGuard
}

// NewDispatcher creates a dispatcher. guard may be nil to disable duplicate
// detection.
func NewDispatcher(syncer UserSyncer, guard ReplayGuard) *Dispatcher {
	return &Dispatcher{syncer: syncer, guard: guard}
}

// Dispatch applies event. deliveryID is the svix-id header value.
func (d *Dispatcher) Dispatch(ctx context.Context, deliveryID string, event *models.WebhookEvent) (Outcome, error) {
	guarded := d.guard != nil && deliveryID != ""
	if guarded {
		first, err := d.guard.Claim(ctx, deliveryID)
		switch {
		case err != nil:
			// Applying twice is safer than dropping a lifecycle event
			slog.Warn("Webhook replay guard unavailable", "delivery_id", deliveryID, "error", err)
			guarded = false
		case !first:
			slog.Info("Webhook duplicate delivery ignored", "delivery_id", deliveryID, "type", event.Type)
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := d.apply(ctx, event)
	if err != nil {
		// Let the provider retry a delivery that failed
		if guarded {
			if rerr := d.guard.Release(ctx, deliveryID); rerr != nil {
				slog.Warn("Webhook replay guard release failed", "delivery_id", deliveryID, "error", rerr)
			}
		}
		return outcome, err
	}

	slog.Info("Webhook event applied", "delivery_id", deliveryID, "type", event.Type, "user", event.Data.ID, "outcome", outcome)
	return outcome, nil
}

func (d *Dispatcher) apply(ctx context.Context, event *models.WebhookEvent) (Outcome, error) {
	switch event.Type {
	case models.EventUserCreated:
		if event.Data.ID == "" {
			return OutcomeIgnored, errors.New("user.created without user id")
		}
		if _, err := d.syncer.CreateUser(ctx, event.Data); err != nil {
			return OutcomeCreated, fmt.Errorf("create user %s: %w", event.Data.ID, err)
		}
		return OutcomeCreated, nil

	case models.EventUserUpdated:
		if event.Data.ID == "" {
			return OutcomeIgnored, errors.New("user.updated without user id")
		}
		if _, err := d.syncer.UpdateUser(ctx, event.Data); err != nil {
			return OutcomeUpdated, fmt.Errorf("update user %s: %w", event.Data.ID, err)
		}
		return OutcomeUpdated, nil

	case models.EventUserDeleted:
		if event.Data.ID == "" {
			return OutcomeIgnored, errors.New("user.deleted without user id")
		}
		if err := d.syncer.DeleteUser(ctx, event.Data.ID); err != nil {
			return OutcomeDeleted, fmt.Errorf("delete user %s: %w", event.Data.ID, err)
		}
		return OutcomeDeleted, nil

	default:
		slog.Debug("Webhook event type not handled", "type", event.Type)
		return OutcomeIgnored, nil
	}
}
