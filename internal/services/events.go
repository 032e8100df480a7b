package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Actor identifies who performed a mutation and from where
type Actor struct {
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	IP        string     `json:"ip"`
	UserAgent string     `json:"user_agent"`
}

// SystemActor is used by background jobs
func SystemActor() Actor {
	return Actor{IP: "127.0.0.1", UserAgent: "billing-service/scheduler"}
}

// Event subjects
const (
	EventTenantRegistered    = "tenant.registered"
	EventTenantStatusUpdated = "tenant.status_updated"
	EventInvitationCreated   = "tenant.invitation.created"
	EventInvitationAccepted  = "tenant.invitation.accepted"

	EventAddonCreated = "billing.addon.created"
	EventAddonUpdated = "billing.addon.updated"
	EventAddonDeleted = "billing.addon.deleted"

	EventTenantAddonAssigned        = "billing.tenant_addon.assigned"
	EventTenantAddonQuantityUpdated = "billing.tenant_addon.quantity_updated"
	EventTenantAddonExtended        = "billing.tenant_addon.extended"
	EventTenantAddonCanceled        = "billing.tenant_addon.canceled"
	EventTenantAddonRemoved         = "billing.tenant_addon.removed"

	EventSubscriptionCreated           = "billing.subscription.created"
	EventSubscriptionCanceled          = "billing.subscription.canceled"
	EventSubscriptionResumed           = "billing.subscription.resumed"
	EventSubscriptionPlanChanged       = "billing.subscription.plan_changed"
	EventSubscriptionPlanChangeApplied = "billing.subscription.plan_change_applied"

	EventPaymentStatusUpdated = "billing.payment.status_updated"
	EventPaymentInvoiced      = "billing.payment.invoiced"

	EventSettingsUpdated = "settings.updated"

	EventUserRegistered    = "tenant.user.registered"
	EventUserUpdated       = "tenant.user.updated"
	EventUserStatusUpdated = "tenant.user.status_updated"
)

// Event is the envelope published for every domain event
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"event_type"`
	Actor     Actor       `json:"actor"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventPublisher delivers domain events to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event *Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, *Event) error { return nil }

// NoopPublisher drops every event
func NoopPublisher() EventPublisher {
	return noopPublisher{}
}

// eventEmitter publishes after the primary operation committed. Publish
// failures are logged and never returned.
type eventEmitter struct {
	publisher EventPublisher
	logger    *logrus.Entry
	now       func() time.Time
}

func newEventEmitter(publisher EventPublisher, logger *logrus.Entry, now func() time.Time) eventEmitter {
	if publisher == nil {
		publisher = NoopPublisher()
	}
	return eventEmitter{publisher: publisher, logger: logger, now: now}
}

func (e eventEmitter) emit(ctx context.Context, subject string, actor Actor, data interface{}) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      subject,
		Actor:     actor,
		Data:      data,
		Timestamp: e.now(),
	}
	if err := e.publisher.Publish(ctx, subject, event); err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": subject,
			"event_id":   event.ID,
		}).Warn("Failed to publish event")
	}
}
