package store

import (
	"context"
	"errors"
	"time"

	"routeeta/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	Ping(ctx context.Context) error

	// Drivers
	UpsertDriver(ctx context.Context, d model.Driver) (model.Driver, error)
	GetDriver(ctx context.Context, tenantID, driverID string) (model.Driver, error)
	// UpdateDriverPosition records a position report, creating the driver on first contact.
	UpdateDriverPosition(ctx context.Context, tenantID, driverID string, pos model.Coordinate, at time.Time) (model.Driver, error)

	// Assignments
	AssignOrder(ctx context.Context, tenantID, driverID string, in model.AssignmentIn) (model.Assignment, error)
	ListActiveAssignments(ctx context.Context, tenantID, driverID string) ([]model.Assignment, error)
	UpdateAssignmentStatus(ctx context.Context, tenantID, driverID, orderID, status string) (model.Assignment, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]DeliveryView, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a status change targets a finished assignment.
	ErrConflict = errors.New("conflict")
)

type WebhookDelivery struct {
	ID             string
	TenantID       string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Status         string
	Attempts       int
}

// DeliveryView is the admin listing shape of a webhook delivery.
type DeliveryView struct {
	ID            string     `json:"id"`
	EventType     string     `json:"eventType"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	URL           string     `json:"url"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	ResponseCode  int        `json:"responseCode,omitempty"`
}

// Delivery statuses
const (
	DeliveryPending   = "pending"
	DeliveryRetry     = "retry"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// checkTransition rejects status changes on assignments that already left the active set.
func checkTransition(from, to string) error {
	if !model.IsActiveStatus(from) {
		return ErrConflict
	}
	if from == to {
		return nil
	}
	// A collected pickup cannot be un-collected.
	if model.IsCollected(from) && to == model.StatusDriverAssigned {
		return ErrConflict
	}
	return nil
}
