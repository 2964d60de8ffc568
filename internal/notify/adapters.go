package notify

import (
	"context"
	"log"
	"time"

	"github.com/wastehaul/dispatchd/internal/executor"
)

// OrderStatusWebhook writes status changes to the external order store.
type OrderStatusWebhook struct {
	client *Client
	url    string
}

func NewOrderStatusWebhook(client *Client, url string) *OrderStatusWebhook {
	return &OrderStatusWebhook{client: client, url: url}
}

type statusPayload struct {
	OrderID   string `json:"order_id"`
	NewStatus string `json:"new_status"`
	UpdatedAt string `json:"updated_at"`
}

func (w *OrderStatusWebhook) UpdateOrderStatus(ctx context.Context, orderID, newStatus string) error {
	return w.client.post(ctx, "order_status", w.url, statusPayload{
		OrderID:   orderID,
		NewStatus: newStatus,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// WebhookNotifier dispatches notification messages.
type WebhookNotifier struct {
	client *Client
	url    string
}

func NewWebhookNotifier(client *Client, url string) *WebhookNotifier {
	return &WebhookNotifier{client: client, url: url}
}

type notifyPayload struct {
	Message    string   `json:"message"`
	Recipients []string `json:"recipients,omitempty"`
	SentAt     string   `json:"sent_at"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, message string, recipients []string) error {
	return n.client.post(ctx, "notifier", n.url, notifyPayload{
		Message:    message,
		Recipients: recipients,
		SentAt:     time.Now().UTC().Format(time.RFC3339),
	})
}

// PhotoWebhook raises photo-capture requests with an external collector.
type PhotoWebhook struct {
	client *Client
	url    string
}

func NewPhotoWebhook(client *Client, url string) *PhotoWebhook {
	return &PhotoWebhook{client: client, url: url}
}

type photoPayload struct {
	GeofenceID   string  `json:"geofence_id"`
	LocationName string  `json:"location_name"`
	OrderID      string  `json:"order_id,omitempty"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RequestedAt  string  `json:"requested_at"`
}

func (p *PhotoWebhook) RequestPhoto(ctx context.Context, req executor.PhotoRequest) error {
	return p.client.post(ctx, "photo", p.url, photoPayload{
		GeofenceID:   req.GeofenceID.String(),
		LocationName: req.LocationName,
		OrderID:      req.OrderID,
		Lat:          req.Position.Lat,
		Lng:          req.Position.Lng,
		RequestedAt:  time.Now().UTC().Format(time.RFC3339),
	})
}

// Log-only fallbacks for collaborators without a configured endpoint. The
// engine degrades instead of crashing.

type LogStatusUpdater struct{}

func (LogStatusUpdater) UpdateOrderStatus(ctx context.Context, orderID, newStatus string) error {
	log.Printf("notify: (no order store configured) order=%s status=%s", orderID, newStatus)
	return nil
}

type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, message string, recipients []string) error {
	log.Printf("notify: (no notifier configured) message=%q recipients=%v", message, recipients)
	return nil
}

type LogPhotoRequester struct{}

func (LogPhotoRequester) RequestPhoto(ctx context.Context, req executor.PhotoRequest) error {
	log.Printf("notify: (no photo collector configured) geofence=%s location=%q", req.GeofenceID, req.LocationName)
	return nil
}

// Compile-time interface assertions
var (
	_ executor.StatusUpdater  = (*OrderStatusWebhook)(nil)
	_ executor.Notifier       = (*WebhookNotifier)(nil)
	_ executor.PhotoRequester = (*PhotoWebhook)(nil)
	_ executor.StatusUpdater  = LogStatusUpdater{}
	_ executor.Notifier       = LogNotifier{}
	_ executor.PhotoRequester = LogPhotoRequester{}
)
