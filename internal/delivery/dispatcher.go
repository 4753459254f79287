package delivery

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/aetos53t/ping/internal/metrics"
	"github.com/aetos53t/ping/internal/models"
)

// Method identifies the channel a message reached its recipient through.
type Method string

const (
	MethodPush    Method = "push"
	MethodWebhook Method = "webhook"
	MethodPolling Method = "polling"
)

// DeliveryStore is the slice of the message store the dispatcher writes
// delivery outcomes through. It never mutates messages directly.
type DeliveryStore interface {
	MarkDelivered(ctx context.Context, messageID string) error
}

// notification is the frame pushed over live and webhook channels.
type notification struct {
	Type string          `json:"type"`
	Data *models.Message `json:"data"`
}

// Dispatcher attempts delivery channels in strict priority order:
// live push, then webhook, then polling. First success wins; channel
// failures are swallowed and never surface to the sender. No retries.
type Dispatcher struct {
	hub      *Hub
	webhooks *WebhookClient
	store    DeliveryStore
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher over the given hub and webhook client.
func NewDispatcher(hub *Hub, webhooks *WebhookClient, store DeliveryStore, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, webhooks: webhooks, store: store, logger: logger}
}

// Dispatch attempts to push msg to the recipient and records the outcome.
// It returns the channel the message went through; MethodPolling means no
// immediate action was possible and the recipient will pick the message up
// from its inbox.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *models.Message, recipient *models.Agent) Method {
	frame, err := json.Marshal(notification{Type: "message", Data: msg})
	if err != nil {
		// Message came out of the store, so this should not happen;
		// treat it as all channels failed.
		d.logger.Error().Err(err).Str("message_id", msg.ID).Msg("notification encode failed")
		return MethodPolling
	}

	if d.hub.Push(ctx, recipient.ID, frame) {
		d.markDelivered(ctx, msg)
		metrics.MessagesDelivered.WithLabelValues(string(MethodPush)).Inc()
		return MethodPush
	}

	if recipient.WebhookURL != "" {
		if err := d.webhooks.Deliver(ctx, recipient.WebhookURL, frame); err != nil {
			metrics.WebhookFailures.Inc()
			d.logger.Debug().
				Err(err).
				Str("message_id", msg.ID).
				Str("to", recipient.ID).
				Msg("webhook delivery failed")
		} else {
			d.markDelivered(ctx, msg)
			metrics.MessagesDelivered.WithLabelValues(string(MethodWebhook)).Inc()
			return MethodWebhook
		}
	}

	metrics.MessagesDelivered.WithLabelValues(string(MethodPolling)).Inc()
	return MethodPolling
}

func (d *Dispatcher) markDelivered(ctx context.Context, msg *models.Message) {
	if err := d.store.MarkDelivered(ctx, msg.ID); err != nil {
		d.logger.Error().Err(err).Str("message_id", msg.ID).Msg("mark delivered failed")
		return
	}
	msg.Delivered = true
}
