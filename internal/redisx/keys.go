package redisx

import "time"

const (
	// Cached polling view: order_status:{order_id} -> JSON
	KeyOrderStatus = "order_status:%s"

	// Processed gateway deliveries: webhook:mp:{x-request-id}
	KeyWebhookApplied = "webhook:mp:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache    = 5 * time.Minute
	TTLWebhookApplied = 72 * time.Hour
	TTLDedup          = 48 * time.Hour
)
