package events

const (
	TopicOrderPaid          = "order.paid"
	TopicOrderStatusChanged = "order.status_changed"
)

// TopicFor returns the topic an event type is published on.
func TopicFor(eventType string) string {
	switch eventType {
	case EventOrderPaid:
		return TopicOrderPaid
	default:
		return TopicOrderStatusChanged
	}
}

// Partition key = order id, so every event of one order keeps its ordering.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
