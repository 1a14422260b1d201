package orders

const (
	// Single lifecycle topic; the envelope's event_type discriminates.
	TopicOrderEvents = "order.events"
)

// Partition key = order_id, so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
