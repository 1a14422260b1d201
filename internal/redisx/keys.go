package redisx

import "time"

const (
	// Idempotent checkout: idem:checkout:{key} -> JSON array of created order ids
	KeyIdemCheckout = "idem:checkout:%s"

	// Cache of a serialized order: order:{order_id}
	KeyOrderCache = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
