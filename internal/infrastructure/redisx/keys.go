package redisx

import "time"

const (
	// Idempotent order creation: idem:order:create:{Idempotency-Key} -> "pending" | stored response
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id or paid:{order_id})
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
