// Package signer brokers time-boxed download URLs for the protected
// asset store. The lifecycle engine never touches this; the gateway
// calls it only after a successful licence validation.
package signer

import (
	"context"
	"time"
)

// Signer produces a pre-authorized download URL for an object key,
// valid for the given ttl. Implementations must not retry internally;
// a failure is surfaced to the caller as-is.
type Signer interface {
	PresignedGet(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}
