package cartpayment

import (
	"fmt"

	"github.com/google/uuid"
)

// operation names the gateway side effect an idempotency token covers.
type operation string

const (
	opIntentCreate  operation = "intent.create"
	opIntentCapture operation = "intent.capture"
	opIntentCancel  operation = "intent.cancel"
	opIntentUpdate  operation = "intent.update"
	opChargeCreate  operation = "charge.create"
	opRefundCreate  operation = "refund.create"
)

// deriveKey builds the deterministic gateway idempotency token for a single
// side effect. The same (entity, operation, sequence) triple always yields
// the same token, so a call replayed after an ambiguous failure re-sends the
// identical request and the gateway deduplicates it.
func deriveKey(entityID uuid.UUID, op operation, sequence int) string {
	return fmt.Sprintf("%s:%s:%d", entityID, op, sequence)
}
