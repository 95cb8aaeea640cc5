package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateCartPayment   OutboxAggregateType = "cart_payment"
	AggregatePaymentIntent OutboxAggregateType = "payment_intent"
	AggregateCharge        OutboxAggregateType = "charge"
	AggregateDispute       OutboxAggregateType = "dispute"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCartPayment,
	AggregatePaymentIntent,
	AggregateCharge,
	AggregateDispute,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPaymentCreated   OutboxEventType = "payment.created"
	EventPaymentCaptured  OutboxEventType = "payment.captured"
	EventPaymentAdjusted  OutboxEventType = "payment.adjusted"
	EventPaymentRefunded  OutboxEventType = "payment.refunded"
	EventPaymentCancelled OutboxEventType = "payment.cancelled"
	EventPaymentFailed    OutboxEventType = "payment.failed"
	EventDisputeReceived  OutboxEventType = "dispute.received"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPaymentCreated,
	EventPaymentCaptured,
	EventPaymentAdjusted,
	EventPaymentRefunded,
	EventPaymentCancelled,
	EventPaymentFailed,
	EventDisputeReceived,
}

// IsValid reports whether the value is a known OutboxEventType.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxDLQReason records why an outbox row was parked in the dead letter
// table.
type OutboxDLQReason string

const (
	DLQReasonMaxAttempts   OutboxDLQReason = "max_attempts_exceeded"
	DLQReasonPublishFailed OutboxDLQReason = "publish_failed"
)

// IsValid reports whether the value is a known OutboxDLQReason.
func (r OutboxDLQReason) IsValid() bool {
	switch r {
	case DLQReasonMaxAttempts, DLQReasonPublishFailed:
		return true
	}
	return false
}

// OutboxEventStatus tracks publication progress of an outbox row.
type OutboxEventStatus string

const (
	OutboxEventStatusPending   OutboxEventStatus = "pending"
	OutboxEventStatusPublished OutboxEventStatus = "published"
	OutboxEventStatusFailed    OutboxEventStatus = "failed"
)

// IsValid reports whether the value is a known OutboxEventStatus.
func (s OutboxEventStatus) IsValid() bool {
	switch s {
	case OutboxEventStatusPending, OutboxEventStatusPublished, OutboxEventStatusFailed:
		return true
	}
	return false
}
