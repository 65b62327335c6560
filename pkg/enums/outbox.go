package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type_enum enum in Postgres.
type OutboxAggregateType string

const (
	AggregateUserConsent   OutboxAggregateType = "user_consent"
	AggregateLegalDocument OutboxAggregateType = "legal_document"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateUserConsent,
	AggregateLegalDocument,
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

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type_enum enum in Postgres.
type OutboxEventType string

const (
	EventConsentGranted   OutboxEventType = "consent.granted"
	EventConsentDeclined  OutboxEventType = "consent.declined"
	EventConsentWithdrawn OutboxEventType = "consent.withdrawn"
)

var validOutboxEventTypes = []OutboxEventType{
	EventConsentGranted,
	EventConsentDeclined,
	EventConsentWithdrawn,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxDLQErrorReason explains why an outbox event was parked.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)
