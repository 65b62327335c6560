package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/miraelabs/consentry-backend/pkg/enums"
)

// OutboxDLQ parks outbox events that will never be published.
type OutboxDLQ struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID       uuid.UUID                  `gorm:"column:event_id;type:uuid;not null"`
	EventType     enums.OutboxEventType      `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                  `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage            `gorm:"column:payload;type:jsonb;not null"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"column:error_reason;not null"`
	ErrorMessage  *string                    `gorm:"column:error_message"`
	AttemptCount  int                        `gorm:"column:attempt_count;not null"`
	FailedAt      time.Time                  `gorm:"column:failed_at;not null"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the acronym casing stable.
func (OutboxDLQ) TableName() string {
	return "outbox_dlq"
}
