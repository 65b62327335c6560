package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/miraelabs/consentry-backend/pkg/enums"
)

// ConsentGrantedEvent is emitted when a user agrees to a consent type.
type ConsentGrantedEvent struct {
	ConsentID       uuid.UUID         `json:"consent_id"`
	UserID          uuid.UUID         `json:"user_id"`
	ConsentType     enums.ConsentType `json:"consent_type"`
	DocumentID      *uuid.UUID        `json:"document_id,omitempty"`
	DocumentVersion *string           `json:"document_version,omitempty"`
	CountryCode     string            `json:"country_code"`
	AgreedAt        time.Time         `json:"agreed_at"`
}

// ConsentDeclinedEvent records an explicit refusal of an optional consent.
type ConsentDeclinedEvent struct {
	ConsentID   uuid.UUID         `json:"consent_id"`
	UserID      uuid.UUID         `json:"user_id"`
	ConsentType enums.ConsentType `json:"consent_type"`
	CountryCode string            `json:"country_code"`
	DecidedAt   time.Time         `json:"decided_at"`
}

// ConsentWithdrawnEvent is emitted when an active consent is soft-deleted.
type ConsentWithdrawnEvent struct {
	ConsentID   uuid.UUID         `json:"consent_id"`
	UserID      uuid.UUID         `json:"user_id"`
	ConsentType enums.ConsentType `json:"consent_type"`
	CountryCode string            `json:"country_code"`
	WithdrawnAt time.Time         `json:"withdrawn_at"`
}
