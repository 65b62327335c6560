package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/miraelabs/consentry-backend/pkg/enums"
)

// UserConsent is one consent decision event. Rows are append-mostly: the only
// mutation ever applied is setting withdrawn_at (soft withdrawal), so the
// table doubles as the audit trail.
type UserConsent struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	ConsentType     enums.ConsentType `gorm:"column:consent_type;type:consent_type_enum;not null"`
	DocumentID      *uuid.UUID        `gorm:"column:document_id;type:uuid"`
	DocumentVersion *string           `gorm:"column:document_version"`
	Agreed          bool              `gorm:"column:agreed;not null"`
	AgreedAt        time.Time         `gorm:"column:agreed_at;not null"`
	WithdrawnAt     *time.Time        `gorm:"column:withdrawn_at"`
	IPAddress       *string           `gorm:"column:ip_address"`
	UserAgent       *string           `gorm:"column:user_agent"`
	CountryCode     string            `gorm:"column:country_code;not null"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	// Document is the snapshot the consent was bound to, preloaded for reads.
	Document *LegalDocument `gorm:"foreignKey:DocumentID"`
}

// Active reports whether the consent is currently in effect.
func (c UserConsent) Active() bool {
	return c.WithdrawnAt == nil
}
