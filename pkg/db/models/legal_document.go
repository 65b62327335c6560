package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/miraelabs/consentry-backend/pkg/enums"
)

// LegalDocument is one immutable version of a legal text. Rows are authored by
// an external workflow; this service only ever reads them.
type LegalDocument struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DocumentType  enums.DocumentType `gorm:"column:document_type;type:document_type_enum;not null"`
	Version       string             `gorm:"column:version;not null"`
	Locale        string             `gorm:"column:locale;not null"`
	Title         string             `gorm:"column:title;not null"`
	Content       string             `gorm:"column:content;not null"`
	Summary       *string            `gorm:"column:summary"`
	EffectiveDate time.Time          `gorm:"column:effective_date;not null"`
	IsActive      bool               `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
