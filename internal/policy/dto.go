package policy

import (
	"github.com/google/uuid"

	"github.com/miraelabs/consentry-backend/internal/consents"
	"github.com/miraelabs/consentry-backend/internal/documents"
	"github.com/miraelabs/consentry-backend/internal/region"
	"github.com/miraelabs/consentry-backend/pkg/enums"
)

// RequirementView is one policy requirement annotated with the current
// document for the caller's locale. Document is nil when nothing has been
// published for that locale yet.
type RequirementView struct {
	ConsentType    enums.ConsentType   `json:"consent_type"`
	Required       bool                `json:"required"`
	DocumentType   enums.DocumentType  `json:"document_type,omitempty"`
	LabelKey       string              `json:"label_key"`
	DescriptionKey string              `json:"description_key,omitempty"`
	NightHours     *region.HoursWindow `json:"night_hours,omitempty"`
	Document       *documents.Summary  `json:"document,omitempty"`
}

// RequirementsView is the full consent posture for a locale.
type RequirementsView struct {
	Region               enums.RegionCode    `json:"region"`
	LawName              string              `json:"law_name"`
	NightPushRestriction *region.HoursWindow `json:"night_push_restriction,omitempty"`
	Requirements         []RequirementView   `json:"requirements"`
}

// Decision is one registration-time consent choice.
type Decision struct {
	ConsentType enums.ConsentType `json:"consent_type"`
	Agreed      bool              `json:"agreed"`
	DocumentID  *uuid.UUID        `json:"document_id,omitempty"`
}

// CreateConsentsInput captures a registration-time batch.
type CreateConsentsInput struct {
	UserID      uuid.UUID
	Decisions   []Decision
	IPAddress   *string
	UserAgent   *string
	CountryCode string
}

// UpdateConsentInput captures a point-in-time consent change.
type UpdateConsentInput struct {
	UserID      uuid.UUID
	ConsentType enums.ConsentType
	Agreed      bool
	Locale      string
	IPAddress   *string
	UserAgent   *string
}

// HistoryPage is one page of the audit trail.
type HistoryPage struct {
	Items      []consents.View `json:"items"`
	NextCursor *string         `json:"next_cursor,omitempty"`
}
