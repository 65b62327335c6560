package consents

import (
	"time"

	"github.com/google/uuid"

	"github.com/miraelabs/consentry-backend/pkg/db/models"
	"github.com/miraelabs/consentry-backend/pkg/enums"
)

// NewConsentRow carries one decision into the ledger.
type NewConsentRow struct {
	UserID          uuid.UUID
	ConsentType     enums.ConsentType
	DocumentID      *uuid.UUID
	DocumentVersion *string
	Agreed          bool
	AgreedAt        time.Time
	IPAddress       *string
	UserAgent       *string
	CountryCode     string
}

// ToModel converts the row into its persistence shape.
func (r NewConsentRow) ToModel() models.UserConsent {
	return models.UserConsent{
		ID:              uuid.New(),
		UserID:          r.UserID,
		ConsentType:     r.ConsentType,
		DocumentID:      r.DocumentID,
		DocumentVersion: r.DocumentVersion,
		Agreed:          r.Agreed,
		AgreedAt:        r.AgreedAt,
		IPAddress:       r.IPAddress,
		UserAgent:       r.UserAgent,
		CountryCode:     r.CountryCode,
	}
}

// DocumentRef is the minimal document metadata joined onto consent views.
type DocumentRef struct {
	ID           uuid.UUID          `json:"id"`
	DocumentType enums.DocumentType `json:"document_type"`
	Version      string             `json:"version"`
	Title        string             `json:"title"`
}

// View is the plain-data consent representation returned to callers.
type View struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"user_id"`
	ConsentType     enums.ConsentType `json:"consent_type"`
	DocumentID      *uuid.UUID        `json:"document_id,omitempty"`
	DocumentVersion *string           `json:"document_version,omitempty"`
	Agreed          bool              `json:"agreed"`
	AgreedAt        time.Time         `json:"agreed_at"`
	WithdrawnAt     *time.Time        `json:"withdrawn_at,omitempty"`
	CountryCode     string            `json:"country_code"`
	Document        *DocumentRef      `json:"document,omitempty"`
}

// ToView converts a ledger row into its caller-facing shape.
func ToView(row models.UserConsent) View {
	view := View{
		ID:              row.ID,
		UserID:          row.UserID,
		ConsentType:     row.ConsentType,
		DocumentID:      row.DocumentID,
		DocumentVersion: row.DocumentVersion,
		Agreed:          row.Agreed,
		AgreedAt:        row.AgreedAt,
		WithdrawnAt:     row.WithdrawnAt,
		CountryCode:     row.CountryCode,
	}
	if row.Document != nil {
		view.Document = &DocumentRef{
			ID:           row.Document.ID,
			DocumentType: row.Document.DocumentType,
			Version:      row.Document.Version,
			Title:        row.Document.Title,
		}
	}
	return view
}

// ToViews maps a batch of rows.
func ToViews(rows []models.UserConsent) []View {
	views := make([]View, 0, len(rows))
	for _, row := range rows {
		views = append(views, ToView(row))
	}
	return views
}
