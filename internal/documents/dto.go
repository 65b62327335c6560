package documents

import (
	"time"

	"github.com/google/uuid"

	"github.com/miraelabs/consentry-backend/pkg/db/models"
	"github.com/miraelabs/consentry-backend/pkg/enums"
)

// Summary is the plain-data document view handed to callers. It carries no
// body content so requirement listings stay small.
type Summary struct {
	ID            uuid.UUID          `json:"id"`
	DocumentType  enums.DocumentType `json:"document_type"`
	Version       string             `json:"version"`
	Locale        string             `json:"locale"`
	Title         string             `json:"title"`
	Summary       *string            `json:"summary,omitempty"`
	EffectiveDate time.Time          `json:"effective_date"`
}

// Detail includes the full legal text, used when a caller fetches one
// document to display.
type Detail struct {
	Summary
	Content string `json:"content"`
}

func toSummary(doc models.LegalDocument) Summary {
	return Summary{
		ID:            doc.ID,
		DocumentType:  doc.DocumentType,
		Version:       doc.Version,
		Locale:        doc.Locale,
		Title:         doc.Title,
		Summary:       doc.Summary,
		EffectiveDate: doc.EffectiveDate,
	}
}

func toDetail(doc models.LegalDocument) Detail {
	return Detail{
		Summary: toSummary(doc),
		Content: doc.Content,
	}
}
