package documents

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/miraelabs/consentry-backend/pkg/db/models"
	"github.com/miraelabs/consentry-backend/pkg/enums"
)

// Repository exposes read operations over versioned legal documents. The
// authoring workflow lives elsewhere; nothing here writes.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a documents repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LatestActiveByTypes returns, per document type, the active document with
// the greatest effective date for the locale. One query regardless of how
// many types are requested; types without a match are absent from the map.
func (r *Repository) LatestActiveByTypes(ctx context.Context, types []enums.DocumentType, locale string) (map[enums.DocumentType]models.LegalDocument, error) {
	result := make(map[enums.DocumentType]models.LegalDocument, len(types))
	if len(types) == 0 {
		return result, nil
	}

	var rows []models.LegalDocument
	err := r.db.WithContext(ctx).
		Where("document_type IN ? AND locale = ? AND is_active = ?", types, locale, true).
		Order("effective_date DESC").
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	// Rows arrive newest first, so the first row seen per type wins.
	for _, row := range rows {
		if _, ok := result[row.DocumentType]; ok {
			continue
		}
		result[row.DocumentType] = row
	}
	return result, nil
}

// LatestActive returns the current document for one (type, locale) pair, or
// gorm.ErrRecordNotFound when none exists.
func (r *Repository) LatestActive(ctx context.Context, documentType enums.DocumentType, locale string) (*models.LegalDocument, error) {
	var doc models.LegalDocument
	err := r.db.WithContext(ctx).
		Where("document_type = ? AND locale = ? AND is_active = ?", documentType, locale, true).
		Order("effective_date DESC").
		Order("created_at DESC").
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// VersionsByIDs batch-resolves version strings for the given document ids.
// Unknown ids are absent from the map.
func (r *Repository) VersionsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	result := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var rows []models.LegalDocument
	err := r.db.WithContext(ctx).
		Select("id", "version").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ID] = row.Version
	}
	return result, nil
}

// FindByID loads a single document.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LegalDocument, error) {
	var doc models.LegalDocument
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}
