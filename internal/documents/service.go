package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/miraelabs/consentry-backend/pkg/db/models"
	"github.com/miraelabs/consentry-backend/pkg/enums"
	pkgerrors "github.com/miraelabs/consentry-backend/pkg/errors"
)

type documentsRepository interface {
	LatestActiveByTypes(ctx context.Context, types []enums.DocumentType, locale string) (map[enums.DocumentType]models.LegalDocument, error)
	LatestActive(ctx context.Context, documentType enums.DocumentType, locale string) (*models.LegalDocument, error)
	VersionsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.LegalDocument, error)
}

// Service answers "which legal text is current" questions with a single-level
// fallback to the base locale.
type Service interface {
	CurrentByTypes(ctx context.Context, types []enums.DocumentType, locale string) (map[enums.DocumentType]Summary, error)
	Current(ctx context.Context, documentType enums.DocumentType, locale string) (*Summary, error)
	Versions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
	Get(ctx context.Context, id uuid.UUID) (*Detail, error)
}

type service struct {
	repo       documentsRepository
	baseLocale string
}

// NewService builds a documents service. baseLocale is the locale documents
// are always authored in first; lookups for other locales fall back to it.
func NewService(repo documentsRepository, baseLocale string) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("documents repository required")
	}
	if baseLocale == "" {
		return nil, fmt.Errorf("base locale required")
	}
	return &service{repo: repo, baseLocale: baseLocale}, nil
}

// CurrentByTypes returns the current document per type for the locale. No
// fallback here: absent types are simply missing from the map so callers can
// render "document pending" states.
func (s *service) CurrentByTypes(ctx context.Context, types []enums.DocumentType, locale string) (map[enums.DocumentType]Summary, error) {
	rows, err := s.repo.LatestActiveByTypes(ctx, types, locale)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load current documents")
	}
	result := make(map[enums.DocumentType]Summary, len(rows))
	for documentType, row := range rows {
		result[documentType] = toSummary(row)
	}
	return result, nil
}

// Current returns the single current document for (type, locale). When the
// locale has none and is not the base locale, the base locale is tried once.
// No further cascading.
func (s *service) Current(ctx context.Context, documentType enums.DocumentType, locale string) (*Summary, error) {
	doc, err := s.repo.LatestActive(ctx, documentType, locale)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load current document")
		}
		if locale == s.baseLocale {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no active %s document", documentType))
		}
		doc, err = s.repo.LatestActive(ctx, documentType, s.baseLocale)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no active %s document", documentType))
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load current document")
		}
	}
	summary := toSummary(*doc)
	return &summary, nil
}

// Versions batch-resolves version snapshots for consent rows.
func (s *service) Versions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	versions, err := s.repo.VersionsByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve document versions")
	}
	return versions, nil
}

// Get loads one document with its full text.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load document")
	}
	detail := toDetail(*doc)
	return &detail, nil
}
