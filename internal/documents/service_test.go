package documents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/miraelabs/consentry-backend/pkg/db/models"
	"github.com/miraelabs/consentry-backend/pkg/enums"
	pkgerrors "github.com/miraelabs/consentry-backend/pkg/errors"
)

type docKey struct {
	documentType enums.DocumentType
	locale       string
}

type stubDocumentsRepo struct {
	docs          map[docKey]models.LegalDocument
	versions      map[uuid.UUID]string
	byID          map[uuid.UUID]models.LegalDocument
	err           error
	latestCalls   []docKey
	batchCalls    int
	versionsCalls int
}

func (s *stubDocumentsRepo) LatestActiveByTypes(ctx context.Context, types []enums.DocumentType, locale string) (map[enums.DocumentType]models.LegalDocument, error) {
	s.batchCalls++
	if s.err != nil {
		return nil, s.err
	}
	result := make(map[enums.DocumentType]models.LegalDocument)
	for _, documentType := range types {
		if doc, ok := s.docs[docKey{documentType, locale}]; ok {
			result[documentType] = doc
		}
	}
	return result, nil
}

func (s *stubDocumentsRepo) LatestActive(ctx context.Context, documentType enums.DocumentType, locale string) (*models.LegalDocument, error) {
	key := docKey{documentType, locale}
	s.latestCalls = append(s.latestCalls, key)
	if s.err != nil {
		return nil, s.err
	}
	if doc, ok := s.docs[key]; ok {
		return &doc, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubDocumentsRepo) VersionsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	s.versionsCalls++
	if s.err != nil {
		return nil, s.err
	}
	result := make(map[uuid.UUID]string)
	for _, id := range ids {
		if version, ok := s.versions[id]; ok {
			result[id] = version
		}
	}
	return result, nil
}

func (s *stubDocumentsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.LegalDocument, error) {
	if s.err != nil {
		return nil, s.err
	}
	if doc, ok := s.byID[id]; ok {
		return &doc, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func newStubDoc(documentType enums.DocumentType, locale, version string) models.LegalDocument {
	return models.LegalDocument{
		ID:            uuid.New(),
		DocumentType:  documentType,
		Version:       version,
		Locale:        locale,
		Title:         version + " title",
		Content:       "content",
		EffectiveDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		IsActive:      true,
	}
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(nil, "ko"); err == nil {
		t.Fatalf("expected error for nil repo")
	}
	if _, err := NewService(&stubDocumentsRepo{}, ""); err == nil {
		t.Fatalf("expected error for empty base locale")
	}
}

func TestCurrentReturnsLocaleDocument(t *testing.T) {
	doc := newStubDoc(enums.DocumentTypePrivacyPolicy, "en", "2.0")
	repo := &stubDocumentsRepo{docs: map[docKey]models.LegalDocument{
		{enums.DocumentTypePrivacyPolicy, "en"}: doc,
	}}
	svc, err := NewService(repo, "ko")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary, err := svc.Current(context.Background(), enums.DocumentTypePrivacyPolicy, "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ID != doc.ID || summary.Version != "2.0" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(repo.latestCalls) != 1 {
		t.Fatalf("expected a single lookup, got %d", len(repo.latestCalls))
	}
}

func TestCurrentFallsBackToBaseLocaleOnce(t *testing.T) {
	koDoc := newStubDoc(enums.DocumentTypePrivacyPolicy, "ko", "1.0")
	repo := &stubDocumentsRepo{docs: map[docKey]models.LegalDocument{
		{enums.DocumentTypePrivacyPolicy, "ko"}: koDoc,
		{enums.DocumentTypePrivacyPolicy, "en"}: newStubDoc(enums.DocumentTypePrivacyPolicy, "en", "9.9"),
	}}
	svc, _ := NewService(repo, "ko")

	summary, err := svc.Current(context.Background(), enums.DocumentTypePrivacyPolicy, "fr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ID != koDoc.ID {
		t.Fatalf("fallback must return the base locale document, got locale %s", summary.Locale)
	}
	if len(repo.latestCalls) != 2 {
		t.Fatalf("expected exactly two lookups, got %d", len(repo.latestCalls))
	}
	if repo.latestCalls[1] != (docKey{enums.DocumentTypePrivacyPolicy, "ko"}) {
		t.Fatalf("second lookup must target the base locale, got %+v", repo.latestCalls[1])
	}
}

func TestCurrentNotFoundAfterFallback(t *testing.T) {
	repo := &stubDocumentsRepo{docs: map[docKey]models.LegalDocument{}}
	svc, _ := NewService(repo, "ko")

	_, err := svc.Current(context.Background(), enums.DocumentTypeMarketingPolicy, "fr")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if len(repo.latestCalls) != 2 {
		t.Fatalf("fallback must be single-level, got %d lookups", len(repo.latestCalls))
	}
}

func TestCurrentBaseLocaleDoesNotFallBack(t *testing.T) {
	repo := &stubDocumentsRepo{docs: map[docKey]models.LegalDocument{}}
	svc, _ := NewService(repo, "ko")

	_, err := svc.Current(context.Background(), enums.DocumentTypeTermsOfService, "ko")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if len(repo.latestCalls) != 1 {
		t.Fatalf("base locale lookup must not retry, got %d", len(repo.latestCalls))
	}
}

func TestCurrentByTypesNoFallback(t *testing.T) {
	repo := &stubDocumentsRepo{docs: map[docKey]models.LegalDocument{
		{enums.DocumentTypeTermsOfService, "ko"}: newStubDoc(enums.DocumentTypeTermsOfService, "ko", "1.0"),
	}}
	svc, _ := NewService(repo, "ko")

	result, err := svc.CurrentByTypes(context.Background(), []enums.DocumentType{
		enums.DocumentTypeTermsOfService,
		enums.DocumentTypePrivacyPolicy,
	}, "fr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("batch lookup must not fall back across locales, got %d rows", len(result))
	}
	if repo.batchCalls != 1 {
		t.Fatalf("expected one batched call, got %d", repo.batchCalls)
	}
}

func TestVersionsDelegatesBatch(t *testing.T) {
	id := uuid.New()
	repo := &stubDocumentsRepo{versions: map[uuid.UUID]string{id: "3.1"}}
	svc, _ := NewService(repo, "ko")

	versions, err := svc.Versions(context.Background(), []uuid.UUID{id, uuid.New()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if versions[id] != "3.1" || len(versions) != 1 {
		t.Fatalf("unexpected versions %+v", versions)
	}
	if repo.versionsCalls != 1 {
		t.Fatalf("expected one batched call, got %d", repo.versionsCalls)
	}
}

func TestGetNotFound(t *testing.T) {
	repo := &stubDocumentsRepo{}
	svc, _ := NewService(repo, "ko")

	_, err := svc.Get(context.Background(), uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
