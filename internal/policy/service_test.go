package policy

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/miraelabs/consentry-backend/internal/consents"
	"github.com/miraelabs/consentry-backend/internal/documents"
	"github.com/miraelabs/consentry-backend/pkg/db/models"
	"github.com/miraelabs/consentry-backend/pkg/enums"
	pkgerrors "github.com/miraelabs/consentry-backend/pkg/errors"
	"github.com/miraelabs/consentry-backend/pkg/logger"
	"github.com/miraelabs/consentry-backend/pkg/outbox"
	"github.com/miraelabs/consentry-backend/pkg/pagination"
	pkgredis "github.com/miraelabs/consentry-backend/pkg/redis"
)

type fakeConsentsRepo struct {
	rows     map[uuid.UUID]*models.UserConsent
	failNext error
}

func newFakeConsentsRepo() *fakeConsentsRepo {
	return &fakeConsentsRepo{rows: make(map[uuid.UUID]*models.UserConsent)}
}

func (f *fakeConsentsRepo) WithTx(tx *gorm.DB) consents.Repository { return f }

func (f *fakeConsentsRepo) CreateMany(ctx context.Context, rows []models.UserConsent) ([]models.UserConsent, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	out := make([]models.UserConsent, 0, len(rows))
	for i := range rows {
		row := rows[i]
		f.rows[row.ID] = &row
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeConsentsRepo) InsertOne(ctx context.Context, row *models.UserConsent) (*models.UserConsent, error) {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	stored := *row
	f.rows[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeConsentsRepo) FindActive(ctx context.Context, userID uuid.UUID, consentType enums.ConsentType) (*models.UserConsent, error) {
	var best *models.UserConsent
	for _, row := range f.rows {
		if row.UserID != userID || row.ConsentType != consentType {
			continue
		}
		if row.WithdrawnAt != nil || !row.Agreed {
			continue
		}
		if best == nil || row.AgreedAt.After(best.AgreedAt) {
			best = row
		}
	}
	if best == nil {
		return nil, nil
	}
	copied := *best
	return &copied, nil
}

func (f *fakeConsentsRepo) ListActive(ctx context.Context, userID uuid.UUID) ([]models.UserConsent, error) {
	var out []models.UserConsent
	for _, row := range f.rows {
		if row.UserID == userID && row.WithdrawnAt == nil {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeConsentsRepo) Withdraw(ctx context.Context, id uuid.UUID, at time.Time) (*models.UserConsent, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if row.WithdrawnAt == nil {
		stamped := at
		row.WithdrawnAt = &stamped
	}
	copied := *row
	return &copied, nil
}

func (f *fakeConsentsRepo) DistinctActiveAgreedTypes(ctx context.Context, userID uuid.UUID, types []enums.ConsentType) ([]enums.ConsentType, error) {
	wanted := make(map[enums.ConsentType]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}
	seen := make(map[enums.ConsentType]struct{})
	for _, row := range f.rows {
		if row.UserID != userID || row.WithdrawnAt != nil || !row.Agreed {
			continue
		}
		if _, ok := wanted[row.ConsentType]; ok {
			seen[row.ConsentType] = struct{}{}
		}
	}
	out := make([]enums.ConsentType, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeConsentsRepo) ListHistory(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.UserConsent, error) {
	var out []models.UserConsent
	for _, row := range f.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeDocuments struct {
	byType    map[enums.DocumentType]documents.Summary
	versions  map[uuid.UUID]string
	currErr   error
	currCalls int
}

func (f *fakeDocuments) CurrentByTypes(ctx context.Context, types []enums.DocumentType, locale string) (map[enums.DocumentType]documents.Summary, error) {
	out := make(map[enums.DocumentType]documents.Summary)
	for _, t := range types {
		if doc, ok := f.byType[t]; ok {
			out[t] = doc
		}
	}
	return out, nil
}

func (f *fakeDocuments) Current(ctx context.Context, documentType enums.DocumentType, locale string) (*documents.Summary, error) {
	f.currCalls++
	if f.currErr != nil {
		return nil, f.currErr
	}
	if doc, ok := f.byType[documentType]; ok {
		return &doc, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active document")
}

func (f *fakeDocuments) Versions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	for _, id := range ids {
		if v, ok := f.versions[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

type stubTxRunner struct {
	calls int
}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.calls++
	return fn(nil)
}

type fakeOutbox struct {
	events []outbox.DomainEvent
}

func (f *fakeOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

type cacheEntry struct {
	value string
}

type fakeCache struct {
	store map[string]cacheEntry
	gets  int
	sets  int
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.gets++
	if entry, ok := f.store[key]; ok {
		return entry.value, nil
	}
	return "", pkgredis.ErrCacheMiss
}

func (f *fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.sets++
	if f.store == nil {
		f.store = make(map[string]cacheEntry)
	}
	f.store[key] = cacheEntry{value: value.(string)}
	return nil
}

func (f *fakeCache) RequirementsKey(locale string) string {
	return "test:requirements:" + locale
}

type testFixture struct {
	svc    Service
	repo   *fakeConsentsRepo
	docs   *fakeDocuments
	tx     *stubTxRunner
	outbox *fakeOutbox
	cache  *fakeCache
	clock  time.Time
}

func newFixture(t *testing.T, withCache bool) *testFixture {
	t.Helper()

	fixture := &testFixture{
		repo:   newFakeConsentsRepo(),
		docs:   &fakeDocuments{byType: map[enums.DocumentType]documents.Summary{}, versions: map[uuid.UUID]string{}},
		tx:     &stubTxRunner{},
		outbox: &fakeOutbox{},
		clock:  time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	params := ServiceParams{
		Consents:  fixture.repo,
		Documents: fixture.docs,
		Tx:        fixture.tx,
		Outbox:    fixture.outbox,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Now:       func() time.Time { return fixture.clock },
	}
	if withCache {
		fixture.cache = &fakeCache{store: map[string]cacheEntry{}}
		params.Cache = fixture.cache
		params.CacheTTL = time.Minute
	}
	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	fixture.svc = svc
	return fixture
}

func addDocument(f *testFixture, documentType enums.DocumentType, version string) documents.Summary {
	doc := documents.Summary{
		ID:            uuid.New(),
		DocumentType:  documentType,
		Version:       version,
		Locale:        "ko",
		Title:         string(documentType),
		EffectiveDate: f.clock.AddDate(0, -1, 0),
	}
	f.docs.byType[documentType] = doc
	f.docs.versions[doc.ID] = version
	return doc
}

func TestGetConsentRequirementsAnnotatesDocuments(t *testing.T) {
	f := newFixture(t, false)
	terms := addDocument(f, enums.DocumentTypeTermsOfService, "2.0")
	addDocument(f, enums.DocumentTypePrivacyPolicy, "1.0")

	view, err := f.svc.GetConsentRequirements(context.Background(), "ko")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Region != enums.RegionKR {
		t.Fatalf("expected KR, got %s", view.Region)
	}
	var termsView *RequirementView
	for i := range view.Requirements {
		if view.Requirements[i].ConsentType == enums.ConsentTypeTermsOfService {
			termsView = &view.Requirements[i]
		}
		if view.Requirements[i].ConsentType == enums.ConsentTypeMarketingEmail && view.Requirements[i].Document != nil {
			t.Fatalf("marketing requirement should have no document for this fixture")
		}
	}
	if termsView == nil || termsView.Document == nil {
		t.Fatalf("terms requirement missing document annotation")
	}
	if termsView.Document.ID != terms.ID {
		t.Fatalf("wrong document annotated")
	}
	if !termsView.Required {
		t.Fatalf("terms must be required")
	}
}

func TestGetConsentRequirementsRegionFixtures(t *testing.T) {
	f := newFixture(t, false)
	cases := map[string]enums.RegionCode{
		"ko":         enums.RegionKR,
		"de-DE":      enums.RegionEU,
		"ja":         enums.RegionJP,
		"xx-unknown": enums.RegionDefault,
	}
	for locale, want := range cases {
		view, err := f.svc.GetConsentRequirements(context.Background(), locale)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", locale, err)
		}
		if view.Region != want {
			t.Errorf("locale %q resolved to %s, want %s", locale, view.Region, want)
		}
	}
}

func TestGetConsentRequirementsUsesCache(t *testing.T) {
	f := newFixture(t, true)
	addDocument(f, enums.DocumentTypeTermsOfService, "1.0")

	first, err := f.svc.GetConsentRequirements(context.Background(), "ko")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", f.cache.sets)
	}

	second, err := f.svc.GetConsentRequirements(context.Background(), "ko")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.cache.gets != 2 {
		t.Fatalf("expected two cache reads, got %d", f.cache.gets)
	}
	if f.cache.sets != 1 {
		t.Fatalf("cache hit must not rewrite, got %d writes", f.cache.sets)
	}
	if first.Region != second.Region || len(first.Requirements) != len(second.Requirements) {
		t.Fatalf("cached view differs from computed view")
	}
}

func TestCreateConsentsSnapshotsVersions(t *testing.T) {
	f := newFixture(t, false)
	terms := addDocument(f, enums.DocumentTypeTermsOfService, "3.1")
	userID := uuid.New()

	views, err := f.svc.CreateConsents(context.Background(), CreateConsentsInput{
		UserID: userID,
		Decisions: []Decision{
			{ConsentType: enums.ConsentTypeTermsOfService, Agreed: true, DocumentID: &terms.ID},
			{ConsentType: enums.ConsentTypeMarketingEmail, Agreed: false},
		},
		CountryCode: "KR",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(views))
	}
	if f.tx.calls != 1 {
		t.Fatalf("expected one transaction, got %d", f.tx.calls)
	}

	var termsRow, emailRow *consents.View
	for i := range views {
		switch views[i].ConsentType {
		case enums.ConsentTypeTermsOfService:
			termsRow = &views[i]
		case enums.ConsentTypeMarketingEmail:
			emailRow = &views[i]
		}
	}
	if termsRow == nil || termsRow.DocumentVersion == nil || *termsRow.DocumentVersion != "3.1" {
		t.Fatalf("terms row missing version snapshot: %+v", termsRow)
	}
	if emailRow == nil || !emailRow.AgreedAt.Equal(f.clock) {
		t.Fatalf("declined row must still carry agreedAt: %+v", emailRow)
	}
	if emailRow.Agreed {
		t.Fatalf("declined row must record agreed=false")
	}

	if len(f.outbox.events) != 2 {
		t.Fatalf("expected 2 outbox events, got %d", len(f.outbox.events))
	}
	kinds := map[enums.OutboxEventType]int{}
	for _, event := range f.outbox.events {
		kinds[event.EventType]++
	}
	if kinds[enums.EventConsentGranted] != 1 || kinds[enums.EventConsentDeclined] != 1 {
		t.Fatalf("unexpected event mix %+v", kinds)
	}
}

func TestCreateConsentsValidation(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.CreateConsents(context.Background(), CreateConsentsInput{UserID: uuid.Nil})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = f.svc.CreateConsents(context.Background(), CreateConsentsInput{UserID: uuid.New()})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for empty decisions, got %v", err)
	}

	_, err = f.svc.CreateConsents(context.Background(), CreateConsentsInput{
		UserID:    uuid.New(),
		Decisions: []Decision{{ConsentType: enums.ConsentType("bogus"), Agreed: true}},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for bad type, got %v", err)
	}
}

func TestUpdateConsentRequiredWithdrawalFails(t *testing.T) {
	f := newFixture(t, false)
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := f.svc.UpdateConsent(context.Background(), UpdateConsentInput{
			UserID:      userID,
			ConsentType: enums.ConsentTypeTermsOfService,
			Agreed:      false,
			Locale:      "ko",
		})
		if !pkgerrors.IsCode(err, pkgerrors.CodePolicyViolation) {
			t.Fatalf("expected PolicyViolation regardless of prior state, got %v", err)
		}
	}
	if len(f.outbox.events) != 0 {
		t.Fatalf("policy violations must not emit events")
	}
}

func TestUpdateConsentGrantIsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	addDocument(f, enums.DocumentTypeMarketingPolicy, "1.2")
	userID := uuid.New()
	input := UpdateConsentInput{
		UserID:      userID,
		ConsentType: enums.ConsentTypeMarketingEmail,
		Agreed:      true,
		Locale:      "ko",
	}

	first, err := f.svc.UpdateConsent(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == nil || !first.Agreed {
		t.Fatalf("expected granted view, got %+v", first)
	}
	if first.DocumentVersion == nil || *first.DocumentVersion != "1.2" {
		t.Fatalf("grant must snapshot the current document version")
	}
	if first.CountryCode != "KR" {
		t.Fatalf("country code should derive from locale, got %q", first.CountryCode)
	}

	second, err := f.svc.UpdateConsent(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second grant must return the existing row, not a new one")
	}
	if len(f.repo.rows) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(f.repo.rows))
	}
	if len(f.outbox.events) != 1 {
		t.Fatalf("idempotent re-grant must not emit a second event")
	}
}

func TestUpdateConsentWithdrawOptional(t *testing.T) {
	f := newFixture(t, false)
	addDocument(f, enums.DocumentTypeMarketingPolicy, "1.0")
	userID := uuid.New()

	granted, err := f.svc.UpdateConsent(context.Background(), UpdateConsentInput{
		UserID:      userID,
		ConsentType: enums.ConsentTypeMarketingPush,
		Agreed:      true,
		Locale:      "ko",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.clock = f.clock.Add(time.Hour)
	withdrawn, err := f.svc.UpdateConsent(context.Background(), UpdateConsentInput{
		UserID:      userID,
		ConsentType: enums.ConsentTypeMarketingPush,
		Agreed:      false,
		Locale:      "ko",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withdrawn.ID != granted.ID {
		t.Fatalf("withdrawal must target the active row")
	}
	if withdrawn.WithdrawnAt == nil || !withdrawn.WithdrawnAt.Equal(f.clock) {
		t.Fatalf("withdrawnAt not stamped: %+v", withdrawn.WithdrawnAt)
	}

	last := f.outbox.events[len(f.outbox.events)-1]
	if last.EventType != enums.EventConsentWithdrawn {
		t.Fatalf("expected withdrawn event, got %s", last.EventType)
	}
}

func TestUpdateConsentWithdrawNothingIsNoop(t *testing.T) {
	f := newFixture(t, false)

	view, err := f.svc.UpdateConsent(context.Background(), UpdateConsentInput{
		UserID:      uuid.New(),
		ConsentType: enums.ConsentTypeMarketingSMS,
		Agreed:      false,
		Locale:      "ko",
	})
	if err != nil {
		t.Fatalf("declining an absent consent is not an error: %v", err)
	}
	if view != nil {
		t.Fatalf("expected nil view, got %+v", view)
	}
	if f.tx.calls != 0 {
		t.Fatalf("no-op must not open a transaction")
	}
}

func TestUpdateConsentUnknownTypeTreatedOptional(t *testing.T) {
	f := newFixture(t, false)
	userID := uuid.New()

	// night_push carries no document binding in any policy; for the US region
	// it is still offered, but an unknown-to-policy consent must behave as
	// optional and unbound too. Use a valid enum the policy lists without a
	// document to cover the unbound insert path.
	view, err := f.svc.UpdateConsent(context.Background(), UpdateConsentInput{
		UserID:      userID,
		ConsentType: enums.ConsentTypeNightPush,
		Agreed:      true,
		Locale:      "ko",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.DocumentID != nil {
		t.Fatalf("unbound consent must not reference a document")
	}
	if f.docs.currCalls != 0 {
		t.Fatalf("unbound consent must not hit the document store")
	}
}

func TestHasRequiredConsentsLifecycle(t *testing.T) {
	f := newFixture(t, false)
	addDocument(f, enums.DocumentTypeTermsOfService, "1.0")
	addDocument(f, enums.DocumentTypePrivacyPolicy, "1.0")
	userID := uuid.New()
	ctx := context.Background()

	ok, err := f.svc.HasRequiredConsents(ctx, userID, "ko")
	if err != nil || ok {
		t.Fatalf("expected false before any consent, got %v err=%v", ok, err)
	}

	if _, err := f.svc.UpdateConsent(ctx, UpdateConsentInput{UserID: userID, ConsentType: enums.ConsentTypeTermsOfService, Agreed: true, Locale: "ko"}); err != nil {
		t.Fatalf("grant terms: %v", err)
	}
	ok, _ = f.svc.HasRequiredConsents(ctx, userID, "ko")
	if ok {
		t.Fatalf("one of two required consents must not satisfy the check")
	}

	if _, err := f.svc.UpdateConsent(ctx, UpdateConsentInput{UserID: userID, ConsentType: enums.ConsentTypePrivacyPolicy, Agreed: true, Locale: "ko"}); err != nil {
		t.Fatalf("grant privacy: %v", err)
	}
	ok, _ = f.svc.HasRequiredConsents(ctx, userID, "ko")
	if !ok {
		t.Fatalf("both required consents granted, expected true")
	}

	// Force a withdrawal at the storage layer; the API forbids it.
	for _, row := range f.repo.rows {
		if row.ConsentType == enums.ConsentTypePrivacyPolicy {
			at := f.clock.Add(time.Hour)
			row.WithdrawnAt = &at
		}
	}
	ok, _ = f.svc.HasRequiredConsents(ctx, userID, "ko")
	if ok {
		t.Fatalf("withdrawn required consent must flip the check back to false")
	}
}

func TestHasRequiredConsentsIgnoresDuplicateRows(t *testing.T) {
	f := newFixture(t, false)
	userID := uuid.New()
	ctx := context.Background()

	// Duplicate active rows for the same type, as the §5-style race could
	// leave behind without the partial unique index.
	for i := 0; i < 2; i++ {
		row := models.UserConsent{
			ID:          uuid.New(),
			UserID:      userID,
			ConsentType: enums.ConsentTypeTermsOfService,
			Agreed:      true,
			AgreedAt:    f.clock.Add(time.Duration(i) * time.Minute),
			CountryCode: "KR",
		}
		f.repo.rows[row.ID] = &row
	}
	privacy := models.UserConsent{
		ID:          uuid.New(),
		UserID:      userID,
		ConsentType: enums.ConsentTypePrivacyPolicy,
		Agreed:      true,
		AgreedAt:    f.clock,
		CountryCode: "KR",
	}
	f.repo.rows[privacy.ID] = &privacy

	ok, err := f.svc.HasRequiredConsents(ctx, userID, "ko")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("duplicate active rows must not break the distinct-type check")
	}
}

func TestGetUserConsentsRoundTrip(t *testing.T) {
	f := newFixture(t, false)
	terms := addDocument(f, enums.DocumentTypeTermsOfService, "2.0")
	userID := uuid.New()
	ctx := context.Background()

	if _, err := f.svc.CreateConsents(ctx, CreateConsentsInput{
		UserID:      userID,
		Decisions:   []Decision{{ConsentType: enums.ConsentTypeTermsOfService, Agreed: true, DocumentID: &terms.ID}},
		CountryCode: "KR",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Supersede the document; the consent must keep its snapshot.
	addDocument(f, enums.DocumentTypeTermsOfService, "3.0")

	views, err := f.svc.GetUserConsents(ctx, userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected one active consent, got %d", len(views))
	}
	if views[0].DocumentVersion == nil || *views[0].DocumentVersion != "2.0" {
		t.Fatalf("version snapshot must survive supersession, got %+v", views[0].DocumentVersion)
	}
}

func TestGrantFailsWhenDocumentMissingEverywhere(t *testing.T) {
	f := newFixture(t, false)
	userID := uuid.New()

	_, err := f.svc.UpdateConsent(context.Background(), UpdateConsentInput{
		UserID:      userID,
		ConsentType: enums.ConsentTypeMarketingEmail,
		Agreed:      true,
		Locale:      "fr",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NotFound when no document exists, got %v", err)
	}
	if len(f.repo.rows) != 0 {
		t.Fatalf("failed grant must not persist a row")
	}
}
